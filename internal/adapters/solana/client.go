// Package solana talks to a Solana JSON-RPC endpoint and executes transfers.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/okian/shillbot/internal/domain/types"
	"github.com/okian/shillbot/pkg/logger"
	"github.com/okian/shillbot/pkg/metrics"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxAttempts = 4
	defaultMinBackoff  = 500 * time.Millisecond
	defaultMaxBackoff  = 8 * time.Second
	commitment         = "finalized"
)

// Client is a read-only JSON-RPC client. Transient failures are retried
// with exponential backoff; RPC-level errors are not.
type Client struct {
	endpoint    string
	http        *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	logger      logger.Logger
	nextID      atomic.Uint64
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(cl *Client) {
		if maxAttempts > 0 {
			cl.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			cl.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			cl.maxBackoff = maxBackoff
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates a client for endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	c := &Client{
		endpoint:    endpoint,
		http:        &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC method and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.minBackoff
	b.MaxInterval = c.maxBackoff
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)

	op := func() error {
		return c.do(ctx, method, params, out)
	}
	notify := func(err error, wait time.Duration) {
		metrics.RecordRPCRetry(method)
		c.logger.Warn(ctx, "rpc call failed, retrying",
			logger.String("method", method), logger.Duration("wait", wait), logger.Error(err))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		metrics.RecordErrorByComponent("solana_rpc", method)
		return fmt.Errorf("%w: %s: %v", ErrRPC, method, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return backoff.Permanent(fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("http status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return backoff.Permanent(fmt.Errorf("http status %d", resp.StatusCode))
	}

	var rr rpcResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if rr.Error != nil {
		return backoff.Permanent(rr.Error)
	}
	if len(rr.Result) == 0 || string(rr.Result) == "null" {
		return backoff.Permanent(errors.New("missing result"))
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode result: %w", err))
	}
	return nil
}

// GetBalance returns the finalized balance of pubkey.
func (c *Client) GetBalance(ctx context.Context, pubkey string) (types.Lamports, error) {
	var res struct {
		Value *int64 `json:"value"`
	}
	params := []any{pubkey, map[string]string{"commitment": commitment}}
	if err := c.call(ctx, "getBalance", params, &res); err != nil {
		return 0, err
	}
	if res.Value == nil {
		return 0, fmt.Errorf("%w: getBalance: missing value", ErrRPC)
	}
	return types.Lamports(*res.Value), nil
}

// TokenBalance returns the total amount of mint held by wallet across its
// token accounts, in the token's base units.
func (c *Client) TokenBalance(ctx context.Context, wallet, mint string) (*big.Int, error) {
	var res struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	params := []any{
		wallet,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed", "commitment": commitment},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &res); err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, acct := range res.Value {
		amount := acct.Account.Data.Parsed.Info.TokenAmount.Amount
		n, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("%w: getTokenAccountsByOwner: bad amount %q", ErrRPC, amount)
		}
		total.Add(total, n)
	}
	return total, nil
}

// FetchHolding reports whether wallet holds at least minAmount of mint.
func (c *Client) FetchHolding(ctx context.Context, wallet, mint string, minAmount uint64) (bool, error) {
	total, err := c.TokenBalance(ctx, wallet, mint)
	if err != nil {
		return false, err
	}
	return total.Cmp(new(big.Int).SetUint64(minAmount)) >= 0, nil
}
