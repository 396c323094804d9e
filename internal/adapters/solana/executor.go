package solana

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/okian/shillbot/internal/domain/types"
	"github.com/okian/shillbot/pkg/logger"
)

const signaturePrefix = "Signature:"

// UnknownSignature is recorded when the CLI exits cleanly without printing a
// signature. The transfer went through and must not be retried.
const UnknownSignature = "unknown"

// Runner executes an external command and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CLIExecutor sends SOL with the solana command line tool. The signing key
// never enters this process; only its path is passed through.
type CLIExecutor struct {
	binary  string
	keypair string
	rpcURL  string
	run     Runner
	logger  logger.Logger
}

// ExecutorOption applies a configuration option to the CLIExecutor.
type ExecutorOption func(*CLIExecutor)

// WithBinary overrides the solana binary path.
func WithBinary(path string) ExecutorOption {
	return func(e *CLIExecutor) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithRunner overrides command execution.
func WithRunner(r Runner) ExecutorOption {
	return func(e *CLIExecutor) {
		if r != nil {
			e.run = r
		}
	}
}

// WithExecutorLogger sets a custom logger.
func WithExecutorLogger(l logger.Logger) ExecutorOption {
	return func(e *CLIExecutor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewCLIExecutor creates an executor signing with the keypair file at keypair.
func NewCLIExecutor(keypair, rpcURL string, opts ...ExecutorOption) *CLIExecutor {
	e := &CLIExecutor{
		binary:  "solana",
		keypair: keypair,
		rpcURL:  rpcURL,
		run:     execRunner,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DryRun reports false; this executor moves funds.
func (e *CLIExecutor) DryRun() bool { return false }

// Send transfers amount to the wallet at to and returns the signature.
func (e *CLIExecutor) Send(ctx context.Context, to string, amount types.Lamports) (string, error) {
	if strings.TrimSpace(to) == "" || amount <= 0 {
		return "", fmt.Errorf("%w: to=%q amount=%d", ErrInvalidInput, to, amount)
	}
	args := []string{
		"transfer", to, amount.SOL().StringFixed(9),
		"--keypair", e.keypair,
		"--url", e.rpcURL,
		"--allow-unfunded-recipient",
	}
	stdout, stderr, err := e.run(ctx, e.binary, args...)
	if err != nil {
		e.logger.Error(ctx, "solana transfer failed",
			logger.String("to", to), logger.String("stderr", strings.TrimSpace(string(stderr))), logger.Error(err))
		return "", fmt.Errorf("%w: %v: %s", ErrTransfer, err, strings.TrimSpace(string(stderr)))
	}
	sig := parseSignature(stdout)
	if sig == "" {
		e.logger.Warn(ctx, "transfer succeeded without a signature in output",
			logger.String("to", to), logger.String("stdout", strings.TrimSpace(string(stdout))))
		sig = UnknownSignature
	}
	e.logger.Info(ctx, "transfer sent", logger.String("to", to), logger.String("amount", amount.String()),
		logger.String("signature", sig))
	return sig, nil
}

func parseSignature(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, signaturePrefix); i >= 0 {
			return strings.TrimSpace(line[i+len(signaturePrefix):])
		}
	}
	return ""
}

// DryRunExecutor logs transfers instead of sending them. Signatures are
// derived from the instruction so reruns produce identical reports.
type DryRunExecutor struct {
	logger logger.Logger
}

// NewDryRunExecutor creates a dry-run executor.
func NewDryRunExecutor(l logger.Logger) *DryRunExecutor {
	if l == nil {
		l = logger.Discard()
	}
	return &DryRunExecutor{logger: l}
}

// DryRun reports true.
func (d *DryRunExecutor) DryRun() bool { return true }

// Send returns a deterministic placeholder signature.
func (d *DryRunExecutor) Send(ctx context.Context, to string, amount types.Lamports) (string, error) {
	if strings.TrimSpace(to) == "" || amount <= 0 {
		return "", fmt.Errorf("%w: to=%q amount=%d", ErrInvalidInput, to, amount)
	}
	d.logger.Info(ctx, "dry-run transfer", logger.String("to", to), logger.String("amount", amount.String()))
	return fmt.Sprintf("dry-run-%s-%d", to, int64(amount)), nil
}
