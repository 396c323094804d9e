// Package eligibility decides which posts may compete in a window.
package eligibility

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/pkg/logger"
	"github.com/okian/shillbot/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Exclusion reasons produced here.
const (
	ReasonMalformed     = "malformed-post"
	ReasonOutsideWindow = "outside-window"
	ReasonUnregistered  = "unregistered"
	ReasonInvalidWallet = "invalid-wallet"
	ReasonBlacklisted   = "blacklisted"
	ReasonExcludedPost  = "excluded-post"
	ReasonBelowHolding  = "below-holding-minimum"
)

// publicKeyLen is the decoded size of a wallet address.
const publicKeyLen = 32

// Default fan-out settings for holding checks.
const (
	defaultParallelism = 4
	defaultQuota       = 300
	defaultQuotaPeriod = 15 * time.Minute
)

// HoldingChecker reports whether a wallet holds at least minAmount of mint.
type HoldingChecker interface {
	FetchHolding(ctx context.Context, wallet, mint string, minAmount uint64) (bool, error)
}

// ValidWallet reports whether addr is a base58 32-byte public key.
func ValidWallet(addr string) bool {
	b, err := base58.Decode(strings.TrimSpace(addr))
	return err == nil && len(b) == publicKeyLen
}

// Result is the outcome of filtering one window's posts.
type Result struct {
	Posts      []model.Post
	Wallets    map[string]string // normalized handle -> wallet
	Exclusions []model.Exclusion
	Dropped    map[string]int
}

func (r *Result) exclude(p model.Post, reason string) {
	r.Exclusions = append(r.Exclusions, model.Exclusion{Handle: p.Handle, PostID: p.PostID, Reason: reason})
	r.Dropped[reason]++
}

// Filter applies registration, blacklist, exclusion and holding rules.
type Filter struct {
	blacklist   map[string]bool
	excluded    map[string]bool
	mint        string
	minHolding  uint64
	holdings    HoldingChecker
	parallelism int
	limiter     *rate.Limiter
	logger      logger.Logger
}

// Option applies a configuration option to the Filter.
type Option func(*Filter)

// WithBlacklist drops every post by these handles.
func WithBlacklist(handles []string) Option {
	return func(f *Filter) {
		for _, h := range handles {
			if k := model.NormalizeHandle(h); k != "" {
				f.blacklist[k] = true
			}
		}
	}
}

// WithExcludedPosts drops these post ids.
func WithExcludedPosts(ids []string) Option {
	return func(f *Filter) {
		for _, id := range ids {
			if id = strings.TrimSpace(id); id != "" {
				f.excluded[id] = true
			}
		}
	}
}

// WithHoldingRequirement requires authors to hold minAmount of mint at
// close. An empty mint or zero amount disables the check.
func WithHoldingRequirement(checker HoldingChecker, mint string, minAmount uint64) Option {
	return func(f *Filter) {
		f.holdings = checker
		f.mint = mint
		f.minHolding = minAmount
	}
}

// WithParallelism bounds concurrent holding checks.
func WithParallelism(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.parallelism = n
		}
	}
}

// WithRequestBudget limits holding checks to quota requests per period.
func WithRequestBudget(quota int, period time.Duration) Option {
	return func(f *Filter) {
		if quota > 0 && period > 0 {
			f.limiter = rate.NewLimiter(rate.Every(period/time.Duration(quota)), quota)
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFilter creates a filter.
func NewFilter(opts ...Option) *Filter {
	f := &Filter{
		blacklist:   make(map[string]bool),
		excluded:    make(map[string]bool),
		parallelism: defaultParallelism,
		limiter:     rate.NewLimiter(rate.Every(defaultQuotaPeriod/defaultQuota), defaultQuota),
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Filter) holdingEnabled() bool {
	return f.holdings != nil && f.mint != "" && f.minHolding > 0
}

// Apply filters posts for window w. It fails only when a holding check
// cannot complete; bad records are excluded and counted.
func (f *Filter) Apply(ctx context.Context, w model.Window, posts []model.Post, regs []model.Registration) (*Result, error) {
	res := &Result{Wallets: make(map[string]string), Dropped: make(map[string]int)}
	wallets := latestRegistrations(regs)

	candidates := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		author := model.NormalizeHandle(p.Handle)
		wallet, registered := wallets[author]
		switch {
		case author == "" || strings.TrimSpace(p.PostID) == "" || p.CreatedAt.IsZero():
			f.logger.Warn(ctx, "skipping malformed post", logger.String("handle", p.Handle), logger.String("post_id", p.PostID))
			res.exclude(p, ReasonMalformed)
		case !w.Contains(p.CreatedAt):
			res.exclude(p, ReasonOutsideWindow)
		case f.excluded[p.PostID]:
			res.exclude(p, ReasonExcludedPost)
		case f.blacklist[author]:
			res.exclude(p, ReasonBlacklisted)
		case !registered:
			res.exclude(p, ReasonUnregistered)
		case !ValidWallet(wallet):
			f.logger.Warn(ctx, "registration has invalid wallet", logger.String("handle", author))
			res.exclude(p, ReasonInvalidWallet)
		default:
			candidates = append(candidates, p)
		}
	}

	passed := make(map[string]bool)
	for _, p := range candidates {
		passed[model.NormalizeHandle(p.Handle)] = true
	}
	if f.holdingEnabled() {
		var err error
		passed, err = f.checkHoldings(ctx, passed, wallets)
		if err != nil {
			return nil, err
		}
	}

	for _, p := range candidates {
		author := model.NormalizeHandle(p.Handle)
		if !passed[author] {
			res.exclude(p, ReasonBelowHolding)
			continue
		}
		res.Posts = append(res.Posts, p)
		res.Wallets[author] = wallets[author]
	}
	return res, nil
}

// checkHoldings evaluates each author once. Any error aborts.
func (f *Filter) checkHoldings(ctx context.Context, authors map[string]bool, wallets map[string]string) (map[string]bool, error) {
	keys := make([]string, 0, len(authors))
	for a := range authors {
		keys = append(keys, a)
	}
	sort.Strings(keys)

	var mu sync.Mutex
	out := make(map[string]bool, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for _, author := range keys {
		g.Go(func() error {
			if err := f.limiter.Wait(gctx); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrHoldingUnavailable, author, err)
			}
			start := time.Now()
			ok, err := f.holdings.FetchHolding(gctx, wallets[author], f.mint, f.minHolding)
			if err != nil {
				metrics.RecordHoldingCheck("error", time.Since(start).Seconds())
				return fmt.Errorf("%w: %s: %v", ErrHoldingUnavailable, author, err)
			}
			result := "pass"
			if !ok {
				result = "fail"
			}
			metrics.RecordHoldingCheck(result, time.Since(start).Seconds())
			mu.Lock()
			out[author] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// latestRegistrations keeps the newest registration per handle.
func latestRegistrations(regs []model.Registration) map[string]string {
	latest := make(map[string]model.Registration, len(regs))
	for _, r := range regs {
		k := model.NormalizeHandle(r.Handle)
		if k == "" {
			continue
		}
		if cur, ok := latest[k]; ok && r.RegisteredAt.Before(cur.RegisteredAt) {
			continue
		}
		latest[k] = r
	}
	out := make(map[string]string, len(latest))
	for k, r := range latest {
		out[k] = strings.TrimSpace(r.Wallet)
	}
	return out
}
