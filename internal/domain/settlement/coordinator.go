// Package settlement closes contest windows: it ranks authors, splits
// collected fees and pays each payee at most once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/types"
	"github.com/okian/shillbot/pkg/logger"
	"github.com/okian/shillbot/pkg/metrics"
)

// ReasonInDoubt marks an instruction whose transfer outcome was never
// recorded. It is not resent; an operator must check the chain.
const ReasonInDoubt = "in-doubt: transfer started but outcome unknown"

// previewID names the ad-hoc window of a score preview.
const previewID = "preview"

// Dependencies are the collaborators of a Coordinator.
type Dependencies struct {
	Calendar Calendar
	Store    Store
	Posts    PostSource
	Treasury TreasurySource
	Executor Executor
	Pipeline *Pipeline
}

// Coordinator runs the close of a window.
type Coordinator struct {
	Dependencies
	params   Params
	sink     ReportSink
	now      func() time.Time
	newOwner func() string
	logger   logger.Logger
}

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithReportSink publishes closed reports, e.g. as JSON files.
func WithReportSink(s ReportSink) Option {
	return func(c *Coordinator) { c.sink = s }
}

// WithOwnerFunc overrides how close-lease owner tokens are generated.
func WithOwnerFunc(f func() string) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.newOwner = f
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator validates params and assembles a coordinator.
func NewCoordinator(params Params, deps Dependencies, opts ...Option) (*Coordinator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if deps.Calendar == nil || deps.Store == nil || deps.Posts == nil || deps.Treasury == nil ||
		deps.Executor == nil || deps.Pipeline == nil {
		return nil, fmt.Errorf("%w: missing dependency", ErrInvalidParams)
	}
	c := &Coordinator{
		Dependencies: deps,
		params:       params,
		now:          time.Now,
		newOwner:     uuid.NewString,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CloseWindow settles windowID, or the most recently ended window when
// windowID is empty. A closed window returns its stored report and sends
// nothing. An error means the window did not reach closed.
func (c *Coordinator) CloseWindow(ctx context.Context, windowID string, force bool) (*model.Report, error) {
	start := c.now()
	w, err := c.resolve(windowID, start)
	if err != nil {
		return nil, err
	}
	log := []logger.Field{logger.String("window_id", w.ID), logger.Bool("force", force)}

	if !force && start.Before(w.ClosesAt) {
		return nil, fmt.Errorf("%w: %s closes at %s", ErrWindowNotDue, w.ID, w.ClosesAt.Format(time.RFC3339))
	}

	if r, ok, err := c.closedReport(ctx, w.ID); err != nil {
		return nil, err
	} else if ok {
		c.logger.Info(ctx, "window already closed, returning stored report", log...)
		c.republish(ctx, r)
		metrics.RecordClose("already_closed", c.now().Sub(start).Seconds())
		return r, nil
	}

	owner := c.newOwner()
	if err := c.Store.BeginClose(ctx, w, owner, c.params.LeaseTTL); err != nil {
		if errors.Is(err, model.ErrWindowClosed) {
			if r, ok, lerr := c.closedReport(ctx, w.ID); lerr == nil && ok {
				c.republish(ctx, r)
				return r, nil
			}
		}
		metrics.RecordClose("locked", c.now().Sub(start).Seconds())
		return nil, fmt.Errorf("begin close %s: %w", w.ID, err)
	}
	c.logger.Info(ctx, "close started", append(log, logger.String("owner", owner),
		logger.Bool("dry_run", c.Executor.DryRun()))...)

	report, err := c.settle(ctx, w, owner)
	if err != nil {
		if rerr := c.Store.ReleaseClose(context.WithoutCancel(ctx), w.ID, owner); rerr != nil {
			c.logger.Warn(ctx, "release close lease", append(log, logger.Error(rerr))...)
		}
		metrics.RecordClose("failed", c.now().Sub(start).Seconds())
		metrics.RecordErrorByComponent("settlement", "close")
		c.logger.Error(ctx, "close failed", append(log, logger.Error(err))...)
		return nil, err
	}

	metrics.RecordClose("closed", c.now().Sub(start).Seconds())
	c.logger.Info(ctx, "window closed", append(log,
		logger.Int("winners", len(report.Standings)),
		logger.Int("failed_payouts", report.FailedPayouts()),
		logger.String("pot", report.Fees.Pot.String()))...)
	return report, nil
}

// ScorePreview ranks posts created in [since, until) without any
// settlement side effect. Official pulls override interim ones.
func (c *Coordinator) ScorePreview(ctx context.Context, since, until time.Time) (*model.Ranked, error) {
	if since.IsZero() || !since.Before(until) {
		return nil, fmt.Errorf("%w: since %s until %s", ErrInvalidRange, since.Format(time.RFC3339), until.Format(time.RFC3339))
	}
	w := model.Window{ID: previewID, OpensAt: since, ClosesAt: until, Status: model.WindowOpen}

	regs, err := c.registrations(ctx)
	if err != nil {
		return nil, err
	}
	official, err := c.posts(ctx, w, model.ProvenanceOfficial)
	if err != nil {
		return nil, err
	}
	interim, err := c.posts(ctx, w, model.ProvenanceInterim)
	if err != nil {
		return nil, err
	}
	return c.Pipeline.Run(ctx, w, mergePulls(official, interim), regs)
}

// PreviewPayouts returns the payout plan windowID would get if it closed
// now, or the open window's plan when windowID is empty. It reads the live
// treasury balance and merges interim pulls but records nothing. A closed
// window returns its stored report.
func (c *Coordinator) PreviewPayouts(ctx context.Context, windowID string) (*model.Report, error) {
	now := c.now()
	var (
		w   model.Window
		err error
	)
	if windowID == "" {
		w, err = c.Calendar.Upcoming(now)
	} else {
		w, err = c.Calendar.Resolve(windowID)
	}
	if err != nil {
		return nil, err
	}
	if r, ok, err := c.closedReport(ctx, w.ID); err != nil {
		return nil, err
	} else if ok {
		return r, nil
	}

	rctx, cancel := context.WithTimeout(ctx, c.params.ReadTimeout)
	balance, err := c.Treasury.GetBalance(rctx, c.params.TreasuryWallet)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: preview: %v", ErrSnapshotFailed, err)
	}
	regs, err := c.registrations(ctx)
	if err != nil {
		return nil, err
	}
	official, err := c.posts(ctx, w, model.ProvenanceOfficial)
	if err != nil {
		return nil, err
	}
	interim, err := c.posts(ctx, w, model.ProvenanceInterim)
	if err != nil {
		return nil, err
	}
	report, _, err := c.plan(ctx, w, balance, mergePulls(official, interim), regs)
	if err != nil {
		return nil, err
	}
	report.Status = model.WindowOpen
	report.DryRun = c.Executor.DryRun()
	report.Treasury = model.Treasury{Before: balance, BeforeAt: now}
	return report, nil
}

func (c *Coordinator) resolve(windowID string, now time.Time) (model.Window, error) {
	if windowID == "" {
		return c.Calendar.Current(now)
	}
	return c.Calendar.Resolve(windowID)
}

func (c *Coordinator) closedReport(ctx context.Context, windowID string) (*model.Report, bool, error) {
	r, err := c.Store.LoadReport(ctx, windowID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("load report %s: %w", windowID, err)
	}
	return r, r.Status == model.WindowClosed, nil
}

// settle runs the close under owner's lease, resuming a saved draft.
func (c *Coordinator) settle(ctx context.Context, w model.Window, owner string) (*model.Report, error) {
	report, err := c.Store.LoadReport(ctx, w.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		if report, err = c.prepare(ctx, w, owner); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load draft %s: %w", w.ID, err)
	default:
		c.logger.Info(ctx, "resuming close from draft", logger.String("window_id", w.ID))
	}

	if err := c.execute(ctx, w, owner); err != nil {
		return nil, err
	}

	after, err := c.snapshot(ctx, w.ID, model.SnapshotAfter)
	if err != nil {
		return nil, err
	}
	ledger, err := c.Store.Payouts(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", w.ID, err)
	}
	Reconcile(report, reportable(ledger))
	report.Treasury.After, report.Treasury.AfterAt = after.Balance, after.TakenAt
	report.Status = model.WindowClosed
	report.ClosedAt = c.now()
	prior, err := c.Store.LifetimeFees(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("read lifetime fees: %w", err)
	}
	report.Fees.Lifetime = prior + report.Fees.Collected

	if err := c.Store.Finalize(ctx, report, owner); err != nil {
		return nil, fmt.Errorf("finalize %s: %w", w.ID, err)
	}
	metrics.UpdateTreasuryBalance(int64(after.Balance))

	// Return the stored form so every caller sees identical bytes.
	frozen, err := c.Store.LoadReport(ctx, w.ID)
	if err != nil {
		frozen = report
	}
	c.publish(ctx, frozen)
	return frozen, nil
}

func (c *Coordinator) publish(ctx context.Context, r *model.Report) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Write(ctx, r); err != nil {
		metrics.RecordErrorByComponent("settlement", "publish")
		c.logger.Error(ctx, "write report file", logger.String("window_id", r.WindowID), logger.Error(err))
	}
}

// republish writes a closed report whose earlier publish was lost.
func (c *Coordinator) republish(ctx context.Context, r *model.Report) {
	if c.sink == nil || c.sink.Published(r.WindowID) {
		return
	}
	c.logger.Warn(ctx, "closed report missing from published files, writing it again",
		logger.String("window_id", r.WindowID))
	c.publish(ctx, r)
}

// prepare snapshots the treasury, ranks the window and records the plan
// together with the draft report. Nothing here moves funds, so any failure
// aborts the close.
func (c *Coordinator) prepare(ctx context.Context, w model.Window, owner string) (*model.Report, error) {
	before, err := c.snapshot(ctx, w.ID, model.SnapshotBefore)
	if err != nil {
		return nil, err
	}
	regs, err := c.registrations(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := c.posts(ctx, w, model.ProvenanceOfficial)
	if err != nil {
		return nil, err
	}
	report, capWinner, err := c.plan(ctx, w, before.Balance, posts, regs)
	if err != nil {
		return nil, err
	}
	report.Status = model.WindowClosing
	report.DryRun = c.Executor.DryRun()
	report.Treasury = model.Treasury{Before: before.Balance, BeforeAt: before.TakenAt}

	if err := c.Store.SavePlan(ctx, report, owner); err != nil {
		return nil, fmt.Errorf("save plan %s: %w", w.ID, err)
	}
	metrics.UpdatePot(int64(report.Fees.Pot))
	c.logger.Info(ctx, "payout plan recorded",
		logger.String("window_id", w.ID),
		logger.String("collected", report.Fees.Collected.String()),
		logger.String("pot", report.Fees.Pot.String()),
		logger.Int("instructions", len(report.Payouts)),
		logger.Bool("streak_capped", capWinner))
	return report, nil
}

// plan ranks posts and builds the transfer plan against balance. It has
// no side effects.
func (c *Coordinator) plan(ctx context.Context, w model.Window, balance types.Lamports, posts []model.Post, regs []model.Registration) (*model.Report, bool, error) {
	var fees model.Fees
	prev, err := c.Store.LastAfterSnapshot(ctx, w.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		fees = SplitFees(0, c.params)
		fees.Note = NoteFirstWindow
	case err != nil:
		return nil, false, fmt.Errorf("read previous snapshot: %w", err)
	default:
		fees = SplitFees(balance.Sub(prev.Balance), c.params)
	}

	ranked, err := c.Pipeline.Run(ctx, w, posts, regs)
	if err != nil {
		return nil, false, err
	}
	capWinner, err := c.streakCapped(ctx, w.ID, ranked.Standings)
	if err != nil {
		return nil, false, err
	}
	payouts := BuildPlan(w.ID, &fees, ranked.Standings, capWinner, c.params)
	return &model.Report{
		WindowID:   w.ID,
		OpensAt:    w.OpensAt,
		ClosesAt:   w.ClosesAt,
		Standings:  ranked.Standings,
		Payouts:    payouts,
		Fees:       fees,
		Exclusions: ranked.Exclusions,
		Dropped:    ranked.Dropped,
	}, capWinner, nil
}

// execute sends every transferable instruction once. It runs the whole
// batch even if ctx is cancelled; each send has its own timeout.
func (c *Coordinator) execute(ctx context.Context, w model.Window, owner string) error {
	ctx = context.WithoutCancel(ctx)
	ledger, err := c.Store.Payouts(ctx, w.ID)
	if err != nil {
		return fmt.Errorf("read ledger %s: %w", w.ID, err)
	}

	for _, po := range ledger {
		key := po.Key()
		fields := []logger.Field{logger.String("window_id", w.ID), logger.String("payee", key),
			logger.String("wallet", po.Wallet), logger.String("amount", po.Amount.String())}

		if po.Status == model.PayoutSending {
			c.logger.Warn(ctx, "payout outcome unknown, not resending", fields...)
			continue
		}
		if !po.Transferable() {
			continue
		}
		if err := c.Store.RenewClose(ctx, w.ID, owner, c.params.LeaseTTL); err != nil {
			return fmt.Errorf("renew lease %s: %w", w.ID, err)
		}
		if err := c.Store.MarkSending(ctx, w.ID, key); err != nil {
			return fmt.Errorf("claim payout %s: %w", key, err)
		}

		sendCtx, cancel := context.WithTimeout(ctx, c.params.TransferTimeout)
		sig, sendErr := c.Executor.Send(sendCtx, po.Wallet, po.Amount)
		cancel()

		status, reason := model.PayoutSent, ""
		if sendErr != nil {
			status, reason, sig = model.PayoutFailed, sendErr.Error(), ""
			c.logger.Error(ctx, "transfer failed", append(fields, logger.Error(sendErr))...)
			metrics.RecordTransfer(string(po.Kind), string(status), 0)
		} else {
			c.logger.Info(ctx, "transfer sent", append(fields, logger.String("signature", sig))...)
			metrics.RecordTransfer(string(po.Kind), string(status), int64(po.Amount))
		}
		if err := c.Store.UpdatePayout(ctx, w.ID, key, status, sig, reason); err != nil {
			return fmt.Errorf("record payout %s: %w", key, err)
		}
	}
	return nil
}

// snapshot returns the stored reading of kind or takes a new one.
func (c *Coordinator) snapshot(ctx context.Context, windowID string, kind model.SnapshotKind) (model.TreasurySnapshot, error) {
	snap, err := c.Store.Snapshot(ctx, windowID, kind)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.TreasurySnapshot{}, fmt.Errorf("read %s snapshot: %w", kind, err)
	}

	rctx, cancel := context.WithTimeout(ctx, c.params.ReadTimeout)
	defer cancel()
	balance, err := c.Treasury.GetBalance(rctx, c.params.TreasuryWallet)
	if err != nil {
		return model.TreasurySnapshot{}, fmt.Errorf("%w: %s: %v", ErrSnapshotFailed, kind, err)
	}
	snap = model.TreasurySnapshot{WindowID: windowID, Kind: kind, Balance: balance, TakenAt: c.now()}
	if err := c.Store.AppendSnapshot(ctx, snap); err != nil {
		return model.TreasurySnapshot{}, fmt.Errorf("store %s snapshot: %w", kind, err)
	}
	metrics.UpdateTreasuryBalance(int64(balance))
	return snap, nil
}

func (c *Coordinator) registrations(ctx context.Context) ([]model.Registration, error) {
	rctx, cancel := context.WithTimeout(ctx, c.params.ReadTimeout)
	defer cancel()
	regs, err := c.Posts.Registrations(rctx)
	if err != nil {
		return nil, fmt.Errorf("%w: registrations: %v", ErrSourceFailed, err)
	}
	return regs, nil
}

func (c *Coordinator) posts(ctx context.Context, w model.Window, prov model.Provenance) ([]model.Post, error) {
	rctx, cancel := context.WithTimeout(ctx, c.params.ReadTimeout)
	defer cancel()
	posts, err := c.Posts.Posts(rctx, w.OpensAt, w.ClosesAt, prov)
	if err != nil {
		return nil, fmt.Errorf("%w: %s posts: %v", ErrSourceFailed, prov, err)
	}
	metrics.RecordPostsFetched(string(prov), len(posts))
	return posts, nil
}

func (c *Coordinator) streakCapped(ctx context.Context, windowID string, standings []model.Standing) (bool, error) {
	policy := c.Pipeline.Policy()
	if len(standings) == 0 || policy.StreakLength <= 0 {
		return false, nil
	}
	winners, err := c.Store.RecentWinners(ctx, windowID, policy.StreakLength)
	if err != nil {
		return false, fmt.Errorf("read recent winners: %w", err)
	}
	return policy.StreakCapped(winners, standings[0].Handle), nil
}

// reportable maps ledger-internal states onto report states.
func reportable(ledger []model.Payout) []model.Payout {
	out := make([]model.Payout, len(ledger))
	for i, po := range ledger {
		if po.Status == model.PayoutSending {
			po.Status, po.Reason = model.PayoutFailed, ReasonInDoubt
		}
		out[i] = po
	}
	return out
}

// mergePulls keeps one post per id, preferring the first slice.
func mergePulls(primary, secondary []model.Post) []model.Post {
	seen := make(map[string]bool, len(primary))
	out := make([]model.Post, 0, len(primary)+len(secondary))
	for _, p := range primary {
		seen[p.PostID] = true
		out = append(out, p)
	}
	for _, p := range secondary {
		if !seen[p.PostID] {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
