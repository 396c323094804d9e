package settlement

import (
	"context"
	"time"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/types"
)

// PostSource serves ingested registrations and posts.
type PostSource interface {
	Registrations(ctx context.Context) ([]model.Registration, error)
	Posts(ctx context.Context, since, until time.Time, prov model.Provenance) ([]model.Post, error)
}

// TreasurySource reads on-chain balances.
type TreasurySource interface {
	GetBalance(ctx context.Context, pubkey string) (types.Lamports, error)
}

// Executor moves funds out of the treasury. A dry-run executor is just
// another implementation.
type Executor interface {
	Send(ctx context.Context, to string, amount types.Lamports) (signature string, err error)
	DryRun() bool
}

// Store persists close state. Implementations enforce the close lease and
// never rewrite a final ledger row.
type Store interface {
	BeginClose(ctx context.Context, w model.Window, owner string, ttl time.Duration) error
	RenewClose(ctx context.Context, windowID, owner string, ttl time.Duration) error
	ReleaseClose(ctx context.Context, windowID, owner string) error

	LoadReport(ctx context.Context, windowID string) (*model.Report, error)
	// SavePlan stores the draft report and its payout plan atomically.
	SavePlan(ctx context.Context, r *model.Report, owner string) error
	Finalize(ctx context.Context, r *model.Report, owner string) error
	RecentWinners(ctx context.Context, beforeID string, n int) ([]string, error)
	LifetimeFees(ctx context.Context, exceptID string) (types.Lamports, error)

	Payouts(ctx context.Context, windowID string) ([]model.Payout, error)
	MarkSending(ctx context.Context, windowID, payee string) error
	UpdatePayout(ctx context.Context, windowID, payee string, status model.PayoutStatus, signature, reason string) error

	AppendSnapshot(ctx context.Context, snap model.TreasurySnapshot) error
	Snapshot(ctx context.Context, windowID string, kind model.SnapshotKind) (model.TreasurySnapshot, error)
	LastAfterSnapshot(ctx context.Context, beforeWindowID string) (model.TreasurySnapshot, error)
}

// ReportSink publishes a closed report outside the store.
type ReportSink interface {
	Write(ctx context.Context, r *model.Report) error
	Published(windowID string) bool
}

// Calendar maps window ids to bounds.
type Calendar interface {
	Resolve(id string) (model.Window, error)
	Current(now time.Time) (model.Window, error)
	Upcoming(now time.Time) (model.Window, error)
}
