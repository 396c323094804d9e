package model

import (
	"time"

	"github.com/okian/shillbot/internal/domain/types"
)

// Exclusion records a post or author dropped before scoring and why.
type Exclusion struct {
	Handle string `json:"handle"`
	PostID string `json:"post_id,omitempty"`
	Reason string `json:"reason"`
}

// Standing is one ranked author in a window.
type Standing struct {
	Rank         int            `json:"rank"`
	Handle       string         `json:"handle"`
	Wallet       string         `json:"wallet"`
	Score        float64        `json:"score"`
	Posts        int            `json:"posts"`
	FirstPostAt  time.Time      `json:"first_post_at"`
	Payout       types.Lamports `json:"payout_lamports"`
	PayoutStatus PayoutStatus   `json:"payout_status,omitempty"`
	Signature    string         `json:"signature,omitempty"`
	StreakCapped bool           `json:"streak_capped,omitempty"`
}

// Fees summarizes how collected fees were split.
type Fees struct {
	Collected     types.Lamports `json:"collected_lamports"`
	Reserve       types.Lamports `json:"reserve_lamports"`
	Distributable types.Lamports `json:"distributable_lamports"`
	Pot           types.Lamports `json:"pot_lamports"`
	Marketing     types.Lamports `json:"marketing_lamports"`
	Dev           types.Lamports `json:"dev_lamports"`
	Undistributed types.Lamports `json:"undistributed_lamports"`
	// Lifetime is the total collected over all closed windows up to and
	// including this one.
	Lifetime types.Lamports `json:"lifetime_collected_lamports"`
	Note     string         `json:"note,omitempty"`
}

// Treasury holds the before/after balances around the transfer batch.
type Treasury struct {
	Before   types.Lamports `json:"before_lamports"`
	After    types.Lamports `json:"after_lamports"`
	BeforeAt time.Time      `json:"before_at"`
	AfterAt  time.Time      `json:"after_at"`
}

// Report is the settlement record of one window. Frozen once Status is closed.
type Report struct {
	WindowID   string         `json:"window_id"`
	OpensAt    time.Time      `json:"opens_at"`
	ClosesAt   time.Time      `json:"closes_at"`
	Status     WindowStatus   `json:"status"`
	ClosedAt   time.Time      `json:"closed_at"`
	DryRun     bool           `json:"dry_run"`
	Standings  []Standing     `json:"standings"`
	Payouts    []Payout       `json:"payouts"`
	Fees       Fees           `json:"fees"`
	Treasury   Treasury       `json:"treasury"`
	Exclusions []Exclusion    `json:"exclusions"`
	Dropped    map[string]int `json:"dropped"`
}

// FailedPayouts counts instructions that did not reach the payee.
func (r *Report) FailedPayouts() int {
	n := 0
	for _, p := range r.Payouts {
		if p.Status == PayoutFailed {
			n++
		}
	}
	return n
}

// Ranked is the read-only result of a scoring pass.
type Ranked struct {
	Since      time.Time      `json:"since"`
	Until      time.Time      `json:"until"`
	Standings  []Standing     `json:"standings"`
	Exclusions []Exclusion    `json:"exclusions"`
	Dropped    map[string]int `json:"dropped"`
}
