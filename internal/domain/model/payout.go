package model

import (
	"github.com/okian/shillbot/internal/domain/types"
)

// PayeeKind classifies a transfer instruction.
type PayeeKind string

// Payee kinds.
const (
	PayeeMarketing PayeeKind = "marketing"
	PayeeDev       PayeeKind = "dev"
	PayeeWinner    PayeeKind = "winner"
)

// PayoutStatus is the ledger state of one transfer instruction.
type PayoutStatus string

// Payout states. PayoutSending is ledger-internal: it marks an instruction
// handed to the executor whose outcome was never recorded.
const (
	PayoutPlanned      PayoutStatus = "planned"
	PayoutSending      PayoutStatus = "sending"
	PayoutSent         PayoutStatus = "sent"
	PayoutFailed       PayoutStatus = "failed"
	PayoutSkippedBelow PayoutStatus = "skipped-below-minimum"
)

// Payout is one transfer instruction keyed by (WindowID, Key()).
type Payout struct {
	WindowID  string         `json:"window_id"`
	Kind      PayeeKind      `json:"kind"`
	Rank      int            `json:"rank,omitempty"`
	Handle    string         `json:"handle,omitempty"`
	Wallet    string         `json:"wallet"`
	Computed  types.Lamports `json:"computed_lamports"`
	Amount    types.Lamports `json:"amount_lamports"`
	Status    PayoutStatus   `json:"status"`
	Signature string         `json:"signature,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Key identifies the payee within a window.
func (p Payout) Key() string {
	if p.Kind == PayeeWinner {
		return string(p.Kind) + ":" + NormalizeHandle(p.Handle)
	}
	return string(p.Kind)
}

// Final reports whether the instruction must never be sent again.
func (p Payout) Final() bool {
	return p.Status == PayoutSent || p.Status == PayoutSkippedBelow
}

// Transferable reports whether the instruction may be handed to the executor.
func (p Payout) Transferable() bool {
	return p.Status == PayoutPlanned || p.Status == PayoutFailed
}
