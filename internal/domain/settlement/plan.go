package settlement

import (
	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/types"
)

// Notes recorded on the fee summary.
const (
	NoteFirstWindow = "no previous after-snapshot; baseline recorded, nothing distributed"
	NoteNoWinners   = "no ranked authors; pot kept in treasury"
)

// SplitFees divides collected fees after the gas reserve. Every share rounds
// down; rounding dust is reported as undistributed.
func SplitFees(collected types.Lamports, p Params) model.Fees {
	f := model.Fees{Collected: collected, Reserve: p.GasReserve}
	f.Distributable = collected.Sub(p.GasReserve)
	if collected < p.GasReserve {
		f.Reserve = collected
	}
	f.Pot = f.Distributable.Share(p.PotShare)
	f.Marketing = f.Distributable.Share(p.MarketingShare)
	f.Dev = f.Distributable.Share(p.DevShare)
	f.Undistributed = f.Distributable - f.Pot - f.Marketing - f.Dev
	return f
}

// BuildPlan turns fees and standings into transfer instructions: marketing,
// dev, then winners by rank. Amounts below the minimum are planned as
// skipped and stay in the treasury. Standings receive their amounts.
func BuildPlan(windowID string, fees *model.Fees, standings []model.Standing, capWinner bool, p Params) []model.Payout {
	plan := make([]model.Payout, 0, len(standings)+2)
	add := func(po model.Payout) {
		po.WindowID = windowID
		po.Amount, po.Status = po.Computed, model.PayoutPlanned
		if po.Computed < p.MinPayout || po.Computed <= 0 {
			po.Amount, po.Status = 0, model.PayoutSkippedBelow
			fees.Undistributed += po.Computed
		}
		plan = append(plan, po)
	}

	add(model.Payout{Kind: model.PayeeMarketing, Wallet: p.MarketingWallet, Computed: fees.Marketing})
	add(model.Payout{Kind: model.PayeeDev, Wallet: p.DevWallet, Computed: fees.Dev})

	if len(standings) == 0 {
		fees.Undistributed += fees.Pot
		if fees.Pot > 0 && fees.Note == "" {
			fees.Note = NoteNoWinners
		}
		return plan
	}

	alloc := p.Curve.Allocate(fees.Pot, len(standings), capWinner)
	fees.Undistributed += alloc.Remainder
	for i := range standings {
		s := &standings[i]
		s.StreakCapped = capWinner && s.Rank == 1
		add(model.Payout{
			Kind:     model.PayeeWinner,
			Rank:     s.Rank,
			Handle:   s.Handle,
			Wallet:   s.Wallet,
			Computed: alloc.Amounts[i],
		})
		s.Payout = plan[len(plan)-1].Amount
		s.PayoutStatus = plan[len(plan)-1].Status
	}
	return plan
}

// Reconcile folds ledger state into a report's payouts and standings.
func Reconcile(r *model.Report, ledger []model.Payout) {
	byKey := make(map[string]model.Payout, len(ledger))
	for _, po := range ledger {
		byKey[po.Key()] = po
	}
	r.Payouts = ledger
	for i := range r.Standings {
		s := &r.Standings[i]
		po, ok := byKey[model.Payout{Kind: model.PayeeWinner, Handle: s.Handle}.Key()]
		if !ok {
			continue
		}
		s.Payout, s.PayoutStatus, s.Signature = po.Amount, po.Status, po.Signature
	}
}
