package ranking

import (
	"fmt"
	"sort"

	"github.com/okian/shillbot/internal/domain/types"
	"github.com/shopspring/decimal"
)

// Bin assigns Share of the post-winner pot to ranks From..To inclusive.
type Bin struct {
	From  int
	To    int
	Share decimal.Decimal
}

// Width is the number of ranks the bin covers.
func (b Bin) Width() int { return b.To - b.From + 1 }

// Curve is the payout table.
type Curve struct {
	// WinnerShare is rank 1's fraction of the pot.
	WinnerShare decimal.Decimal
	// Bins split the rest across ranks 2..N.
	Bins []Bin
	// StreakCapShare replaces WinnerShare when the winner is streak-capped.
	StreakCapShare decimal.Decimal
}

// DefaultCurve returns the default payout table: half to the winner, the
// rest weighted towards the upper ranks.
func DefaultCurve() Curve {
	return Curve{
		WinnerShare: decimal.RequireFromString("0.5"),
		Bins: []Bin{
			{From: 2, To: 5, Share: decimal.RequireFromString("0.5")},
			{From: 6, To: 10, Share: decimal.RequireFromString("0.3")},
			{From: 11, To: 20, Share: decimal.RequireFromString("0.2")},
		},
		StreakCapShare: decimal.RequireFromString("0.25"),
	}
}

// Validate checks the table against topN.
func (c Curve) Validate(topN int) error {
	one := decimal.NewFromInt(1)
	if !c.WinnerShare.IsPositive() || c.WinnerShare.GreaterThan(one) {
		return fmt.Errorf("%w: winner share %s not in (0,1]", ErrInvalidCurve, c.WinnerShare)
	}
	if c.StreakCapShare.IsNegative() || c.StreakCapShare.GreaterThan(c.WinnerShare) {
		return fmt.Errorf("%w: streak cap share %s not in [0,winner share]", ErrInvalidCurve, c.StreakCapShare)
	}
	if len(c.Bins) == 0 {
		if topN > 1 {
			return fmt.Errorf("%w: no bins for ranks 2..%d", ErrInvalidCurve, topN)
		}
		return nil
	}
	bins := append([]Bin(nil), c.Bins...)
	sort.Slice(bins, func(i, j int) bool { return bins[i].From < bins[j].From })
	next := 2
	sum := decimal.Zero
	for _, b := range bins {
		if b.From != next || b.To < b.From {
			return fmt.Errorf("%w: bin %d-%d is not contiguous from rank %d", ErrInvalidCurve, b.From, b.To, next)
		}
		if !b.Share.IsPositive() {
			return fmt.Errorf("%w: bin %d-%d share must be positive", ErrInvalidCurve, b.From, b.To)
		}
		sum = sum.Add(b.Share)
		next = b.To + 1
	}
	if next-1 != topN {
		return fmt.Errorf("%w: bins end at rank %d, top-n is %d", ErrInvalidCurve, next-1, topN)
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: bin shares sum to %s, want 1", ErrInvalidCurve, sum)
	}
	return nil
}

// Allocation is the result of splitting a pot across n ranks.
type Allocation struct {
	// Amounts[i] belongs to rank i+1.
	Amounts []types.Lamports
	// Remainder is the part of the pot not allocated because of rounding
	// or a streak cap with nobody to redirect to.
	Remainder types.Lamports
}

// weight returns rank's per-rank weight within the post-winner pot.
func (c Curve) weight(rank int) decimal.Decimal {
	for _, b := range c.Bins {
		if rank >= b.From && rank <= b.To {
			return b.Share.Div(decimal.NewFromInt(int64(b.Width())))
		}
	}
	return decimal.Zero
}

// Allocate splits pot across n ranks. Bin weights are renormalized over the
// ranks present, so fewer winners than the table covers still receive the
// whole pot. When capWinner is set rank 1 receives StreakCapShare and the
// excess goes to ranks 2..n.
func (c Curve) Allocate(pot types.Lamports, n int, capWinner bool) Allocation {
	if n <= 0 || pot <= 0 {
		return Allocation{Amounts: make([]types.Lamports, max(n, 0)), Remainder: max(pot, 0)}
	}

	weights := make([]decimal.Decimal, n)
	total := decimal.Zero
	for r := 2; r <= n; r++ {
		w := c.weight(r)
		weights[r-1] = w
		total = total.Add(w)
	}

	winner := c.WinnerShare
	if capWinner {
		winner = c.StreakCapShare
	} else if total.IsZero() {
		winner = decimal.NewFromInt(1)
	}

	potD := decimal.NewFromInt(int64(pot))
	amounts := make([]types.Lamports, n)
	amounts[0] = pot.Share(winner)
	allocated := amounts[0]
	if total.IsPositive() {
		rest := potD.Mul(decimal.NewFromInt(1).Sub(winner))
		for i := 1; i < n; i++ {
			q, _ := rest.Mul(weights[i]).QuoRem(total, 0)
			amounts[i] = types.Lamports(q.IntPart())
			allocated += amounts[i]
		}
	}
	return Allocation{Amounts: amounts, Remainder: pot - allocated}
}
