package settlement

import (
	"fmt"
	"time"

	"github.com/okian/shillbot/internal/domain/ranking"
	"github.com/okian/shillbot/internal/domain/types"
	"github.com/shopspring/decimal"
)

// Params are the immutable settlement parameters of a close.
type Params struct {
	TreasuryWallet  string
	MarketingWallet string
	DevWallet       string

	// Fractions of distributable fees. They must sum to exactly 1.
	PotShare       decimal.Decimal
	MarketingShare decimal.Decimal
	DevShare       decimal.Decimal

	// GasReserve stays in the treasury before any split.
	GasReserve types.Lamports
	// MinPayout is the smallest amount worth a transfer.
	MinPayout types.Lamports

	TopN  int
	Curve ranking.Curve

	// ReadTimeout bounds each read-only external call.
	ReadTimeout time.Duration
	// TransferTimeout bounds each transfer instruction.
	TransferTimeout time.Duration
	// LeaseTTL is how long a close lease stays valid without renewal.
	LeaseTTL time.Duration
}

// DefaultParams returns the default split, reserve and timeouts. Wallets
// are left empty.
func DefaultParams() Params {
	return Params{
		PotShare:        decimal.RequireFromString("0.75"),
		MarketingShare:  decimal.RequireFromString("0.15"),
		DevShare:        decimal.RequireFromString("0.10"),
		GasReserve:      types.LamportsPerSOL / 10,
		MinPayout:       types.LamportsPerSOL / 1000,
		TopN:            ranking.DefaultTopN,
		Curve:           ranking.DefaultCurve(),
		ReadTimeout:     30 * time.Second,
		TransferTimeout: 60 * time.Second,
		LeaseTTL:        5 * time.Minute,
	}
}

// Validate fails on parameters that could misdirect funds.
func (p Params) Validate() error {
	for name, w := range map[string]string{
		"treasury wallet":  p.TreasuryWallet,
		"marketing wallet": p.MarketingWallet,
		"dev wallet":       p.DevWallet,
	} {
		if w == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidParams, name)
		}
	}
	for name, s := range map[string]decimal.Decimal{
		"pot share":       p.PotShare,
		"marketing share": p.MarketingShare,
		"dev share":       p.DevShare,
	} {
		if s.IsNegative() {
			return fmt.Errorf("%w: %s is negative", ErrInvalidParams, name)
		}
	}
	if sum := p.PotShare.Add(p.MarketingShare).Add(p.DevShare); !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: shares sum to %s, want 1", ErrInvalidParams, sum)
	}
	if p.GasReserve < 0 || p.MinPayout < 0 {
		return fmt.Errorf("%w: negative reserve or minimum", ErrInvalidParams)
	}
	if p.TopN <= 0 {
		return fmt.Errorf("%w: top-n must be positive", ErrInvalidParams)
	}
	if err := p.Curve.Validate(p.TopN); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.ReadTimeout <= 0 || p.TransferTimeout <= 0 || p.LeaseTTL <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidParams)
	}
	return nil
}
