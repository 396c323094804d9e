// Package types contains common types used across the application
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of minimum units in one SOL.
const LamportsPerSOL = 1_000_000_000

// solExponent is the decimal exponent of one lamport.
const solExponent = -9

// Lamports is an amount of the native asset in its minimum unit.
type Lamports int64

// FromSOL converts a SOL amount to lamports, rounding down.
func FromSOL(sol decimal.Decimal) Lamports {
	return Lamports(sol.Shift(-solExponent).Floor().IntPart())
}

// ParseSOL parses a decimal SOL string such as "0.001".
func ParseSOL(s string) (Lamports, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse sol amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative sol amount %q", s)
	}
	return FromSOL(d), nil
}

// SOL returns the exact decimal SOL value.
func (l Lamports) SOL() decimal.Decimal {
	return decimal.New(int64(l), solExponent)
}

// String renders the amount in SOL with full precision.
func (l Lamports) String() string {
	return l.SOL().StringFixed(-solExponent) + " SOL"
}

// Share returns fraction of l rounded down to whole lamports.
func (l Lamports) Share(fraction decimal.Decimal) Lamports {
	return Lamports(decimal.NewFromInt(int64(l)).Mul(fraction).Floor().IntPart())
}

// Sub returns l-o clamped at zero.
func (l Lamports) Sub(o Lamports) Lamports {
	if o >= l {
		return 0
	}
	return l - o
}
