package ranking

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrInvalidCurve = errors.New("invalid payout curve")
)
