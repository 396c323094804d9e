package eligibility

import "errors"

// Sentinel kinds for eligibility errors.
var (
	// ErrHoldingUnavailable means a holding check could not complete. The
	// close must abort rather than guess.
	ErrHoldingUnavailable = errors.New("holding check unavailable")
)
