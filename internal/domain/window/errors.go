package window

import "errors"

// Sentinel kinds for calendar errors.
var (
	ErrUnknownTimezone  = errors.New("unknown time zone")
	ErrInvalidCloseTime = errors.New("invalid close time")
	ErrInvalidWindowID  = errors.New("invalid window id")
	ErrNotASlot         = errors.New("instant is not a close slot")
)
