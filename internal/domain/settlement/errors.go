package settlement

import "errors"

// Sentinel kinds for settlement errors.
var (
	ErrInvalidParams  = errors.New("invalid settlement parameters")
	ErrWindowNotDue   = errors.New("window has not closed yet")
	ErrSnapshotFailed = errors.New("treasury snapshot failed")
	ErrSourceFailed   = errors.New("post source failed")
	ErrInvalidRange   = errors.New("invalid preview range")
)
