package model

import "errors"

// Store errors shared by the settlement coordinator and its stores.
var (
	ErrNotFound     = errors.New("not found")
	ErrWindowLocked = errors.New("window is being closed by another process")
	ErrWindowClosed = errors.New("window already closed")
	ErrLeaseLost    = errors.New("close lease lost")
	ErrPlanRecorded = errors.New("payout plan already recorded")
)
