package repository

import (
	"errors"

	"github.com/okian/shillbot/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound      = model.ErrNotFound
	ErrWindowLocked  = model.ErrWindowLocked
	ErrWindowClosed  = model.ErrWindowClosed
	ErrLeaseLost     = model.ErrLeaseLost
	ErrReportFrozen  = errors.New("report is frozen")
	ErrPayoutFinal   = errors.New("payout already final")
	ErrPayoutClaimed = errors.New("payout not claimable")
	ErrPlanRecorded  = model.ErrPlanRecorded
)
