package model

import (
	"time"

	"github.com/okian/shillbot/internal/domain/types"
)

// WindowStatus is the settlement state of a window.
type WindowStatus string

// Window states. Transitions only go forward: open -> closing -> closed.
const (
	WindowOpen    WindowStatus = "open"
	WindowClosing WindowStatus = "closing"
	WindowClosed  WindowStatus = "closed"
)

// Window is one contest period, [OpensAt, ClosesAt).
type Window struct {
	ID       string       `json:"id"`
	OpensAt  time.Time    `json:"opens_at"`
	ClosesAt time.Time    `json:"closes_at"`
	Status   WindowStatus `json:"status"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.OpensAt) && t.Before(w.ClosesAt)
}

// SnapshotKind distinguishes the two treasury readings of a close.
type SnapshotKind string

// Snapshot kinds.
const (
	SnapshotBefore SnapshotKind = "before"
	SnapshotAfter  SnapshotKind = "after"
)

// TreasurySnapshot is an append-only treasury balance reading.
type TreasurySnapshot struct {
	WindowID string
	Kind     SnapshotKind
	Balance  types.Lamports
	TakenAt  time.Time
}
