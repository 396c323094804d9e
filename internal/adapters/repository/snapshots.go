package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/types"
)

// AppendSnapshot records a treasury reading. Snapshots are never updated.
func (s *Store) AppendSnapshot(ctx context.Context, snap model.TreasurySnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO treasury_snapshots (window_id, kind, balance, taken_at) VALUES (?, ?, ?, ?)`,
		snap.WindowID, string(snap.Kind), int64(snap.Balance), unixNano(snap.TakenAt))
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// Snapshot returns the first reading of kind for a window.
func (s *Store) Snapshot(ctx context.Context, windowID string, kind model.SnapshotKind) (model.TreasurySnapshot, error) {
	return scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT window_id, kind, balance, taken_at FROM treasury_snapshots
		 WHERE window_id = ? AND kind = ? ORDER BY id LIMIT 1`,
		windowID, string(kind)))
}

// LastAfterSnapshot returns the after-transfer reading of the latest window
// before windowID. It anchors fee computation for the next close.
func (s *Store) LastAfterSnapshot(ctx context.Context, beforeWindowID string) (model.TreasurySnapshot, error) {
	return scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT window_id, kind, balance, taken_at FROM treasury_snapshots
		 WHERE kind = ? AND window_id < ? ORDER BY window_id DESC, id DESC LIMIT 1`,
		string(model.SnapshotAfter), beforeWindowID))
}

func scanSnapshot(row *sql.Row) (model.TreasurySnapshot, error) {
	var (
		snap          model.TreasurySnapshot
		kind          string
		balance, when int64
	)
	if err := row.Scan(&snap.WindowID, &kind, &balance, &when); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TreasurySnapshot{}, ErrNotFound
		}
		return model.TreasurySnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	snap.Kind, snap.Balance, snap.TakenAt = model.SnapshotKind(kind), types.Lamports(balance), fromUnixNano(when)
	return snap, nil
}
