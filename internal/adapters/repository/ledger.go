package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/types"
)

// insertPlan records the transfer plan of a window inside tx. A window is
// planned once; an existing ledger is never extended.
func insertPlan(ctx context.Context, tx *sql.Tx, windowID string, payouts []model.Payout, now int64) error {
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger WHERE window_id = ?`, windowID).Scan(&n); err != nil {
		return fmt.Errorf("count ledger: %w", err)
	}
	if n > 0 {
		return ErrPlanRecorded
	}
	for i, p := range payouts {
		if p.WindowID != windowID {
			return fmt.Errorf("plan payout %s: window %q, want %q", p.Key(), p.WindowID, windowID)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger (window_id, payee, seq, kind, rank, handle, wallet, computed, amount, status, signature, reason, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.WindowID, p.Key(), i, string(p.Kind), p.Rank, p.Handle, p.Wallet,
			int64(p.Computed), int64(p.Amount), string(p.Status), p.Signature, p.Reason, now)
		if err != nil {
			return fmt.Errorf("plan payout %s: %w", p.Key(), err)
		}
	}
	return nil
}

// Payouts returns a window's instructions in plan order.
func (s *Store) Payouts(ctx context.Context, windowID string) ([]model.Payout, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT window_id, kind, rank, handle, wallet, computed, amount, status, signature, reason
		 FROM ledger WHERE window_id = ? ORDER BY seq`, windowID)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []model.Payout
	for rows.Next() {
		var (
			p                model.Payout
			kind, status     string
			computed, amount int64
		)
		if err := rows.Scan(&p.WindowID, &kind, &p.Rank, &p.Handle, &p.Wallet,
			&computed, &amount, &status, &p.Signature, &p.Reason); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		p.Kind, p.Status = model.PayeeKind(kind), model.PayoutStatus(status)
		p.Computed, p.Amount = types.Lamports(computed), types.Lamports(amount)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSending claims an instruction for transfer. Only planned or failed
// rows can be claimed; anything else returns ErrPayoutClaimed.
func (s *Store) MarkSending(ctx context.Context, windowID, payee string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger SET status = ?, attempts = attempts + 1, updated_at = ?
		 WHERE window_id = ? AND payee = ? AND status IN (?, ?)`,
		string(model.PayoutSending), s.now().UnixNano(), windowID, payee,
		string(model.PayoutPlanned), string(model.PayoutFailed))
	if err != nil {
		return fmt.Errorf("claim payout: %w", err)
	}
	return affected(res, ErrPayoutClaimed)
}

// UpdatePayout records a transfer outcome. Final rows are never rewritten.
func (s *Store) UpdatePayout(ctx context.Context, windowID, payee string, status model.PayoutStatus, signature, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger SET status = ?, signature = ?, reason = ?, updated_at = ?
		 WHERE window_id = ? AND payee = ? AND status NOT IN (?, ?)`,
		string(status), signature, reason, s.now().UnixNano(), windowID, payee,
		string(model.PayoutSent), string(model.PayoutSkippedBelow))
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	return affected(res, ErrPayoutFinal)
}

// Attempts returns how often an instruction was claimed for transfer.
func (s *Store) Attempts(ctx context.Context, windowID, payee string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT attempts FROM ledger WHERE window_id = ? AND payee = ?`, windowID, payee).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return n, nil
}
