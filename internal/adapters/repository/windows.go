package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/types"
	"github.com/okian/shillbot/pkg/logger"
)

// BeginClose moves w into closing under a lease held by owner. A closed
// window returns ErrWindowClosed; a live lease held by someone else returns
// ErrWindowLocked. Expired leases are taken over.
func (s *Store) BeginClose(ctx context.Context, w model.Window, owner string, ttl time.Duration) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			status  string
			holder  sql.NullString
			expires sql.NullInt64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT status, lock_owner, lock_expires FROM windows WHERE id = ?`, w.ID,
		).Scan(&status, &holder, &expires)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO windows (id, opens_at, closes_at, status, lock_owner, lock_expires) VALUES (?, ?, ?, ?, ?, ?)`,
				w.ID, unixNano(w.OpensAt), unixNano(w.ClosesAt), string(model.WindowClosing), owner, now.Add(ttl).UnixNano())
			if err != nil {
				return fmt.Errorf("insert window: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("read window: %w", err)
		}

		if model.WindowStatus(status) == model.WindowClosed {
			return ErrWindowClosed
		}
		if holder.Valid && holder.String != "" && holder.String != owner && expires.Int64 > now.UnixNano() {
			return ErrWindowLocked
		}
		if holder.Valid && holder.String != "" && holder.String != owner {
			s.logger.Warn(ctx, "taking over expired close lease",
				logger.String("window_id", w.ID), logger.String("previous_owner", holder.String))
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE windows SET status = ?, lock_owner = ?, lock_expires = ? WHERE id = ?`,
			string(model.WindowClosing), owner, now.Add(ttl).UnixNano(), w.ID)
		if err != nil {
			return fmt.Errorf("acquire lease: %w", err)
		}
		return nil
	})
}

// RenewClose extends owner's lease. It returns ErrLeaseLost when owner no
// longer holds it.
func (s *Store) RenewClose(ctx context.Context, windowID, owner string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE windows SET lock_expires = ? WHERE id = ? AND lock_owner = ? AND status = ?`,
		s.now().Add(ttl).UnixNano(), windowID, owner, string(model.WindowClosing))
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	return affected(res, ErrLeaseLost)
}

// ReleaseClose drops owner's lease without finishing the close. The window
// stays in closing so the next run resumes it.
func (s *Store) ReleaseClose(ctx context.Context, windowID, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE windows SET lock_owner = NULL, lock_expires = NULL WHERE id = ? AND lock_owner = ?`,
		windowID, owner)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Window returns the stored state of a window.
func (s *Store) Window(ctx context.Context, id string) (model.Window, error) {
	var (
		w             model.Window
		opens, closes int64
		status        string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, opens_at, closes_at, status FROM windows WHERE id = ?`, id,
	).Scan(&w.ID, &opens, &closes, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Window{}, ErrNotFound
	}
	if err != nil {
		return model.Window{}, fmt.Errorf("read window: %w", err)
	}
	w.OpensAt, w.ClosesAt, w.Status = fromUnixNano(opens), fromUnixNano(closes), model.WindowStatus(status)
	return w, nil
}

// SavePlan stores the draft report r and its payout plan in one
// transaction while owner holds the close lease. It fails with
// ErrPlanRecorded if the window already has a plan.
func (s *Store) SavePlan(ctx context.Context, r *model.Report, owner string) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkLease(ctx, tx, r.WindowID, owner); err != nil {
			return err
		}
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM reports WHERE window_id = ?`, r.WindowID).Scan(&status)
		switch {
		case err == nil && model.WindowStatus(status) == model.WindowClosed:
			return ErrReportFrozen
		case err == nil:
			return ErrPlanRecorded
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("read report: %w", err)
		}
		if err := insertPlan(ctx, tx, r.WindowID, r.Payouts, now.UnixNano()); err != nil {
			return err
		}
		return upsertReport(ctx, tx, r, body, now)
	})
}

// Finalize atomically closes the window, freezes the report, appends it to
// history and releases the lease.
func (s *Store) Finalize(ctx context.Context, r *model.Report, owner string) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkLease(ctx, tx, r.WindowID, owner); err != nil {
			return err
		}
		if err := upsertReport(ctx, tx, r, body, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO report_history (window_id, body, saved_at) VALUES (?, ?, ?)`,
			r.WindowID, string(body), now.UnixNano()); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE windows SET status = ?, lock_owner = NULL, lock_expires = NULL WHERE id = ?`,
			string(model.WindowClosed), r.WindowID); err != nil {
			return fmt.Errorf("close window: %w", err)
		}
		return nil
	})
}

// LoadReport returns the stored report for a window.
func (s *Store) LoadReport(ctx context.Context, windowID string) (*model.Report, error) {
	return s.scanReport(s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE window_id = ?`, windowID))
}

// LatestReport returns the most recent closed report.
func (s *Store) LatestReport(ctx context.Context) (*model.Report, error) {
	return s.scanReport(s.db.QueryRowContext(ctx,
		`SELECT body FROM reports WHERE status = ? ORDER BY window_id DESC LIMIT 1`, string(model.WindowClosed)))
}

// RecentWinners returns the rank-1 handles of up to n closed windows before
// windowID, newest first. Windows without a winner yield "".
func (s *Store) RecentWinners(ctx context.Context, beforeID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT winner FROM reports WHERE status = ? AND window_id < ? ORDER BY window_id DESC LIMIT ?`,
		string(model.WindowClosed), beforeID, n)
	if err != nil {
		return nil, fmt.Errorf("query winners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LifetimeFees sums the fees collected by every closed window other than
// exceptID.
func (s *Store) LifetimeFees(ctx context.Context, exceptID string) (types.Lamports, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(collected), 0) FROM reports WHERE status = ? AND window_id <> ?`,
		string(model.WindowClosed), exceptID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum fees: %w", err)
	}
	return types.Lamports(total), nil
}

func (s *Store) scanReport(row *sql.Row) (*model.Report, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r model.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

func checkLease(ctx context.Context, tx *sql.Tx, windowID, owner string) error {
	var (
		status string
		holder sql.NullString
	)
	err := tx.QueryRowContext(ctx, `SELECT status, lock_owner FROM windows WHERE id = ?`, windowID).Scan(&status, &holder)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLeaseLost
	}
	if err != nil {
		return fmt.Errorf("read window: %w", err)
	}
	if model.WindowStatus(status) == model.WindowClosed {
		return ErrWindowClosed
	}
	if !holder.Valid || holder.String != owner {
		return ErrLeaseLost
	}
	return nil
}

func upsertReport(ctx context.Context, tx *sql.Tx, r *model.Report, body []byte, now time.Time) error {
	winner := ""
	if len(r.Standings) > 0 {
		winner = model.NormalizeHandle(r.Standings[0].Handle)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reports (window_id, status, winner, collected, body, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(window_id) DO UPDATE SET status = excluded.status, winner = excluded.winner,
		 collected = excluded.collected, body = excluded.body, updated_at = excluded.updated_at`,
		r.WindowID, string(r.Status), winner, int64(r.Fees.Collected), string(body), now.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}
	return nil
}

func affected(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}
