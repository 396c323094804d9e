package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/shillbot/internal/domain/model"
)

// UpsertRegistration stores or replaces the wallet bound to a handle.
// An older registration never overwrites a newer one.
func (s *Store) UpsertRegistration(ctx context.Context, r model.Registration) error {
	key := model.NormalizeHandle(r.Handle)
	if key == "" {
		return fmt.Errorf("registration without handle")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registrations (handle, display, wallet, registered_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(handle) DO UPDATE SET display = excluded.display, wallet = excluded.wallet,
		 registered_at = excluded.registered_at
		 WHERE excluded.registered_at >= registrations.registered_at`,
		key, strings.TrimSpace(r.Handle), strings.TrimSpace(r.Wallet), unixNano(r.RegisteredAt))
	if err != nil {
		return fmt.Errorf("upsert registration: %w", err)
	}
	return nil
}

// Registrations returns every stored registration.
func (s *Store) Registrations(ctx context.Context) ([]model.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT display, wallet, registered_at FROM registrations ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []model.Registration
	for rows.Next() {
		var (
			r  model.Registration
			at int64
		)
		if err := rows.Scan(&r.Handle, &r.Wallet, &at); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		r.RegisteredAt = fromUnixNano(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertPost stores a post pull. A later pull of the same post and
// provenance refreshes its engagement.
func (s *Store) InsertPost(ctx context.Context, p model.Post) error {
	prov := p.Provenance
	if prov == "" {
		prov = model.ProvenanceInterim
	}
	media := 0
	if p.HasMedia {
		media = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (post_id, provenance, handle, text, likes, reposts, quotes, replies, views, has_media, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(post_id, provenance) DO UPDATE SET likes = excluded.likes, reposts = excluded.reposts,
		 quotes = excluded.quotes, replies = excluded.replies, views = excluded.views, has_media = excluded.has_media`,
		p.PostID, string(prov), p.Handle, p.Text,
		p.Engagement.Likes, p.Engagement.Reposts, p.Engagement.Quotes, p.Engagement.Replies, p.Engagement.Views,
		media, unixNano(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert post %s: %w", p.PostID, err)
	}
	return nil
}

// Posts returns posts of provenance created in [since, until), oldest first.
func (s *Store) Posts(ctx context.Context, since, until time.Time, prov model.Provenance) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id, handle, text, likes, reposts, quotes, replies, views, has_media, created_at
		 FROM posts WHERE provenance = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at, post_id`,
		string(prov), since.UnixNano(), until.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var out []model.Post
	for rows.Next() {
		var (
			p     model.Post
			media int
			at    int64
		)
		e := &p.Engagement
		if err := rows.Scan(&p.PostID, &p.Handle, &p.Text, &e.Likes, &e.Reposts, &e.Quotes,
			&e.Replies, &e.Views, &media, &at); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.HasMedia, p.CreatedAt, p.Provenance = media == 1, fromUnixNano(at), prov
		out = append(out, p)
	}
	return out, rows.Err()
}
