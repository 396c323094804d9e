package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/pkg/logger"
	"github.com/okian/shillbot/pkg/metrics"
)

// Batch is the JSON document accepted by Ingest.
type Batch struct {
	Registrations []RegistrationRecord `json:"registrations"`
	Posts         []PostRecord         `json:"posts"`
}

// RegistrationRecord binds a handle to a wallet.
type RegistrationRecord struct {
	Handle       string    `json:"handle"`
	Wallet       string    `json:"wallet"`
	RegisteredAt time.Time `json:"registered_at"`
}

// PostRecord is one post pull.
type PostRecord struct {
	Handle     string           `json:"handle"`
	PostID     string           `json:"post_id"`
	Text       string           `json:"text"`
	Engagement model.Engagement `json:"engagement"`
	HasMedia   bool             `json:"has_media"`
	CreatedAt  time.Time        `json:"created_at"`
	Provenance string           `json:"provenance"`
}

// IngestResult counts what a batch stored.
type IngestResult struct {
	Registrations int `json:"registrations"`
	Posts         int `json:"posts"`
}

// Ingest stores registrations and post pulls. Rows are written one by one;
// a failure leaves earlier rows stored, and re-ingesting is idempotent.
func (s *Service) Ingest(ctx context.Context, b Batch) (IngestResult, error) {
	var res IngestResult
	_, st, err := s.running()
	if err != nil {
		return res, err
	}
	for _, r := range b.Registrations {
		if err := st.UpsertRegistration(ctx, model.Registration{
			Handle:       r.Handle,
			Wallet:       r.Wallet,
			RegisteredAt: r.RegisteredAt,
		}); err != nil {
			return res, fmt.Errorf("registration %q: %w", r.Handle, err)
		}
		res.Registrations++
	}
	byProv := map[model.Provenance]int{}
	for _, p := range b.Posts {
		prov := model.Provenance(p.Provenance)
		switch prov {
		case "":
			prov = model.ProvenanceInterim
		case model.ProvenanceInterim, model.ProvenanceOfficial:
		default:
			return res, fmt.Errorf("post %q: unknown provenance %q", p.PostID, p.Provenance)
		}
		if err := st.InsertPost(ctx, model.Post{
			Handle:     p.Handle,
			PostID:     p.PostID,
			Text:       p.Text,
			Engagement: p.Engagement,
			HasMedia:   p.HasMedia,
			CreatedAt:  p.CreatedAt,
			Provenance: prov,
		}); err != nil {
			return res, fmt.Errorf("post %q: %w", p.PostID, err)
		}
		byProv[prov]++
		res.Posts++
	}
	for prov, n := range byProv {
		metrics.RecordPostsIngested(string(prov), n)
	}
	s.logger.Info(ctx, "ingested batch",
		logger.Int("registrations", res.Registrations),
		logger.Int("posts", res.Posts),
	)
	return res, nil
}

// IngestFile reads a Batch from a JSON file and ingests it.
func (s *Service) IngestFile(ctx context.Context, path string) (IngestResult, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("read batch: %w", err)
	}
	var b Batch
	if err := json.Unmarshal(body, &b); err != nil {
		return IngestResult{}, fmt.Errorf("decode batch %s: %w", path, err)
	}
	return s.Ingest(ctx, b)
}
