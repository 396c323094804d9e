package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/shillbot/internal/adapters/report"
	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/pkg/logger"
)

const exportStamp = "20060102_150405"

// ExportPayouts writes the payout plan of windowID as CSV under the report
// directory and returns the file path. Closed windows export their final
// ledger; open ones a preview.
func (s *Service) ExportPayouts(ctx context.Context, windowID string) (string, error) {
	c, _, err := s.running()
	if err != nil {
		return "", err
	}
	r, err := c.PreviewPayouts(ctx, windowID)
	if err != nil {
		return "", err
	}
	body, err := report.PayoutsCSV(r)
	if err != nil {
		return "", fmt.Errorf("render payouts: %w", err)
	}
	name := fmt.Sprintf("payouts_%s_%s.csv", r.WindowID, s.now().UTC().Format(exportStamp))
	path, err := s.reportWriter().Export(ctx, name, body)
	if err != nil {
		return "", err
	}
	s.logger.Info(ctx, "payout plan exported",
		logger.String("window_id", r.WindowID), logger.Int("instructions", len(r.Payouts)))
	return path, nil
}

// ExportInterim writes every interim post created in [since, until) with
// its author's preview rank as CSV and returns the file path.
func (s *Service) ExportInterim(ctx context.Context, since, until time.Time) (string, error) {
	c, st, err := s.running()
	if err != nil {
		return "", err
	}
	ranked, err := c.ScorePreview(ctx, since, until)
	if err != nil {
		return "", err
	}
	posts, err := st.Posts(ctx, since, until, model.ProvenanceInterim)
	if err != nil {
		return "", fmt.Errorf("read interim posts: %w", err)
	}
	regs, err := st.Registrations(ctx)
	if err != nil {
		return "", fmt.Errorf("read registrations: %w", err)
	}
	body, err := report.InterimCSV(posts, regs, ranked)
	if err != nil {
		return "", fmt.Errorf("render interim: %w", err)
	}
	return s.reportWriter().Export(ctx, "interim_"+s.now().UTC().Format(exportStamp)+".csv", body)
}

func (s *Service) reportWriter() *report.Writer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reports
}
