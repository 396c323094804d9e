// Package service assembles the settlement pipeline from configuration and
// exposes the operations used by the CLI and the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/shillbot/internal/adapters/report"
	"github.com/okian/shillbot/internal/adapters/repository"
	"github.com/okian/shillbot/internal/adapters/solana"
	"github.com/okian/shillbot/internal/config"
	"github.com/okian/shillbot/internal/domain/antigaming"
	"github.com/okian/shillbot/internal/domain/eligibility"
	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/scoring"
	"github.com/okian/shillbot/internal/domain/settlement"
	"github.com/okian/shillbot/internal/domain/window"
	"github.com/okian/shillbot/pkg/logger"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns the store, chain clients and coordinator of one process.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	store       *repository.Store
	rpc         *solana.Client
	calendar    *window.Calendar
	coordinator *settlement.Coordinator
	reports     *report.Writer

	// Overrides
	executor settlement.Executor
	now      func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithExecutor replaces the transfer executor chosen from configuration.
func WithExecutor(e settlement.Executor) Option {
	return func(s *Service) {
		s.executor = e
	}
}

// WithClock overrides the time source of the store and coordinator.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and wires the pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	params, err := s.cfg.SettlementParams()
	if err != nil {
		return err
	}
	cal, err := s.cfg.Calendar()
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	rpc, err := solana.NewClient(s.cfg.Solana.RPCURL,
		solana.WithTimeout(s.cfg.Solana.RPCTimeout),
		solana.WithRetryPolicy(s.cfg.Solana.MaxAttempts, 500*time.Millisecond, 8*time.Second),
		solana.WithLogger(s.logger.Named("rpc")),
	)
	if err != nil {
		return err
	}

	executor := s.executor
	if executor == nil {
		if s.cfg.DryRun {
			executor = solana.NewDryRunExecutor(s.logger.Named("transfer"))
		} else {
			executor = solana.NewCLIExecutor(s.cfg.Solana.KeypairPath, s.cfg.Solana.RPCURL,
				solana.WithBinary(s.cfg.Solana.CLIPath),
				solana.WithExecutorLogger(s.logger.Named("transfer")),
			)
		}
	}

	store, err := repository.Open(ctx, s.cfg.StorePath(),
		repository.WithClock(s.now),
		repository.WithLogger(s.logger.Named("store")),
	)
	if err != nil {
		return err
	}

	policy := s.cfg.Policy()
	pipeline := settlement.NewPipeline(
		eligibility.NewFilter(s.cfg.EligibilityOptions(rpc, s.logger.Named("eligibility"))...),
		antigaming.NewNormalizer(policy),
		scoring.NewScorer(policy, s.cfg.ScoringOptions()...),
		params.TopN,
	)
	reports := report.NewWriter(s.cfg.ReportDir, s.logger.Named("report"))

	coordinator, err := settlement.NewCoordinator(params, settlement.Dependencies{
		Calendar: cal,
		Store:    store,
		Posts:    store,
		Treasury: rpc,
		Executor: executor,
		Pipeline: pipeline,
	},
		settlement.WithClock(s.now),
		settlement.WithReportSink(reports),
		settlement.WithLogger(s.logger.Named("settlement")),
	)
	if err != nil {
		_ = store.Close()
		return err
	}

	s.store = store
	s.rpc = rpc
	s.calendar = cal
	s.reports = reports
	s.coordinator = coordinator
	s.started = true

	s.logger.Info(ctx, "shillbot service started",
		logger.String("db", s.cfg.StorePath()),
		logger.Bool("dryRun", executor.DryRun()),
		logger.Any("closeSlots", cal.Specs()),
	)
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "close store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "shillbot service stopped")
}

// Calendar returns the close calendar. Nil before Start.
func (s *Service) Calendar() *window.Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calendar
}

func (s *Service) running() (*settlement.Coordinator, *repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.coordinator, s.store, nil
}

// CloseWindow settles a window. See settlement.Coordinator.CloseWindow.
func (s *Service) CloseWindow(ctx context.Context, windowID string, force bool) (*model.Report, error) {
	c, _, err := s.running()
	if err != nil {
		return nil, err
	}
	return c.CloseWindow(ctx, windowID, force)
}

// ScorePreview ranks a range without settling it.
func (s *Service) ScorePreview(ctx context.Context, since, until time.Time) (*model.Ranked, error) {
	c, _, err := s.running()
	if err != nil {
		return nil, err
	}
	return c.ScorePreview(ctx, since, until)
}

// LatestReport returns the most recently closed window's report.
func (s *Service) LatestReport(ctx context.Context) (*model.Report, error) {
	_, st, err := s.running()
	if err != nil {
		return nil, err
	}
	return st.LatestReport(ctx)
}

// LoadReport returns the stored report of a window.
func (s *Service) LoadReport(ctx context.Context, windowID string) (*model.Report, error) {
	_, st, err := s.running()
	if err != nil {
		return nil, err
	}
	return st.LoadReport(ctx, windowID)
}

// PreviewPayouts returns the plan a window would get if it closed now.
// An empty windowID means the open window.
func (s *Service) PreviewPayouts(ctx context.Context, windowID string) (*model.Report, error) {
	c, _, err := s.running()
	if err != nil {
		return nil, err
	}
	return c.PreviewPayouts(ctx, windowID)
}
