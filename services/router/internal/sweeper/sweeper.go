// Package sweeper periodically claims maker fees held for orders that have
// left the book. Claims are permissionless; the sweeper only schedules them.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/router"
	"github.com/robfig/cron/v3"
)

type Claimer interface {
	BatchClaim(ctx context.Context, keys []domain.OrderKey) (router.ClaimSummary, error)
}

type PendingSource interface {
	PendingKeys(ctx context.Context, limit int) ([]domain.OrderKey, error)
}

type Config struct {
	// Schedule is a standard five field cron expression or a descriptor
	// such as "@every 1m".
	Schedule  string
	BatchSize int
	Timeout   time.Duration
}

type Sweeper struct {
	cron    *cron.Cron
	claimer Claimer
	pending PendingSource
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	last    router.ClaimSummary
}

func New(claimer Claimer, pending PendingSource, cfg Config, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Sweeper{
		cron:    cron.New(),
		claimer: claimer,
		pending: pending,
		cfg:     cfg,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.tick); err != nil {
		return nil, fmt.Errorf("register sweep %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.cfg.Schedule, "batch_size", s.cfg.BatchSize)
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
}

// RunOnce claims one batch of the oldest pending fees. Overlapping calls
// return immediately with an empty summary.
func (s *Sweeper) RunOnce(ctx context.Context) (router.ClaimSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("sweep already running")
		return router.ClaimSummary{}, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	keys, err := s.pending.PendingKeys(ctx, s.cfg.BatchSize)
	if err != nil {
		return router.ClaimSummary{}, fmt.Errorf("list pending fees: %w", err)
	}
	if len(keys) == 0 {
		return router.ClaimSummary{}, nil
	}

	summary, err := s.claimer.BatchClaim(ctx, keys)
	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	s.logger.Info("sweep completed",
		"requested", summary.Requested,
		"claimed", summary.Claimed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, err
}

func (s *Sweeper) LastSummary() router.ClaimSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
