package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/metrics"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/staging"
)

// SweepResult counts what one sweep removed.
type SweepResult struct {
	StagedDatasets int `json:"staged_datasets"`
	Sessions       int `json:"sessions"`
}

// Sweeper removes abandoned staged uploads and expired sessions.
type Sweeper interface {
	// SweepOnce runs one pass over both stores.
	SweepOnce(ctx context.Context) (SweepResult, error)

	// RunScheduler starts a background goroutine that sweeps on the given interval.
	// It runs immediately on startup, then repeats every interval.
	// Cancel the context to stop the scheduler.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type sweeper struct {
	staging    staging.Store
	sessions   sessions.Store
	stagingTTL time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewSweeper creates a Sweeper. A nil sessionStore limits it to staged uploads.
func NewSweeper(stagingStore staging.Store, sessionStore sessions.Store, stagingTTL time.Duration, m *metrics.Metrics, logger *zap.Logger) Sweeper {
	return &sweeper{
		staging:    stagingStore,
		sessions:   sessionStore,
		stagingTTL: stagingTTL,
		metrics:    m,
		logger:     logger.Named("sweeper"),
	}
}

var _ Sweeper = (*sweeper)(nil)

func (s *sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	var errs []error

	staged, err := s.staging.Sweep(ctx, s.stagingTTL)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to sweep staging: %w", err))
	}
	result.StagedDatasets = staged
	s.metrics.ObserveStagingSwept(staged)

	if s.sessions != nil {
		expired, err := s.sessions.Sweep(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to sweep sessions: %w", err))
		}
		result.Sessions = expired
		s.metrics.ObserveSessionsSwept(expired)
	}

	return result, errors.Join(errs...)
}

func (s *sweeper) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Sweep scheduler started",
			zap.Duration("interval", interval),
			zap.Duration("staging_ttl", s.stagingTTL))

		// Run immediately on startup, then at each interval
		s.sweep(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Sweep scheduler stopped")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *sweeper) sweep(ctx context.Context) {
	result, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
	}
	if result.StagedDatasets > 0 || result.Sessions > 0 {
		s.logger.Info("Sweep removed stale data",
			zap.Int("staged_datasets", result.StagedDatasets),
			zap.Int("sessions", result.Sessions))
	}
}
