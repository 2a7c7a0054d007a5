package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LimiterCleaner drops idle rate limiter entries
type LimiterCleaner interface {
	Cleanup() int
}

// RevocationPurger forgets revocations of expired tokens
type RevocationPurger interface {
	PurgeExpiredRevocations(ctx context.Context) (int64, error)
}

// Scheduler runs periodic maintenance in the background
type Scheduler struct {
	limiter  LimiterCleaner
	purger   RevocationPurger
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a maintenance scheduler
func NewScheduler(limiter LimiterCleaner, purger RevocationPurger, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		limiter:  limiter,
		purger:   purger,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the maintenance loop
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the loop and waits for a running pass to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("Maintenance task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Maintenance task cancelled")
			return
		}
	}
}

// RunOnce performs one maintenance pass. Failures are logged; the next tick retries.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.limiter != nil {
		if removed := s.limiter.Cleanup(); removed > 0 {
			s.logger.Debug("Rate limiter cleaned", zap.Int("removed", removed))
		}
	}

	if s.purger != nil {
		ctx, cancel := context.WithTimeout(ctx, s.interval)
		defer cancel()
		purged, err := s.purger.PurgeExpiredRevocations(ctx)
		if err != nil {
			s.logger.Error("Failed to purge revoked tokens", zap.Error(err))
			return
		}
		if purged > 0 {
			s.logger.Info("Purged expired token revocations", zap.Int64("count", purged))
		}
	}
}
