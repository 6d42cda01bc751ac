// Package app holds the background jobs that run beside the HTTP server.
package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/service"
)

// Reconciler is the part of the reservation service the scheduler drives.
type Reconciler interface {
	Reconcile(ctx context.Context) (service.ReconcileReport, error)
}

// Scheduler periodically checks the seat ledger against the store and
// drops sessions that have long ended.
type Scheduler struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler running every interval, one minute
// when interval is not positive.
func NewScheduler(reconciler Reconciler, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the background tasks.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting background scheduler", zap.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.runReconcileTask(ctx)
}

// Stop stops the background tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) runReconcileTask(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reconcile(ctx)
		case <-s.stopChan:
			s.logger.Info("reconcile task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("reconcile task cancelled")
			return
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	report, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logger.Error("reconcile failed", zap.Error(err))
		return
	}
	level := zap.DebugLevel
	if report.Diverged > 0 {
		level = zap.WarnLevel
	}
	s.logger.Check(level, "reconcile completed").Write(
		zap.Int("checked", report.Checked),
		zap.Int("diverged", report.Diverged),
		zap.Int("forgotten", report.Forgotten))
}
