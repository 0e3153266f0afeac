// internal/scheduler/scheduler.go

// Package scheduler drives the periodic jobs: payment reconciliation,
// escrow auto-release and dispute auto-close. Every job is idempotent at the
// service layer, so an overlapping or repeated tick is harmless.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/services"
)

const (
	autoReleaseInterval = time.Hour
	autoCloseInterval   = time.Hour
)

type Scheduler struct {
	config    *config.Config
	reconcile *services.ReconcileService
	escrow    *services.EscrowService
	disputes  *services.DisputeService

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, reconcile *services.ReconcileService, escrow *services.EscrowService, disputes *services.DisputeService) *Scheduler {
	return &Scheduler{
		config:    cfg,
		reconcile: reconcile,
		escrow:    escrow,
		disputes:  disputes,
	}
}

// Start launches the job loops. Call Stop to shut them down.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	reconcileInterval := time.Duration(s.config.Reconcile.Interval) * time.Minute
	if reconcileInterval <= 0 {
		reconcileInterval = 5 * time.Minute
	}

	s.run(ctx, "reconcile", reconcileInterval, func(ctx context.Context) error {
		_, err := s.reconcile.Run(ctx)
		return err
	})
	s.run(ctx, "escrow_auto_release", autoReleaseInterval, func(ctx context.Context) error {
		_, err := s.escrow.ProcessAutoReleases(ctx)
		return err
	})
	s.run(ctx, "dispute_auto_close", autoCloseInterval, func(ctx context.Context) error {
		_, err := s.disputes.ProcessAutoCloses(ctx)
		return err
	})

	logrus.WithField("reconcile_interval", reconcileInterval).Info("Scheduler started")
}

func (s *Scheduler) run(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := job(ctx); err != nil && ctx.Err() == nil {
					logrus.WithError(err).WithField("job", name).Error("Scheduled job failed")
				}
			}
		}
	}()
}

// Stop cancels the loops and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logrus.Info("Scheduler stopped")
}
