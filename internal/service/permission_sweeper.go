package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type expirySweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// PermissionSweeper periodically deactivates expired student permissions.
type PermissionSweeper struct {
	sweeper  expirySweeper
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
	started  bool
}

// NewPermissionSweeper builds a sweeper. An empty schedule disables it.
func NewPermissionSweeper(sweeper expirySweeper, schedule string, logger *zap.Logger) *PermissionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionSweeper{sweeper: sweeper, schedule: schedule, cron: cron.New(), logger: logger}
}

// Start registers the sweep and starts the scheduler.
func (s *PermissionSweeper) Start() error {
	if s.schedule == "" {
		s.logger.Info("permission expiry sweep disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("schedule permission sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("permission expiry sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running sweep to finish or for ctx to end.
func (s *PermissionSweeper) Stop(ctx context.Context) {
	if !s.started {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("permission sweep did not stop in time")
	}
}

func (s *PermissionSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.sweeper.SweepExpired(ctx); err != nil {
		s.logger.Error("permission expiry sweep failed", zap.Error(err))
	}
}
