package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type bookingSweeperService interface {
	ExpireStale(ctx context.Context) (int, error)
	RedriveRefunds(ctx context.Context) (int, error)
}

// Sweeper periodically expires stale pending bookings and re-drives refunds
// stuck in refund_pending.
type Sweeper struct {
	cron     *cron.Cron
	bookings bookingSweeperService
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSweeper constructs the sweeper on the given cron schedule spec, e.g.
// "@every 5m".
func NewSweeper(bookings bookingSweeperService, schedule string, logger *zap.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cron:     cron.New(),
		bookings: bookings,
		schedule: schedule,
		timeout:  time.Minute,
		logger:   logger,
	}
}

// Start registers the sweep job and launches the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("booking sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("booking sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	expired, err := s.bookings.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("failed to expire stale bookings", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("expired stale bookings", zap.Int("count", expired))
	}

	redriven, err := s.bookings.RedriveRefunds(ctx)
	if err != nil {
		s.logger.Error("failed to redrive refunds", zap.Error(err))
	} else if redriven > 0 {
		s.logger.Info("redrove pending refunds", zap.Int("count", redriven))
	}
}
