package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paywave/paywave/internal/logging"
)

const sweepTimeout = 2 * time.Minute

// Sweeper periodically reconciles transfers stuck in pending.
type Sweeper struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	logger   *slog.Logger
}

func NewSweeper(service *Service, schedule string, logger *slog.Logger) *Sweeper {
	logger = logging.Component(logger, "sweeper")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Sweeper{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		service:  service,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.Run); err != nil {
		return err
	}
	s.logger.Info("scheduled pending transfer sweep", slog.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Run performs one sweep.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	summary, err := s.service.ReconcilePending(ctx)
	if err != nil {
		s.logger.Error("pending transfer sweep failed", slog.Any("error", err))
		return
	}
	if summary.Checked > 0 {
		s.logger.Info("pending transfer sweep",
			slog.Int("checked", summary.Checked),
			slog.Int("settled", summary.Settled),
			slog.Int("errors", summary.Errors),
		)
	}
}

// Stop stops the scheduler and waits for a running sweep until ctx expires.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
