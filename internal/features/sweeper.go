package features

import (
	"context"
	"time"

	"go.uber.org/zap"

	repo "malasakit/internal/repo"
)

// Sweeper closes out calls that stopped calling back: pending responses are
// abandoned and idle respondents with nothing recorded are deleted.
type Sweeper struct {
	repo     repo.Repository
	logger   *zap.Logger
	age      time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(repo *repo.Repository, cfg *Config, logger *zap.Logger) *Sweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		repo:     *repo,
		logger:   logger,
		age:      cfg.SweepAge,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	sw.logger.Info("Starting sweeper",
		zap.Duration("age", sw.age),
		zap.Duration("interval", sw.interval))

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("Sweeper stopped")
			return nil
		case <-ticker.C:
			if _, _, err := sw.Sweep(ctx); err != nil {
				sw.logger.Error("Sweep failed", zap.Error(err))
			}
		}
	}
}

func (sw *Sweeper) Sweep(ctx context.Context) (abandoned, deleted int64, err error) {
	cutoff := sw.now().Add(-sw.age)

	abandoned, err = sw.repo.Response.SweepPending(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	deleted, err = sw.repo.Respondent.SweepIdle(ctx, cutoff)
	if err != nil {
		return abandoned, 0, err
	}
	if abandoned > 0 || deleted > 0 {
		sw.logger.Info("Swept abandoned calls",
			zap.Int64("abandonedResponses", abandoned),
			zap.Int64("deletedRespondents", deleted),
			zap.Time("cutoff", cutoff))
	}
	return abandoned, deleted, nil
}
