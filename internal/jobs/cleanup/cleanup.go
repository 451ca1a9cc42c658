package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Job deletes expired session rows in bulk. Expiry is already enforced
// lazily on every lookup, so the sweep only keeps the sessions table from
// accumulating dead rows; correctness never depends on it running.
type Job struct {
	sweeper expiredSessionSweeper
	now     func() time.Time
	logger  *zap.Logger
}

type expiredSessionSweeper interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func New(sweeper expiredSessionSweeper, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		sweeper: sweeper,
		now:     time.Now,
		logger:  logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.sweeper == nil {
		return nil
	}

	cutoff := j.now().UTC()
	rows, err := j.sweeper.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep expired sessions: %w", err)
	}
	if rows > 0 {
		j.logger.Info("expired session sweep completed", zap.Int64("deleted", rows))
	}

	return nil
}

// RunEvery blocks and sweeps on the interval until the context is done.
func (j *Job) RunEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("expired session sweep failed", zap.Error(err))
			}
		}
	}
}
