package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger deletes expired refresh and reset tokens.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Janitor periodically removes expired tokens.
type Janitor struct {
	purger   Purger
	interval time.Duration
	logger   *zap.Logger
}

func NewJanitor(purger Purger, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{purger: purger, interval: interval, logger: logger}
}

// Run purges once per interval until ctx is cancelled. A non-positive
// interval disables the janitor.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Info("Token janitor disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.purge(ctx)
		}
	}
}

func (j *Janitor) purge(ctx context.Context) {
	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("Failed to purge expired tokens", zap.Error(err))
		}
		return
	}
	if n > 0 {
		j.logger.Info("Purged expired tokens", zap.Int64("deleted", n))
	}
}
