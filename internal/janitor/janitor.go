// Package janitor periodically removes credential records that can no
// longer be used and resets stale rate limit windows.
package janitor

import (
	"context"
	"log/slog"
	"time"
)

type Purger interface {
	Purge(ctx context.Context) (codes, tokens int64, err error)
}

type Cleaner interface {
	Cleanup() int
}

type Janitor struct {
	purger   Purger
	limiters []Cleaner
	interval time.Duration
	logger   *slog.Logger
}

func New(p Purger, interval time.Duration, logger *slog.Logger, limiters ...Cleaner) *Janitor {
	return &Janitor{
		purger:   p,
		limiters: limiters,
		interval: interval,
		logger:   logger,
	}
}

// Run ticks every interval until ctx is cancelled. It always returns nil so
// a failed pass never tears down the server it runs beside.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	codes, tokens, err := j.purger.Purge(ctx)
	if err != nil {
		j.logger.Error("purge credentials", "error", err)
	} else if codes > 0 || tokens > 0 {
		j.logger.Info("purged credentials", "verification_codes", codes, "refresh_tokens", tokens)
	}

	for _, l := range j.limiters {
		l.Cleanup()
	}
}
