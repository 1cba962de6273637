// Package cleanup runs background maintenance over stored login tokens.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

const batchSize = 500

type tokenPurger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// TokenReaper periodically deletes login tokens that expired more than
// retention ago. Retention must cover the rate limit window, since the
// limiter counts stored tokens.
type TokenReaper struct {
	tokens    tokenPurger
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewTokenReaper(tokens tokenPurger, logger *slog.Logger, interval, retention time.Duration) *TokenReaper {
	return &TokenReaper{
		tokens:    tokens,
		logger:    logger.With("component", "token_reaper"),
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Start blocks until ctx is done.
func (r *TokenReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "retention", r.retention)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

// reap drains expired tokens in batches so a single statement never holds
// locks on the whole table.
func (r *TokenReaper) reap(ctx context.Context) int {
	cutoff := r.now().Add(-r.retention)
	total := 0
	for ctx.Err() == nil {
		n, err := r.tokens.DeleteExpired(ctx, cutoff, batchSize)
		if err != nil {
			r.logger.Error("delete expired tokens", "error", err)
			break
		}
		total += n
		if n < batchSize {
			break
		}
	}
	if total > 0 {
		r.logger.Info("purged expired tokens", "count", total)
	}
	return total
}
