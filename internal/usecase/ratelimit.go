package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

// TokenCounter is the slice of the token store the rate limiter reads.
type TokenCounter interface {
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// RateLimiter caps login link issuance per user over a sliding window.
// Tokens are never deleted, so the token table doubles as the attempt log.
type RateLimiter struct {
	tokens      TokenCounter
	window      time.Duration
	maxRequests int
}

// NewRateLimiter returns a limiter. maxRequests <= 0 disables limiting.
func NewRateLimiter(tokens TokenCounter, window time.Duration, maxRequests int) *RateLimiter {
	return &RateLimiter{tokens: tokens, window: window, maxRequests: maxRequests}
}

// Check returns domain.ErrRateLimited when the user already holds maxRequests
// tokens created within the window ending at now.
func (l *RateLimiter) Check(ctx context.Context, userID string, now time.Time) error {
	if l.maxRequests <= 0 || l.window <= 0 {
		return nil
	}
	n, err := l.tokens.CountCreatedSince(ctx, userID, now.Add(-l.window))
	if err != nil {
		return fmt.Errorf("count recent tokens: %w", err)
	}
	if n >= l.maxRequests {
		return domain.ErrRateLimited
	}
	return nil
}
