package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

type UserRepository interface {
	FindActiveByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)

	// Upsert creates or updates a user by email and adds grants in one transaction.
	Upsert(ctx context.Context, input UpsertUserInput) (*domain.User, error)

	// GrantPackages finds or creates the user by email, reactivates it and adds
	// the packages it does not hold yet. Safe to call repeatedly.
	GrantPackages(ctx context.Context, email string, packageIDs []string) (*domain.User, error)
}

type UpsertUserInput struct {
	Email      string
	FullAccess bool
	IsActive   bool
	PackageIDs []string
}

type CreateTokenInput struct {
	UserID    string
	TokenHash string
	// CreatedAt comes from the caller's clock so that rate-limit windows,
	// which are computed from the same clock, line up with stored rows.
	CreatedAt        time.Time
	ExpiresAt        time.Time
	CreatedIP        *string
	CreatedUserAgent *string
}

type TokenRepository interface {
	Create(ctx context.Context, input CreateTokenInput) (*domain.MagicToken, error)
	FindByHash(ctx context.Context, tokenHash string) (*domain.MagicToken, error)

	// MarkUsed sets used_at only if the token is still unused and unexpired at now.
	// Returns domain.ErrTokenInvalid if another redemption won the race.
	MarkUsed(ctx context.Context, tokenID string, now time.Time) error

	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error)
}
