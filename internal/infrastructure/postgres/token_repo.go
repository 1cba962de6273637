package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicateTokenHash = errors.New("token hash already exists")

type TokenRepository struct {
	db DB
}

func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const tokenColumns = `id, user_id, token_hash, created_at, expires_at, used_at, created_ip, created_user_agent`

func (r *TokenRepository) Create(ctx context.Context, input repository.CreateTokenInput) (*domain.MagicToken, error) {
	query := `
		INSERT INTO magic_link_tokens (user_id, token_hash, created_at, expires_at, created_ip, created_user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + tokenColumns

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := r.db.QueryRow(ctx, query,
		input.UserID,
		input.TokenHash,
		createdAt.UTC(),
		input.ExpiresAt.UTC(),
		input.CreatedIP,
		input.CreatedUserAgent,
	)

	t, err := scanToken(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateTokenHash
		}
		return nil, fmt.Errorf("create token: %w", err)
	}
	return t, nil
}

func (r *TokenRepository) FindByHash(ctx context.Context, tokenHash string) (*domain.MagicToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM magic_link_tokens WHERE token_hash = $1`
	return scanToken(r.db.QueryRow(ctx, query, tokenHash))
}

// MarkUsed is a compare-and-set: of two concurrent redemptions exactly one
// sees a row affected.
func (r *TokenRepository) MarkUsed(ctx context.Context, tokenID string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE magic_link_tokens
		SET    used_at = $2
		WHERE  id = $1
		  AND  used_at IS NULL
		  AND  expires_at > $2`,
		tokenID, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenInvalid
	}
	return nil
}

func (r *TokenRepository) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM magic_link_tokens WHERE user_id = $1 AND created_at >= $2`,
		userID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// DeleteExpired removes up to limit tokens that expired before cutoff,
// redeemed or not. Concurrent purgers skip rows locked by each other.
func (r *TokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM magic_link_tokens
		WHERE id IN (
			SELECT id FROM magic_link_tokens
			WHERE  expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, cutoff.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanToken(row rowScanner) (*domain.MagicToken, error) {
	var t domain.MagicToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt,
		&t.UsedAt, &t.CreatedIP, &t.CreatedUserAgent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	if t.UsedAt != nil {
		u := t.UsedAt.UTC()
		t.UsedAt = &u
	}
	return &t, nil
}
