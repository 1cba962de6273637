package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/repository"
	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUser = `
	SELECT u.id, u.email, u.full_access, u.is_active, u.created_at, u.updated_at,
	       COALESCE(
	           array_agg(p.package_id ORDER BY p.granted_at, p.package_id)
	               FILTER (WHERE p.package_id IS NOT NULL),
	           '{}'
	       ) AS packages
	FROM users u
	LEFT JOIN user_packages p ON p.user_id = u.id`

func (r *UserRepository) FindActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := selectUser + `
	WHERE u.email = $1 AND u.is_active
	GROUP BY u.id`

	return scanUser(r.db.QueryRow(ctx, query, domain.NormalizeEmail(email)))
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := selectUser + `
	WHERE u.id = $1
	GROUP BY u.id`

	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	query := selectUser + `
	GROUP BY u.id
	ORDER BY u.created_at ASC, u.id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GrantPackages relies on the unique email index and the (user_id, package_id)
// primary key, so concurrent deliveries of the same grant cannot duplicate rows.
func (r *UserRepository) GrantPackages(ctx context.Context, email string, packageIDs []string) (*domain.User, error) {
	return r.inTx(ctx, func(tx pgx.Tx) (string, error) {
		var userID string
		err := tx.QueryRow(ctx, `
			INSERT INTO users (email, full_access, is_active)
			VALUES ($1, FALSE, TRUE)
			ON CONFLICT (email) DO UPDATE
			SET is_active = TRUE, updated_at = NOW()
			RETURNING id`,
			domain.NormalizeEmail(email),
		).Scan(&userID)
		if err != nil {
			return "", fmt.Errorf("upsert user: %w", err)
		}
		return userID, insertGrants(ctx, tx, userID, packageIDs)
	})
}

// Upsert keeps an existing full_access flag unless the input sets it.
func (r *UserRepository) Upsert(ctx context.Context, input repository.UpsertUserInput) (*domain.User, error) {
	return r.inTx(ctx, func(tx pgx.Tx) (string, error) {
		var userID string
		err := tx.QueryRow(ctx, `
			INSERT INTO users (email, full_access, is_active)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO UPDATE
			SET full_access = users.full_access OR EXCLUDED.full_access,
			    is_active   = EXCLUDED.is_active,
			    updated_at  = NOW()
			RETURNING id`,
			domain.NormalizeEmail(input.Email), input.FullAccess, input.IsActive,
		).Scan(&userID)
		if err != nil {
			return "", fmt.Errorf("upsert user: %w", err)
		}
		return userID, insertGrants(ctx, tx, userID, input.PackageIDs)
	})
}

func (r *UserRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) (string, error)) (*domain.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	u, err := func() (*domain.User, error) {
		userID, err := fn(tx)
		if err != nil {
			return nil, err
		}
		return scanUser(tx.QueryRow(ctx, selectUser+`
	WHERE u.id = $1
	GROUP BY u.id`, userID))
	}()
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return u, nil
}

func insertGrants(ctx context.Context, tx pgx.Tx, userID string, packageIDs []string) error {
	if len(packageIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO user_packages (user_id, package_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (user_id, package_id) DO NOTHING`,
		userID, packageIDs,
	)
	if err != nil {
		return fmt.Errorf("insert grants: %w", err)
	}
	return nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.FullAccess, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.Packages)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
