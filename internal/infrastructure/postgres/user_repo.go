package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert keeps the stored profile in sync with the latest token claims.
// Empty claims never overwrite a known value.
func (r *UserRepository) Upsert(ctx context.Context, id domain.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET email      = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
		    name       = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		    updated_at = NOW()
		WHERE users.email IS DISTINCT FROM COALESCE(NULLIF(EXCLUDED.email, ''), users.email)
		   OR users.name  IS DISTINCT FROM COALESCE(NULLIF(EXCLUDED.name, ''), users.name)`,
		id.UserID, id.Email, id.Name,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`

	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
