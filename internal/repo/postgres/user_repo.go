package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/authgate/internal/domain/model"
	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) FindIdentityByEmail(ctx context.Context, email string) (model.Identity, error) {
	if r.pool == nil {
		return model.Identity{}, fmt.Errorf("%w: postgres pool is nil", authsvc.ErrStoreUnavailable)
	}
	if strings.TrimSpace(email) == "" {
		return model.Identity{}, authsvc.ErrInvalidInput
	}

	var identity model.Identity
	err := r.pool.QueryRow(ctx, `
SELECT id, email, name, image, email_verified, created_at, updated_at
FROM users
WHERE email = $1
`, email).Scan(
		&identity.ID, &identity.Email, &identity.Name, &identity.Image,
		&identity.EmailVerified, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Identity{}, authsvc.ErrIdentityNotFound
		}
		return model.Identity{}, fmt.Errorf("%w: find identity by email: %w", authsvc.ErrStoreUnavailable, err)
	}

	return identity, nil
}

func (r *UserRepo) CreateIdentity(ctx context.Context, identity model.Identity) error {
	if r.pool == nil {
		return fmt.Errorf("%w: postgres pool is nil", authsvc.ErrStoreUnavailable)
	}
	if strings.TrimSpace(identity.ID) == "" || strings.TrimSpace(identity.Email) == "" {
		return authsvc.ErrInvalidInput
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO users (id, email, name, image, email_verified, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (email) DO UPDATE SET
	name = EXCLUDED.name,
	image = EXCLUDED.image,
	email_verified = users.email_verified OR EXCLUDED.email_verified,
	updated_at = NOW()
`, identity.ID, identity.Email, identity.Name, identity.Image, identity.EmailVerified); err != nil {
		return fmt.Errorf("%w: create identity: %w", authsvc.ErrStoreUnavailable, err)
	}

	return nil
}

// UpdateIdentity applies a partial update. email_verified can only be
// raised, never cleared, so a stale provider response cannot revert
// verification.
func (r *UserRepo) UpdateIdentity(ctx context.Context, id string, patch authsvc.IdentityPatch) error {
	if r.pool == nil {
		return fmt.Errorf("%w: postgres pool is nil", authsvc.ErrStoreUnavailable)
	}
	if strings.TrimSpace(id) == "" {
		return authsvc.ErrInvalidInput
	}
	if patch.Name == nil && patch.Image == nil && patch.EmailVerified == nil {
		return nil
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE users
SET name = COALESCE($2, name),
    image = COALESCE($3, image),
    email_verified = email_verified OR COALESCE($4, FALSE),
    updated_at = NOW()
WHERE id = $1
`, id, patch.Name, patch.Image, patch.EmailVerified); err != nil {
		return fmt.Errorf("%w: update identity: %w", authsvc.ErrStoreUnavailable, err)
	}

	return nil
}
