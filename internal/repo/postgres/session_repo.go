package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivankudzin/authgate/internal/domain/model"
	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
)

// SessionRepo is the durable half of the resolver's layered lookup. Every
// I/O failure is reported as ErrStoreUnavailable so callers can tell a
// broken store from a missing row.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) FindByToken(ctx context.Context, token string) (model.Session, error) {
	if r.pool == nil {
		return model.Session{}, fmt.Errorf("%w: postgres pool is nil", authsvc.ErrStoreUnavailable)
	}
	if strings.TrimSpace(token) == "" {
		return model.Session{}, authsvc.ErrInvalidInput
	}

	var session model.Session
	err := r.pool.QueryRow(ctx, `
SELECT s.token, s.user_id, s.expires_at,
       u.id, u.email, u.name, u.image, u.email_verified, u.created_at, u.updated_at
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token = $1
`, token).Scan(
		&session.Token, &session.UserID, &session.ExpiresAt,
		&session.User.ID, &session.User.Email, &session.User.Name, &session.User.Image,
		&session.User.EmailVerified, &session.User.CreatedAt, &session.User.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, authsvc.ErrSessionNotFound
		}
		return model.Session{}, fmt.Errorf("%w: find session by token: %w", authsvc.ErrStoreUnavailable, err)
	}

	return session, nil
}

func (r *SessionRepo) UpsertSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("%w: postgres pool is nil", authsvc.ErrStoreUnavailable)
	}
	if strings.TrimSpace(token) == "" || strings.TrimSpace(userID) == "" {
		return authsvc.ErrInvalidInput
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO sessions (id, token, user_id, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (token) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	expires_at = EXCLUDED.expires_at,
	updated_at = NOW()
`, uuid.NewString(), token, userID, expiresAt.UTC()); err != nil {
		return fmt.Errorf("%w: upsert session: %w", authsvc.ErrStoreUnavailable, err)
	}

	return nil
}

func (r *SessionRepo) DeleteByToken(ctx context.Context, token string) error {
	if r.pool == nil {
		return fmt.Errorf("%w: postgres pool is nil", authsvc.ErrStoreUnavailable)
	}
	if strings.TrimSpace(token) == "" {
		return nil
	}

	if _, err := r.pool.Exec(ctx, `
DELETE FROM sessions
WHERE token = $1
`, token); err != nil {
		return fmt.Errorf("%w: delete session: %w", authsvc.ErrStoreUnavailable, err)
	}

	return nil
}

// DeleteExpiredBefore bulk-deletes sessions whose expiry is before the
// cutoff. Lookups already purge expired rows lazily; this exists for the
// periodic sweep only.
func (r *SessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("%w: postgres pool is nil", authsvc.ErrStoreUnavailable)
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM sessions
WHERE expires_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired sessions: %w", authsvc.ErrStoreUnavailable, err)
	}

	return tag.RowsAffected(), nil
}

// CreateIdentityWithSession writes the identity row and its first session
// in one transaction so a half-created first contact can never be observed.
func (r *SessionRepo) CreateIdentityWithSession(ctx context.Context, identity model.Identity, token string, expiresAt time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("%w: postgres pool is nil", authsvc.ErrStoreUnavailable)
	}
	if strings.TrimSpace(identity.ID) == "" || strings.TrimSpace(token) == "" {
		return authsvc.ErrInvalidInput
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", authsvc.ErrStoreUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
INSERT INTO users (id, email, name, image, email_verified, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (email) DO UPDATE SET
	name = EXCLUDED.name,
	image = EXCLUDED.image,
	email_verified = users.email_verified OR EXCLUDED.email_verified,
	updated_at = NOW()
`, identity.ID, identity.Email, identity.Name, identity.Image, identity.EmailVerified); err != nil {
		return fmt.Errorf("%w: insert identity: %w", authsvc.ErrStoreUnavailable, err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO sessions (id, token, user_id, expires_at, created_at, updated_at)
SELECT $1, $2, u.id, $4, NOW(), NOW()
FROM users u
WHERE u.email = $3
ON CONFLICT (token) DO UPDATE SET
	expires_at = EXCLUDED.expires_at,
	updated_at = NOW()
`, uuid.NewString(), token, identity.Email, expiresAt.UTC()); err != nil {
		return fmt.Errorf("%w: insert session: %w", authsvc.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit tx: %w", authsvc.ErrStoreUnavailable, err)
	}

	return nil
}
