package auth

import (
	"context"
	"errors"
	"time"

	"github.com/ivankudzin/authgate/internal/domain/model"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNoToken             = errors.New("no session token")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidLogin        = errors.New("invalid credentials")
	ErrSessionNotFound     = errors.New("session not found")
	ErrIdentityNotFound    = errors.New("identity not found")
	ErrStoreUnavailable    = errors.New("session store unavailable")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// SessionStore is the durable session layer behind the resolver.
// Implementations must keep "not found" (ErrSessionNotFound) distinct from
// I/O failure (ErrStoreUnavailable).
type SessionStore interface {
	FindByToken(ctx context.Context, token string) (model.Session, error)
	UpsertSession(ctx context.Context, token, userID string, expiresAt time.Time) error
	DeleteByToken(ctx context.Context, token string) error

	// CreateIdentityWithSession writes both rows in one transaction for the
	// first-contact path.
	CreateIdentityWithSession(ctx context.Context, identity model.Identity, token string, expiresAt time.Time) error
}

// IdentityStore holds the durable identity copies the resolver keeps
// aligned with the provider's view.
type IdentityStore interface {
	FindIdentityByEmail(ctx context.Context, email string) (model.Identity, error)
	CreateIdentity(ctx context.Context, identity model.Identity) error
	UpdateIdentity(ctx context.Context, id string, patch IdentityPatch) error
}

// IdentityPatch is a partial identity update; nil fields are left untouched.
// EmailVerified only ever moves false to true.
type IdentityPatch struct {
	Name          *string
	Image         *string
	EmailVerified *bool
}

// Provider is the external authority that mints and validates tokens.
// Implementations must report "provider said no" (ErrInvalidLogin,
// ErrInvalidToken) separately from "provider could not be reached"
// (ErrProviderUnavailable).
type Provider interface {
	ExchangeCredentials(ctx context.Context, email, password string) (ProviderSession, error)
	Register(ctx context.Context, email, password, name string) (ProviderSession, error)
	ValidateToken(ctx context.Context, token string) (ProviderSession, error)
	Invalidate(ctx context.Context, token string) error
	SendMagicLink(ctx context.Context, email string) error
	VerifyMagicLink(ctx context.Context, token string) (ProviderSession, error)
}

// ProviderSession is the provider's answer to a successful exchange or
// validation. A zero ExpiresAt means the provider did not state a session
// lifetime and the resolver applies its default.
type ProviderSession struct {
	User      model.Identity
	Token     string
	ExpiresAt time.Time
}
