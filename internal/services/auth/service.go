package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/authgate/internal/domain/model"
)

const (
	// DefaultSessionTTL applies when the provider does not state a session
	// lifetime.
	DefaultSessionTTL = 7 * 24 * time.Hour
	// VerifiedSessionTTL applies to sessions minted by email verification.
	VerifiedSessionTTL = 30 * 24 * time.Hour
)

type Config struct {
	SessionTTL  time.Duration
	VerifiedTTL time.Duration
}

// Service is the session resolver: the single place where the layered
// token lookup (cache, store, provider) and its backfill policy live. All
// call sites depend on Resolve and never re-implement the chain.
type Service struct {
	sessions   SessionStore
	identities IdentityStore
	provider   Provider
	cache      *SessionCache
	log        *zap.Logger

	sessionTTL  time.Duration
	verifiedTTL time.Duration
	now         func() time.Time
}

func NewService(sessions SessionStore, identities IdentityStore, provider Provider, cache *SessionCache, cfg Config, log *zap.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.VerifiedTTL <= 0 {
		cfg.VerifiedTTL = VerifiedSessionTTL
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		sessions:    sessions,
		identities:  identities,
		provider:    provider,
		cache:       cache,
		log:         log,
		sessionTTL:  cfg.SessionTTL,
		verifiedTTL: cfg.VerifiedTTL,
		now:         time.Now,
	}
}

// Resolve maps a bearer token to a live session, or reports
// ErrUnauthorized. Lookup order: hot cache, durable store, identity
// provider; a record discovered at a lower layer is written back into the
// layers above it. Every failure path normalizes to ErrUnauthorized — the
// resolver fails closed and never grants access on ambiguity.
func (s *Service) Resolve(ctx context.Context, token string) (model.Session, error) {
	if strings.TrimSpace(token) == "" {
		return model.Session{}, ErrNoToken
	}

	if session, ok := s.cache.Get(token); ok {
		return session, nil
	}

	session, err := s.sessions.FindByToken(ctx, token)
	switch {
	case err == nil:
		if session.Live(s.now()) {
			s.cache.Put(session)
			return session, nil
		}
		// Expired rows are purged lazily, on first touch.
		if derr := s.sessions.DeleteByToken(ctx, token); derr != nil {
			s.log.Debug("delete expired session", zap.Error(derr))
		}
		s.cache.Remove(token)
		return model.Session{}, ErrUnauthorized
	case errors.Is(err, ErrSessionNotFound):
	case errors.Is(err, ErrStoreUnavailable):
		// Recoverable: the provider can still vouch for the token.
		s.log.Warn("session store unavailable, falling back to provider", zap.Error(err))
	default:
		s.log.Warn("session store lookup failed, falling back to provider", zap.Error(err))
	}

	return s.resolveViaProvider(ctx, token)
}

func (s *Service) resolveViaProvider(ctx context.Context, token string) (model.Session, error) {
	ps, err := s.provider.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return model.Session{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return model.Session{}, ErrUnauthorized
	}

	expiresAt := ps.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().UTC().Add(s.sessionTTL)
	}
	session := model.Session{
		Token:     token,
		UserID:    ps.User.ID,
		ExpiresAt: expiresAt,
		User:      ps.User,
	}

	// Backfill is best effort: a failed store write costs latency on the
	// next cold lookup, not correctness, and must not block the caller.
	if err := s.ensureIdentity(ctx, ps.User); err != nil {
		s.log.Warn("backfill identity", zap.Error(err))
	} else if err := s.sessions.UpsertSession(ctx, token, ps.User.ID, expiresAt); err != nil {
		s.log.Warn("backfill session", zap.Error(err))
	}
	s.cache.Put(session)

	return session, nil
}

// SignUp registers the email at the provider and adopts the minted session.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.Session{}, ErrInvalidInput
	}

	ps, err := s.provider.Register(ctx, email, password, name)
	if err != nil {
		return model.Session{}, err
	}
	return s.adoptProviderSession(ctx, ps, s.sessionTTL)
}

// SignIn exchanges credentials at the provider and adopts the minted
// session, keeping the store's identity copy aligned with the provider's.
func (s *Service) SignIn(ctx context.Context, email, password string) (model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.Session{}, ErrInvalidInput
	}

	ps, err := s.provider.ExchangeCredentials(ctx, email, password)
	if err != nil {
		return model.Session{}, err
	}
	return s.adoptProviderSession(ctx, ps, s.sessionTTL)
}

// RequestMagicLink asks the provider to send a verification link.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrInvalidInput
	}
	return s.provider.SendMagicLink(ctx, email)
}

// VerifyEmail redeems a magic-link token. The resulting session gets the
// longer verified lifetime.
func (s *Service) VerifyEmail(ctx context.Context, token string) (model.Session, error) {
	if strings.TrimSpace(token) == "" {
		return model.Session{}, ErrInvalidInput
	}

	ps, err := s.provider.VerifyMagicLink(ctx, token)
	if err != nil {
		return model.Session{}, err
	}
	ps.User.EmailVerified = true
	return s.adoptProviderSession(ctx, ps, s.verifiedTTL)
}

// SignOut invalidates the token everywhere: provider (best effort), durable
// store, hot cache.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidInput
	}

	s.cache.Remove(token)

	if err := s.provider.Invalidate(ctx, token); err != nil {
		s.log.Debug("provider invalidate", zap.Error(err))
	}
	if err := s.sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// adoptProviderSession persists a provider-minted session: identity row
// first (create-if-absent, reconcile on conflict), then the session row,
// then the cache.
func (s *Service) adoptProviderSession(ctx context.Context, ps ProviderSession, ttl time.Duration) (model.Session, error) {
	if ps.Token == "" || ps.User.ID == "" {
		return model.Session{}, fmt.Errorf("provider session incomplete: %w", ErrInvalidToken)
	}

	expiresAt := ps.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().UTC().Add(ttl)
	}
	session := model.Session{
		Token:     ps.Token,
		UserID:    ps.User.ID,
		ExpiresAt: expiresAt,
		User:      ps.User,
	}

	existing, err := s.identities.FindIdentityByEmail(ctx, ps.User.Email)
	switch {
	case errors.Is(err, ErrIdentityNotFound):
		if err := s.sessions.CreateIdentityWithSession(ctx, ps.User, ps.Token, expiresAt); err != nil {
			return model.Session{}, fmt.Errorf("create identity with session: %w", err)
		}
	case err != nil:
		return model.Session{}, fmt.Errorf("find identity: %w", err)
	default:
		if err := s.reconcileIdentity(ctx, existing, ps.User); err != nil {
			return model.Session{}, fmt.Errorf("reconcile identity: %w", err)
		}
		// The stored row's id is the session's foreign key; a provider that
		// reports a different id for this email must not break the insert.
		if err := s.sessions.UpsertSession(ctx, ps.Token, existing.ID, expiresAt); err != nil {
			return model.Session{}, fmt.Errorf("upsert session: %w", err)
		}
		session.UserID = existing.ID
		session.User.ID = existing.ID
	}

	s.cache.Put(session)
	return session, nil
}

// ensureIdentity makes the store's identity copy match the provider's view.
// The provider is the source of truth for identity attributes; the store is
// the source of truth for session existence. EmailVerified never reverts.
func (s *Service) ensureIdentity(ctx context.Context, identity model.Identity) error {
	existing, err := s.identities.FindIdentityByEmail(ctx, identity.Email)
	if errors.Is(err, ErrIdentityNotFound) {
		if err := s.identities.CreateIdentity(ctx, identity); err != nil {
			return fmt.Errorf("create identity: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("find identity: %w", err)
	}
	return s.reconcileIdentity(ctx, existing, identity)
}

// reconcileIdentity pushes diverged provider attributes onto the stored
// row. EmailVerified never reverts.
func (s *Service) reconcileIdentity(ctx context.Context, existing, want model.Identity) error {
	var patch IdentityPatch
	changed := false
	if want.Name != "" && existing.Name != want.Name {
		patch.Name = &want.Name
		changed = true
	}
	if want.Image != "" && existing.Image != want.Image {
		patch.Image = &want.Image
		changed = true
	}
	if want.EmailVerified && !existing.EmailVerified {
		verified := true
		patch.EmailVerified = &verified
		changed = true
	}
	if !changed {
		return nil
	}

	if err := s.identities.UpdateIdentity(ctx, existing.ID, patch); err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}
