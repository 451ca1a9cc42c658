package apiapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/authgate/internal/domain/model"
	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
)

type guardSessionStore struct {
	sessions map[string]model.Session
	findErr  error
}

func (s *guardSessionStore) FindByToken(_ context.Context, token string) (model.Session, error) {
	if s.findErr != nil {
		return model.Session{}, s.findErr
	}
	session, ok := s.sessions[token]
	if !ok {
		return model.Session{}, authsvc.ErrSessionNotFound
	}
	return session, nil
}

func (s *guardSessionStore) UpsertSession(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (s *guardSessionStore) DeleteByToken(_ context.Context, _ string) error { return nil }

func (s *guardSessionStore) CreateIdentityWithSession(_ context.Context, _ model.Identity, _ string, _ time.Time) error {
	return nil
}

type guardIdentityStore struct{}

func (guardIdentityStore) FindIdentityByEmail(_ context.Context, _ string) (model.Identity, error) {
	return model.Identity{}, authsvc.ErrIdentityNotFound
}

func (guardIdentityStore) CreateIdentity(_ context.Context, _ model.Identity) error { return nil }

func (guardIdentityStore) UpdateIdentity(_ context.Context, _ string, _ authsvc.IdentityPatch) error {
	return nil
}

type guardProvider struct {
	err error
}

func (p *guardProvider) ExchangeCredentials(_ context.Context, _, _ string) (authsvc.ProviderSession, error) {
	return authsvc.ProviderSession{}, p.err
}

func (p *guardProvider) Register(_ context.Context, _, _, _ string) (authsvc.ProviderSession, error) {
	return authsvc.ProviderSession{}, p.err
}

func (p *guardProvider) ValidateToken(_ context.Context, _ string) (authsvc.ProviderSession, error) {
	return authsvc.ProviderSession{}, p.err
}

func (p *guardProvider) Invalidate(_ context.Context, _ string) error { return nil }

func (p *guardProvider) SendMagicLink(_ context.Context, _ string) error { return nil }

func (p *guardProvider) VerifyMagicLink(_ context.Context, _ string) (authsvc.ProviderSession, error) {
	return authsvc.ProviderSession{}, p.err
}

func newGuardService(store *guardSessionStore, provider *guardProvider) *authsvc.Service {
	return authsvc.NewService(store, guardIdentityStore{}, provider, authsvc.NewSessionCache(0), authsvc.Config{}, zap.NewNop())
}

func TestAuthMiddlewareAttachesIdentity(t *testing.T) {
	store := &guardSessionStore{sessions: map[string]model.Session{
		"tok-good": {
			Token:     "tok-good",
			UserID:    "user-1",
			ExpiresAt: time.Now().Add(time.Hour),
			User:      model.Identity{ID: "user-1", Email: "alice@example.com"},
		},
	}}
	mw := AuthMiddleware(newGuardService(store, &guardProvider{err: authsvc.ErrInvalidToken}), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/protected/profile", nil)
	req.Header.Set("Authorization", "Bearer tok-good")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authsvc.IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in request context")
		}
		if identity.Email != "alice@example.com" {
			t.Fatalf("unexpected identity %q", identity.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNoContent)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	store := &guardSessionStore{sessions: map[string]model.Session{}}
	mw := AuthMiddleware(newGuardService(store, &guardProvider{err: authsvc.ErrInvalidToken}), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/protected/profile", nil)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not be called without a token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareRejectsUnknownToken(t *testing.T) {
	store := &guardSessionStore{sessions: map[string]model.Session{}}
	mw := AuthMiddleware(newGuardService(store, &guardProvider{err: authsvc.ErrInvalidToken}), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/protected/profile", nil)
	req.Header.Set("Authorization", "Bearer tok-bad")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not be called for an unknown token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareFailsClosedOnOutage(t *testing.T) {
	store := &guardSessionStore{findErr: authsvc.ErrStoreUnavailable}
	mw := AuthMiddleware(newGuardService(store, &guardProvider{err: authsvc.ErrProviderUnavailable}), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/protected/profile", nil)
	req.Header.Set("Authorization", "Bearer tok-good")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not be called during a backend outage")
	})).ServeHTTP(rr, req)

	// Outages read as 401, never 500.
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareNilService(t *testing.T) {
	mw := AuthMiddleware(nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/protected/profile", nil)
	req.Header.Set("Authorization", "Bearer tok-good")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not be called without an auth service")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}
