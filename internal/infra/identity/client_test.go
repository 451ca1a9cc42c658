package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func writeSessionJSON(w http.ResponseWriter, token string, expiresAt *time.Time) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"user": map[string]any{
			"id":             "user-1",
			"email":          "alice@example.com",
			"name":           "Alice",
			"email_verified": true,
		},
		"session": map[string]any{
			"token":      token,
			"expires_at": expiresAt,
		},
	})
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestExchangeCredentials(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sign-in/email" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["email"] != "alice@example.com" || body["password"] != "secret" {
			t.Fatalf("unexpected payload: %v", body)
		}
		writeSessionJSON(w, "tok-login", &expiry)
	})

	ps, err := client.ExchangeCredentials(context.Background(), "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("exchange credentials: %v", err)
	}
	if ps.Token != "tok-login" || ps.User.ID != "user-1" || !ps.User.EmailVerified {
		t.Fatalf("unexpected session: %+v", ps)
	}
	if !ps.ExpiresAt.Equal(expiry) {
		t.Fatalf("unexpected expiry: got %v want %v", ps.ExpiresAt, expiry)
	}
}

func TestExchangeCredentialsRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ExchangeCredentials(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, authsvc.ErrInvalidLogin) {
		t.Fatalf("expected ErrInvalidLogin, got %v", err)
	}
}

func TestValidateTokenSendsBearer(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-abc" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		writeSessionJSON(w, "tok-abc", nil)
	})

	ps, err := client.ValidateToken(context.Background(), "tok-abc")
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if ps.Token != "tok-abc" {
		t.Fatalf("unexpected token %q", ps.Token)
	}
	if !ps.ExpiresAt.IsZero() {
		t.Fatalf("expected zero expiry when provider omits it, got %v", ps.ExpiresAt)
	}
}

func TestValidateTokenRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.ValidateToken(context.Background(), "tok-bad")
	if !errors.Is(err, authsvc.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if errors.Is(err, authsvc.ErrProviderUnavailable) {
		t.Fatalf("rejection must not read as an outage, got %v", err)
	}
}

func TestValidateTokenServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ValidateToken(context.Background(), "tok-abc")
	if !errors.Is(err, authsvc.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestValidateTokenTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.ValidateToken(context.Background(), "tok-abc")
	if !errors.Is(err, authsvc.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestValidateTokenMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"user":`))
	})

	_, err := client.ValidateToken(context.Background(), "tok-abc")
	if !errors.Is(err, authsvc.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable for malformed body, got %v", err)
	}
}

func TestValidateTokenIncompleteBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"user": nil, "session": nil})
	})

	_, err := client.ValidateToken(context.Background(), "tok-abc")
	if !errors.Is(err, authsvc.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for incomplete body, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	var gotAuthz string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sign-out" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuthz = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	if err := client.Invalidate(context.Background(), "tok-abc"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if gotAuthz != "Bearer tok-abc" {
		t.Fatalf("unexpected authorization header %q", gotAuthz)
	}
}

func TestSendMagicLink(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/magic-link" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.SendMagicLink(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("send magic link: %v", err)
	}
}
