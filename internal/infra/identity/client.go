package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ivankudzin/authgate/internal/domain/model"
	"github.com/ivankudzin/authgate/internal/infra/httpclient"
	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the external identity authority over its JSON API. It is
// a thin shim: identity facts in, identity facts out, no auth decisions.
// Transport failures and 5xx responses map to ErrProviderUnavailable;
// explicit rejections map to ErrInvalidLogin / ErrInvalidToken so the
// resolver can tell "provider says no" from "provider unreachable".
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("identity provider base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		http:    httpclient.New(timeout),
	}, nil
}

type sessionResponse struct {
	User    *userPayload    `json:"user"`
	Session *sessionPayload `json:"session"`
}

type userPayload struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Image         string    `json:"image"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type sessionPayload struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (c *Client) ExchangeCredentials(ctx context.Context, email, password string) (authsvc.ProviderSession, error) {
	return c.postSession(ctx, "/sign-in/email", map[string]string{
		"email":    email,
		"password": password,
	}, "", authsvc.ErrInvalidLogin)
}

func (c *Client) Register(ctx context.Context, email, password, name string) (authsvc.ProviderSession, error) {
	return c.postSession(ctx, "/sign-up/email", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, "", authsvc.ErrInvalidLogin)
}

func (c *Client) ValidateToken(ctx context.Context, token string) (authsvc.ProviderSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session", nil)
	if err != nil {
		return authsvc.ProviderSession{}, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.doSession(req, authsvc.ErrInvalidToken)
}

func (c *Client) Invalidate(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sign-out", nil)
	if err != nil {
		return fmt.Errorf("build sign-out request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", authsvc.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authsvc.ErrInvalidToken
	default:
		return fmt.Errorf("%w: sign-out status %d", authsvc.ErrProviderUnavailable, resp.StatusCode)
	}
}

func (c *Client) SendMagicLink(ctx context.Context, email string) error {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return fmt.Errorf("marshal magic-link request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/magic-link", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build magic-link request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", authsvc.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: magic-link status %d", authsvc.ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) VerifyMagicLink(ctx context.Context, token string) (authsvc.ProviderSession, error) {
	return c.postSession(ctx, "/verify-email", map[string]string{"token": token}, "", authsvc.ErrInvalidToken)
}

func (c *Client) postSession(ctx context.Context, path string, payload map[string]string, bearer string, rejection error) (authsvc.ProviderSession, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return authsvc.ProviderSession{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return authsvc.ProviderSession{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.doSession(req, rejection)
}

func (c *Client) doSession(req *http.Request, rejection error) (authsvc.ProviderSession, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return authsvc.ProviderSession{}, fmt.Errorf("%w: %w", authsvc.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authsvc.ProviderSession{}, rejection
	case resp.StatusCode >= 500:
		return authsvc.ProviderSession{}, fmt.Errorf("%w: status %d", authsvc.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return authsvc.ProviderSession{}, fmt.Errorf("%w: status %d", rejection, resp.StatusCode)
	}

	var parsed sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return authsvc.ProviderSession{}, fmt.Errorf("%w: decode response: %w", authsvc.ErrProviderUnavailable, err)
	}
	if parsed.User == nil || parsed.Session == nil || parsed.Session.Token == "" {
		return authsvc.ProviderSession{}, rejection
	}

	ps := authsvc.ProviderSession{
		User: model.Identity{
			ID:            parsed.User.ID,
			Email:         parsed.User.Email,
			Name:          parsed.User.Name,
			Image:         parsed.User.Image,
			EmailVerified: parsed.User.EmailVerified,
			CreatedAt:     parsed.User.CreatedAt,
			UpdatedAt:     parsed.User.UpdatedAt,
		},
		Token: parsed.Session.Token,
	}
	if parsed.Session.ExpiresAt != nil {
		ps.ExpiresAt = *parsed.Session.ExpiresAt
	}

	return ps, nil
}
