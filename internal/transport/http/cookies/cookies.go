package cookies

import (
	"net/http"
	"time"

	authsvc "github.com/ivankudzin/authgate/internal/services/auth"
)

// Options controls how the session cookie is issued. Secure is off only in
// local development.
type Options struct {
	Secure bool
}

// SetSession issues the session_token cookie: HTTP-only, path /, SameSite
// Lax, max-age from the session lifetime.
func SetSession(w http.ResponseWriter, token string, maxAge time.Duration, opts Options) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsvc.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSession removes the session cookie from the client.
func ClearSession(w http.ResponseWriter, opts Options) {
	http.SetCookie(w, &http.Cookie{
		Name:     authsvc.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
