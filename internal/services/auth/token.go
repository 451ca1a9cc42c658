package auth

import (
	"net/http"
	"strings"
)

// SessionCookieName is the cookie carrying the session token for browser
// clients.
const SessionCookieName = "session_token"

const bearerPrefix = "Bearer "

// ExtractToken pulls a candidate session token out of the request, in
// priority order: "Authorization: Bearer <token>", a raw Authorization
// value from non-conforming clients, then the session_token cookie.
// Pure read of the request; never fails on malformed input.
func ExtractToken(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}

	if header := r.Header.Get("Authorization"); header != "" {
		if strings.HasPrefix(header, bearerPrefix) {
			token := strings.TrimPrefix(header, bearerPrefix)
			if token != "" {
				return token, true
			}
		} else {
			return header, true
		}
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	return "", false
}
