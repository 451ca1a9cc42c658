package model

import "time"

// Session binds an opaque bearer token to an identity until ExpiresAt.
// User is a denormalized snapshot kept alongside the session so a lookup
// does not need a join on every request.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Identity  `json:"user"`
}

// Live reports whether the session is still usable at the given instant.
func (s Session) Live(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
