package model

import "time"

// AccessToken is an access token issued for an origin and a service.
type AccessToken struct {
	ID        int32
	Origin    string
	ServiceID string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the token is not valid anymore. A zero ExpiresAt
// never expires.
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
