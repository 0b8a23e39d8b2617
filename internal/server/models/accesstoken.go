package models

import (
	"time"
)

// AccessToken is a single bearer credential record. The token string is the
// record's identity and is unique across the store.
type AccessToken struct {
	Token     string
	Label     string
	Perm      Permission
	ExpiresAt time.Time
	CreatedAt time.Time
	Active    bool
}

// Admits reports whether the token grants access at now: it must be active
// and now must not be after ExpiresAt.
func (t *AccessToken) Admits(now time.Time) bool {
	return t.Active && !now.UTC().After(t.ExpiresAt.UTC())
}

// Expired reports whether now is strictly after ExpiresAt.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.UTC().After(t.ExpiresAt.UTC())
}
