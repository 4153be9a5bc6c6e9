package model

import (
	"strings"
	"time"
)

// Principal is the authenticated identity a session belongs to.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Label is what the UI shows for a signed-in principal.
func (p Principal) Label() string {
	if e := strings.TrimSpace(p.Email); e != "" {
		return e
	}
	return p.ID
}

// Session is the provider-issued proof of an authenticated principal.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         Principal `json:"user"`
}

// ExpiresWithin reports whether the access token is expired or will be within d.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}

// SameSession reports whether a and b carry the same user and access token.
func SameSession(a, b *Session) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.User.ID == b.User.ID && a.AccessToken == b.AccessToken
}
