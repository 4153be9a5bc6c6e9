package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// newPKCE returns a verifier and its S256 challenge.
func newPKCE() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}

// jwtExpiry reads the exp claim of a JWT without verifying it; the issuer
// verifies tokens, the client only needs to know when to refresh.
func jwtExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("jwt has no exp")
	}
	return claims.ExpiresAt.Time, nil
}
