package devserver

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Typ   string `json:"typ,omitempty"` // "access"|"magic"
	N     string `json:"n,omitempty"`   // nonce
	jwt.RegisteredClaims
}

func loadOrInitSecret(dir string) ([]byte, error) {
	path := filepath.Join(dir, "secret.key")
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return []byte(strings.TrimSpace(string(b))), nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	enc := base64.RawURLEncoding.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(enc+"\n"), 0o600); err != nil {
		return nil, err
	}
	return []byte(enc), nil
}

// signToken produces an HS256 JWT.
func signToken(secret []byte, c claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

func verifyToken(secret []byte, token string, now time.Time) (claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &c, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return claims{}, fmt.Errorf("invalid JWT: %w", err)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return claims{}, errors.New("invalid JWT: missing sub")
	}
	return c, nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func writeOutboxEmail(dir, to, subject, body string, now time.Time) error {
	outDir := filepath.Join(dir, "outbox")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102T150405.000Z")
	safeTo := strings.NewReplacer("@", "_at_", "/", "_").Replace(strings.ToLower(strings.TrimSpace(to)))
	name := fmt.Sprintf("%s_%s.txt", ts, safeTo)
	msg := fmt.Sprintf("TO: %s\nSUBJECT: %s\n\n%s\n", strings.TrimSpace(to), strings.TrimSpace(subject), strings.TrimSpace(body))
	return os.WriteFile(filepath.Join(outDir, name), []byte(msg), 0o600)
}
