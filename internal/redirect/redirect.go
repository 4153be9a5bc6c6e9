// Package redirect consumes one-time auth artifacts left in a redirect URL.
package redirect

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"quicknotes/internal/identity"
	"quicknotes/internal/model"
)

type Kind int

const (
	KindNone Kind = iota
	KindTokens
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindTokens:
		return "tokens"
	case KindCode:
		return "code"
	default:
		return "none"
	}
}

// Result describes what Recover found in the URL.
//
// CleanURL is empty when the URL should be left alone; otherwise it is the
// address to show instead (scheme, host and path only).
type Result struct {
	Kind     Kind
	CleanURL string
	Session  *model.Session
}

var ErrCodeUnsupported = errors.New("provider does not support code exchange")

// Recover inspects rawURL for a token fragment or an authorization code and
// exchanges it with p.
//
// Tokens win over a code when both are present. A token fragment is always
// scrubbed, even when the exchange fails, so the credential is never
// consumed twice. A code is scrubbed only after a successful exchange.
func Recover(ctx context.Context, rawURL string, p identity.Provider) (Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Result{}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, err
	}

	if at, rt, ok := fragmentTokens(u); ok {
		res := Result{Kind: KindTokens, CleanURL: cleanURL(u)}
		s, err := p.ExchangeTokens(ctx, at, rt)
		if err != nil {
			return res, err
		}
		res.Session = s
		return res, nil
	}

	code := strings.TrimSpace(u.Query().Get("code"))
	if code == "" {
		return Result{}, nil
	}
	ex, ok := p.(identity.CodeExchanger)
	if !ok {
		return Result{Kind: KindCode}, ErrCodeUnsupported
	}
	s, err := ex.ExchangeCode(ctx, code)
	if err != nil {
		return Result{Kind: KindCode}, err
	}
	return Result{Kind: KindCode, CleanURL: cleanURL(u), Session: s}, nil
}

// HasCredential reports whether rawURL carries something Recover would consume.
func HasCredential(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if _, _, ok := fragmentTokens(u); ok {
		return true
	}
	return strings.TrimSpace(u.Query().Get("code")) != ""
}

func fragmentTokens(u *url.URL) (accessToken, refreshToken string, ok bool) {
	frag := strings.TrimPrefix(u.EscapedFragment(), "#")
	if frag == "" {
		return "", "", false
	}
	// ParseQuery keeps every well-formed pair even when it reports an error
	// for another one.
	vals, _ := url.ParseQuery(frag)
	accessToken = strings.TrimSpace(vals.Get("access_token"))
	refreshToken = strings.TrimSpace(vals.Get("refresh_token"))
	return accessToken, refreshToken, accessToken != "" && refreshToken != ""
}

func cleanURL(u *url.URL) string {
	c := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	if c.Path == "" && c.Host != "" {
		c.Path = "/"
	}
	return c.String()
}
