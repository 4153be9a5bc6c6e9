package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quicknotes/internal/model"
	"quicknotes/internal/store"
)

// refreshMargin is how close to expiry a session is refreshed on read.
const refreshMargin = 30 * time.Second

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	State      store.Dir
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client talks to a GoTrue-compatible auth service under <base>/auth/v1 and
// persists the session in the local state dir.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
	state  store.Dir
	logger *slog.Logger
	now    func() time.Time

	// refreshes collapses concurrent refreshes of the same refresh token;
	// the issuer accepts each refresh token once.
	refreshes singleflight.Group

	mu      sync.Mutex
	loaded  bool
	session *model.Session
	subs    map[int]chan Event
	nextSub int
}

func New(opts Options) *Client {
	c := &Client{
		base:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey: strings.TrimSpace(opts.APIKey),
		http:   opts.HTTPClient,
		state:  opts.State,
		logger: opts.Logger,
		now:    opts.Now,
		subs:   map[int]chan Event{},
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         user   `json:"user"`
}

type user struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (c *Client) sessionFrom(tr tokenResponse) *model.Session {
	s := &model.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		User:         model.Principal{ID: tr.User.ID, Email: tr.User.Email},
	}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		if exp, err := jwtExpiry(tr.AccessToken); err == nil {
			s.ExpiresAt = exp
		}
	}
	return s
}

func (c *Client) RequestMagicLink(ctx context.Context, email, redirectTo string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &AuthRequestError{Reason: "email is required"}
	}
	verifier, challenge := newPKCE()
	// The verifier must outlive this process: the link may be opened after a restart.
	if err := c.state.UpdateAuthState(func(st *store.AuthState) { st.CodeVerifier = verifier }); err != nil {
		return &AuthRequestError{Email: email, Reason: "save sign-in state: " + err.Error(), Err: err}
	}

	q := url.Values{}
	if strings.TrimSpace(redirectTo) != "" {
		q.Set("redirect_to", redirectTo)
	}
	body := map[string]any{
		"email":                 email,
		"create_user":           true,
		"code_challenge":        challenge,
		"code_challenge_method": "s256",
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/otp", q, "", body, nil); err != nil {
		return &AuthRequestError{Email: email, Reason: reasonOf(err), Err: err}
	}
	c.logger.Info("magic link requested", "email", email)
	return nil
}

func (c *Client) CurrentSession(ctx context.Context) (*model.Session, error) {
	s, err := c.cached()
	if err != nil {
		return nil, &AuthQueryError{Reason: reasonOf(err), Err: err}
	}
	if s == nil {
		return nil, nil
	}
	if !s.ExpiresWithin(c.now(), refreshMargin) {
		return s, nil
	}
	if strings.TrimSpace(s.RefreshToken) == "" {
		c.setSession(nil, SignedOut)
		return nil, nil
	}

	return c.refreshShared(ctx, s.RefreshToken)
}

func (c *Client) refreshShared(ctx context.Context, refreshToken string) (*model.Session, error) {
	v, err, _ := c.refreshes.Do(refreshToken, func() (any, error) {
		// A caller that read the cache before an earlier refresh landed still
		// holds the spent token; hand it the stored result instead.
		if cur, err := c.cached(); err == nil && cur != nil && cur.RefreshToken != refreshToken {
			return cur, nil
		}
		refreshed, err := c.refresh(ctx, refreshToken)
		if err != nil {
			if isRejected(err) {
				if cur, ok := c.clearIfRefreshToken(refreshToken); !ok && cur != nil {
					return cur, nil
				}
			}
			return nil, err
		}
		c.setSession(refreshed, TokenRefreshed)
		return refreshed, nil
	})
	if err != nil {
		return nil, &AuthQueryError{Reason: reasonOf(err), Err: err}
	}
	s, _ := v.(*model.Session)
	if s == nil {
		return nil, nil
	}
	return copySession(s), nil
}

// clearIfRefreshToken signs out only while the stored session still carries
// the rejected refresh token. Otherwise it returns the session that replaced it.
func (c *Client) clearIfRefreshToken(refreshToken string) (*model.Session, bool) {
	c.mu.Lock()
	if c.session != nil && c.session.RefreshToken != refreshToken {
		cur := copySession(c.session)
		c.mu.Unlock()
		return cur, false
	}
	c.session = nil
	c.loaded = true
	err := c.state.UpdateAuthState(func(st *store.AuthState) { st.Session = nil })
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("persist session", "err", err)
	}
	c.emit(Event{Kind: SignedOut})
	return nil, true
}

// AccessToken returns a usable access token for the current session.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	s, err := c.CurrentSession(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", ErrNoSession
	}
	return s.AccessToken, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	var tr tokenResponse
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, "", map[string]string{"refresh_token": refreshToken}, &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, errors.New("refresh returned no access token")
	}
	return c.sessionFrom(tr), nil
}

func (c *Client) ExchangeTokens(ctx context.Context, accessToken, refreshToken string) (*model.Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)
	if accessToken == "" || refreshToken == "" {
		return nil, &AuthExchangeError{Grant: "tokens", Reason: "access and refresh tokens are required"}
	}

	var u user
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil, &u); err != nil {
		return nil, &AuthExchangeError{Grant: "tokens", Reason: reasonOf(err), Err: err}
	}
	s := &model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		User:         model.Principal{ID: u.ID, Email: u.Email},
	}
	if exp, err := jwtExpiry(accessToken); err == nil {
		s.ExpiresAt = exp
	} else {
		s.ExpiresAt = c.now().Add(time.Hour)
	}
	c.setSession(s, SignedIn)
	return copySession(s), nil
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (*model.Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &AuthExchangeError{Grant: "code", Reason: "authorization code is required"}
	}
	st, err := c.state.LoadAuthState()
	if err != nil {
		return nil, &AuthExchangeError{Grant: "code", Reason: reasonOf(err), Err: err}
	}
	if strings.TrimSpace(st.CodeVerifier) == "" {
		return nil, &AuthExchangeError{Grant: "code", Reason: "no pending sign-in on this device (missing code verifier)"}
	}

	var tr tokenResponse
	q := url.Values{"grant_type": {"pkce"}}
	body := map[string]string{"auth_code": code, "code_verifier": st.CodeVerifier}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, "", body, &tr); err != nil {
		return nil, &AuthExchangeError{Grant: "code", Reason: reasonOf(err), Err: err}
	}
	s := c.sessionFrom(tr)
	c.setSessionWith(s, SignedIn, func(st *store.AuthState) { st.CodeVerifier = "" })
	return copySession(s), nil
}

// SignOut drops the local session first and then revokes it remotely, so an
// abandoned or failed network call still leaves this device signed out.
func (c *Client) SignOut(ctx context.Context) error {
	prev, err := c.cached()
	if err != nil {
		c.logger.Warn("sign-out: read local session", "err", err)
	}
	c.setSession(nil, SignedOut)
	if prev == nil {
		return nil
	}
	err = c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, prev.AccessToken, nil, nil)
	if err != nil && isRejected(err) {
		// Token already invalid server-side: that is the outcome we wanted.
		return nil
	}
	return err
}

func (c *Client) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 16)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Client) cached() (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		st, err := c.state.LoadAuthState()
		if err != nil {
			return nil, err
		}
		c.session = st.Session
		c.loaded = true
	}
	return copySession(c.session), nil
}

func (c *Client) setSession(s *model.Session, kind EventKind) {
	c.setSessionWith(s, kind, nil)
}

func (c *Client) setSessionWith(s *model.Session, kind EventKind, extra func(st *store.AuthState)) {
	c.mu.Lock()
	c.session = copySession(s)
	c.loaded = true
	err := c.state.UpdateAuthState(func(st *store.AuthState) {
		st.Session = copySession(s)
		if extra != nil {
			extra(st)
		}
	})
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("persist session", "err", err)
	}
	c.emit(Event{Kind: kind, Session: s})
}

// emit never blocks: a listener that stopped draining loses events rather
// than stalling the provider.
func (c *Client) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- Event{Kind: ev.Kind, Session: copySession(ev.Session)}:
		default:
			c.logger.Warn("session event dropped", "subscriber", id, "kind", ev.Kind.String())
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, bearer string, in any, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("auth request", "method", method, "path", path, "status", resp.StatusCode, "dur", time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Status: resp.StatusCode, Reason: errorReason(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorReason picks the human-readable message out of a GoTrue error body.
func errorReason(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, k := range []string{"msg", "error_description", "message", "error"} {
		if s, ok := body[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
