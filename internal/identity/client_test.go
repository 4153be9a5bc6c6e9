package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"quicknotes/internal/model"
	"quicknotes/internal/store"
)

type fakeAuth struct {
	mu         sync.Mutex
	otpBodies  []map[string]any
	otpQuery   []string
	tokenCalls []string
	logouts    int
	userStatus int
	tokenFail  int
	logoutFail int
}

func testJWT(exp time.Time) string {
	enc := base64.RawURLEncoding
	head := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := enc.EncodeToString([]byte(fmt.Sprintf(`{"sub":"u-1","exp":%d}`, exp.Unix())))
	return head + "." + body + ".sig"
}

func (f *fakeAuth) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/otp", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon" {
			t.Errorf("missing apikey header")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.otpBodies = append(f.otpBodies, body)
		f.otpQuery = append(f.otpQuery, r.URL.Query().Get("redirect_to"))
		f.mu.Unlock()
		if body["email"] == "bad@example.com" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"msg":"Email rate limit exceeded"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.userStatus
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error_description":"invalid JWT"}`))
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing bearer")
		}
		_, _ = w.Write([]byte(`{"id":"u-1","email":"a@example.com"}`))
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		grant := r.URL.Query().Get("grant_type")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.tokenCalls = append(f.tokenCalls, grant)
		fail := f.tokenFail
		f.mu.Unlock()
		if fail != 0 {
			w.WriteHeader(fail)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`))
			return
		}
		if grant == "pkce" && (body["auth_code"] != "code-1" || body["code_verifier"] == "") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"msg":"invalid flow state"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  testJWT(time.Now().Add(time.Hour)),
			"refresh_token": "rt-" + grant,
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]string{"id": "u-1", "email": "a@example.com"},
		})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		fail := f.logoutFail
		f.mu.Unlock()
		if fail != 0 {
			w.WriteHeader(fail)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeAuth, store.Dir) {
	t.Helper()
	f := &fakeAuth{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	dir := store.Dir{Path: t.TempDir()}
	c := New(Options{BaseURL: srv.URL + "/", APIKey: "anon", State: dir})
	return c, f, dir
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for session event")
		return Event{}
	}
}

func TestRequestMagicLink_SendsChallengeAndStoresVerifier(t *testing.T) {
	c, f, dir := newTestClient(t)

	if err := c.RequestMagicLink(context.Background(), " a@example.com ", "http://127.0.0.1:8765/"); err != nil {
		t.Fatalf("RequestMagicLink: %v", err)
	}
	if len(f.otpBodies) != 1 {
		t.Fatalf("expected 1 otp call, got %d", len(f.otpBodies))
	}
	body := f.otpBodies[0]
	if body["email"] != "a@example.com" || body["code_challenge_method"] != "s256" {
		t.Fatalf("unexpected otp body: %#v", body)
	}
	if f.otpQuery[0] != "http://127.0.0.1:8765/" {
		t.Fatalf("redirect_to = %q", f.otpQuery[0])
	}
	st, err := dir.LoadAuthState()
	if err != nil {
		t.Fatalf("LoadAuthState: %v", err)
	}
	if st.CodeVerifier == "" || oauth2.S256ChallengeFromVerifier(st.CodeVerifier) != body["code_challenge"] {
		t.Fatalf("stored verifier does not match sent challenge")
	}
}

func TestRequestMagicLink_ServiceReasonIsSurfaced(t *testing.T) {
	c, _, _ := newTestClient(t)

	err := c.RequestMagicLink(context.Background(), "bad@example.com", "")
	var reqErr *AuthRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected AuthRequestError, got %T %v", err, err)
	}
	if reqErr.Error() != "Email rate limit exceeded" {
		t.Fatalf("reason = %q", reqErr.Error())
	}
}

func TestRequestMagicLink_EmptyEmail(t *testing.T) {
	c, f, _ := newTestClient(t)
	if err := c.RequestMagicLink(context.Background(), "  ", ""); err == nil {
		t.Fatalf("expected error")
	}
	if len(f.otpBodies) != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestExchangeTokens_PersistsAndEmitsSignedIn(t *testing.T) {
	c, _, dir := newTestClient(t)
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	s, err := c.ExchangeTokens(context.Background(), testJWT(exp), "rt-1")
	if err != nil {
		t.Fatalf("ExchangeTokens: %v", err)
	}
	if s.User.ID != "u-1" || s.User.Email != "a@example.com" {
		t.Fatalf("unexpected principal: %+v", s.User)
	}
	if !s.ExpiresAt.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", s.ExpiresAt, exp)
	}

	ev := recv(t, events)
	if ev.Kind != SignedIn || ev.Session == nil || ev.Session.User.ID != "u-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	st, _ := dir.LoadAuthState()
	if st.Session == nil || st.Session.RefreshToken != "rt-1" {
		t.Fatalf("session not persisted: %+v", st.Session)
	}
}

func TestExchangeTokens_RejectedToken(t *testing.T) {
	c, f, _ := newTestClient(t)
	f.userStatus = http.StatusUnauthorized

	_, err := c.ExchangeTokens(context.Background(), "at", "rt")
	var exErr *AuthExchangeError
	if !errors.As(err, &exErr) || exErr.Grant != "tokens" {
		t.Fatalf("expected tokens AuthExchangeError, got %v", err)
	}
	if exErr.Reason != "invalid JWT" {
		t.Fatalf("reason = %q", exErr.Reason)
	}
	s, err := c.CurrentSession(context.Background())
	if err != nil || s != nil {
		t.Fatalf("expected no session, got %v %v", s, err)
	}
}

func TestExchangeCode_UsesStoredVerifierAndClearsIt(t *testing.T) {
	c, f, dir := newTestClient(t)
	if err := c.RequestMagicLink(context.Background(), "a@example.com", ""); err != nil {
		t.Fatalf("RequestMagicLink: %v", err)
	}

	s, err := c.ExchangeCode(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if s.RefreshToken != "rt-pkce" {
		t.Fatalf("refresh token = %q", s.RefreshToken)
	}
	if len(f.tokenCalls) != 1 || f.tokenCalls[0] != "pkce" {
		t.Fatalf("token calls = %v", f.tokenCalls)
	}
	st, _ := dir.LoadAuthState()
	if st.CodeVerifier != "" {
		t.Fatalf("verifier should be cleared after exchange")
	}
	if st.Session == nil {
		t.Fatalf("session not persisted")
	}
}

func TestExchangeCode_WithoutPendingSignIn(t *testing.T) {
	c, f, _ := newTestClient(t)
	_, err := c.ExchangeCode(context.Background(), "code-1")
	var exErr *AuthExchangeError
	if !errors.As(err, &exErr) || exErr.Grant != "code" {
		t.Fatalf("expected code AuthExchangeError, got %v", err)
	}
	if len(f.tokenCalls) != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestCurrentSession_RefreshesNearExpiry(t *testing.T) {
	c, f, dir := newTestClient(t)
	old := &model.Session{
		AccessToken:  "old",
		RefreshToken: "rt-0",
		ExpiresAt:    time.Now().Add(10 * time.Second),
		User:         model.Principal{ID: "u-1"},
	}
	if err := dir.SaveAuthState(&store.AuthState{Session: old}); err != nil {
		t.Fatalf("SaveAuthState: %v", err)
	}
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	s, err := c.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if s == nil || s.AccessToken == "old" {
		t.Fatalf("expected refreshed session, got %+v", s)
	}
	if len(f.tokenCalls) != 1 || f.tokenCalls[0] != "refresh_token" {
		t.Fatalf("token calls = %v", f.tokenCalls)
	}
	if ev := recv(t, events); ev.Kind != TokenRefreshed {
		t.Fatalf("event = %v", ev.Kind)
	}
}

func TestCurrentSession_RejectedRefreshSignsOut(t *testing.T) {
	c, f, dir := newTestClient(t)
	f.tokenFail = http.StatusBadRequest
	_ = dir.SaveAuthState(&store.AuthState{Session: &model.Session{
		AccessToken:  "old",
		RefreshToken: "rt-0",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         model.Principal{ID: "u-1"},
	}})
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	_, err := c.CurrentSession(context.Background())
	var qErr *AuthQueryError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected AuthQueryError, got %v", err)
	}
	if ev := recv(t, events); ev.Kind != SignedOut {
		t.Fatalf("event = %v", ev.Kind)
	}
	st, _ := dir.LoadAuthState()
	if st.Session != nil {
		t.Fatalf("expected session cleared")
	}
}

func TestCurrentSession_NoSession(t *testing.T) {
	c, _, _ := newTestClient(t)
	s, err := c.CurrentSession(context.Background())
	if err != nil || s != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", s, err)
	}
	if _, err := c.AccessToken(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("AccessToken err = %v", err)
	}
}

func TestSignOut_ClearsLocallyEvenWhenRemoteFails(t *testing.T) {
	c, f, dir := newTestClient(t)
	f.logoutFail = http.StatusInternalServerError
	if _, err := c.ExchangeTokens(context.Background(), testJWT(time.Now().Add(time.Hour)), "rt"); err != nil {
		t.Fatalf("ExchangeTokens: %v", err)
	}

	if err := c.SignOut(context.Background()); err == nil {
		t.Fatalf("expected remote error")
	}
	if f.logouts != 1 {
		t.Fatalf("logouts = %d", f.logouts)
	}
	st, _ := dir.LoadAuthState()
	if st.Session != nil {
		t.Fatalf("expected local session cleared")
	}
	s, _ := c.CurrentSession(context.Background())
	if s != nil {
		t.Fatalf("expected signed out")
	}
}

func TestSignOut_RevokedTokenCountsAsSuccess(t *testing.T) {
	c, f, _ := newTestClient(t)
	f.logoutFail = http.StatusUnauthorized
	if _, err := c.ExchangeTokens(context.Background(), testJWT(time.Now().Add(time.Hour)), "rt"); err != nil {
		t.Fatalf("ExchangeTokens: %v", err)
	}
	if err := c.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
}

func TestSubscribe_UnsubscribeClosesChannel(t *testing.T) {
	c, _, _ := newTestClient(t)
	ch, unsubscribe := c.Subscribe()
	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}

func TestJWTExpiry(t *testing.T) {
	exp := time.Unix(2000000000, 0)
	got, err := jwtExpiry(testJWT(exp))
	if err != nil || !got.Equal(exp) {
		t.Fatalf("jwtExpiry = %v, %v", got, err)
	}
	if _, err := jwtExpiry("opaque"); err == nil {
		t.Fatalf("expected error for non-jwt")
	}
}

// rotatingAuth accepts each refresh token once and hands out a new one.
type rotatingAuth struct {
	mu      sync.Mutex
	current string
	calls   int
	serial  int
	delay   time.Duration
	before  func()
}

func (f *rotatingAuth) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"u-1","email":"a@example.com"}`))
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.before != nil {
			f.before()
		}
		time.Sleep(f.delay)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls++
		if body["refresh_token"] != f.current {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`))
			return
		}
		f.serial++
		f.current = fmt.Sprintf("rt-%d", f.serial)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  testJWT(time.Now().Add(time.Hour)),
			"refresh_token": f.current,
			"expires_in":    3600,
			"user":          map[string]string{"id": "u-1", "email": "a@example.com"},
		})
	})
	return mux
}

func TestCurrentSession_ConcurrentRefreshKeepsSession(t *testing.T) {
	f := &rotatingAuth{current: "rt-0", delay: 50 * time.Millisecond}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()
	dir := store.Dir{Path: t.TempDir()}
	_ = dir.SaveAuthState(&store.AuthState{Session: &model.Session{
		AccessToken:  "old",
		RefreshToken: "rt-0",
		ExpiresAt:    time.Now().Add(5 * time.Second),
		User:         model.Principal{ID: "u-1"},
	}})
	c := New(Options{BaseURL: srv.URL, APIKey: "anon", State: dir})
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.CurrentSession(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	f.mu.Lock()
	calls := f.calls
	f.mu.Unlock()
	if calls != 1 {
		t.Fatalf("refresh calls = %d", calls)
	}
	s, err := c.CurrentSession(context.Background())
	if err != nil || s == nil || s.RefreshToken != "rt-1" {
		t.Fatalf("final session = %+v, %v", s, err)
	}
	st, _ := dir.LoadAuthState()
	if st.Session == nil {
		t.Fatalf("expected session persisted")
	}
	for {
		select {
		case ev := <-events:
			if ev.Kind == SignedOut {
				t.Fatalf("unexpected SignedOut")
			}
		default:
			return
		}
	}
}

func TestCurrentSession_StaleRejectionKeepsNewerSession(t *testing.T) {
	f := &rotatingAuth{current: "rt-elsewhere"}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()
	dir := store.Dir{Path: t.TempDir()}
	_ = dir.SaveAuthState(&store.AuthState{Session: &model.Session{
		AccessToken:  "old",
		RefreshToken: "rt-0",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         model.Principal{ID: "u-1"},
	}})
	c := New(Options{BaseURL: srv.URL, APIKey: "anon", State: dir})
	var once sync.Once
	f.before = func() {
		// Another sign-in lands while the refresh is in flight.
		once.Do(func() {
			if _, err := c.ExchangeTokens(context.Background(), testJWT(time.Now().Add(time.Hour)), "rt-new"); err != nil {
				t.Errorf("ExchangeTokens: %v", err)
			}
		})
	}

	s, err := c.CurrentSession(context.Background())
	if err != nil || s == nil || s.RefreshToken != "rt-new" {
		t.Fatalf("CurrentSession = %+v, %v", s, err)
	}
	st, _ := dir.LoadAuthState()
	if st.Session == nil || st.Session.RefreshToken != "rt-new" {
		t.Fatalf("stored session = %+v", st.Session)
	}
}
