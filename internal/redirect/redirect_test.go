package redirect

import (
	"context"
	"errors"
	"testing"

	"quicknotes/internal/identity"
	"quicknotes/internal/model"
)

type fakeProvider struct {
	tokens  [][2]string
	failTok error
}

func (f *fakeProvider) RequestMagicLink(context.Context, string, string) error { return nil }
func (f *fakeProvider) CurrentSession(context.Context) (*model.Session, error) { return nil, nil }
func (f *fakeProvider) Subscribe() (<-chan identity.Event, func()) {
	ch := make(chan identity.Event)
	return ch, func() {}
}
func (f *fakeProvider) SignOut(context.Context) error { return nil }
func (f *fakeProvider) ExchangeTokens(_ context.Context, at, rt string) (*model.Session, error) {
	f.tokens = append(f.tokens, [2]string{at, rt})
	if f.failTok != nil {
		return nil, f.failTok
	}
	return &model.Session{AccessToken: at, RefreshToken: rt, User: model.Principal{ID: "u1"}}, nil
}

type codeProvider struct {
	fakeProvider
	codes   []string
	failErr error
}

func (c *codeProvider) ExchangeCode(_ context.Context, code string) (*model.Session, error) {
	c.codes = append(c.codes, code)
	if c.failErr != nil {
		return nil, c.failErr
	}
	return &model.Session{AccessToken: "at", User: model.Principal{ID: "u1"}}, nil
}

func TestRecover_FragmentTokens(t *testing.T) {
	p := &fakeProvider{}
	res, err := Recover(context.Background(), "http://127.0.0.1:8765/app?x=1#access_token=A&refresh_token=R&expires_in=3600&token_type=bearer", p)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if res.Kind != KindTokens || res.Session == nil || res.Session.User.ID != "u1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.CleanURL != "http://127.0.0.1:8765/app" {
		t.Fatalf("CleanURL = %q", res.CleanURL)
	}
	if len(p.tokens) != 1 || p.tokens[0] != [2]string{"A", "R"} {
		t.Fatalf("tokens = %v", p.tokens)
	}
}

func TestRecover_FragmentScrubbedEvenWhenExchangeFails(t *testing.T) {
	p := &fakeProvider{failTok: errors.New("invalid JWT")}
	res, err := Recover(context.Background(), "http://localhost:8765/#access_token=A&refresh_token=R", p)
	if err == nil {
		t.Fatalf("expected error")
	}
	if res.CleanURL != "http://localhost:8765/" {
		t.Fatalf("CleanURL = %q", res.CleanURL)
	}
	if res.Session != nil {
		t.Fatalf("expected no session")
	}
}

func TestRecover_FragmentNeedsBothTokens(t *testing.T) {
	p := &codeProvider{}
	res, err := Recover(context.Background(), "http://localhost:8765/#access_token=A", p)
	if err != nil || res.Kind != KindNone || res.CleanURL != "" {
		t.Fatalf("expected no-op, got %+v %v", res, err)
	}
	if len(p.tokens) != 0 || len(p.codes) != 0 {
		t.Fatalf("expected no exchange calls")
	}
}

func TestRecover_TokensWinOverCode(t *testing.T) {
	p := &codeProvider{}
	res, err := Recover(context.Background(), "http://localhost:8765/?code=C#access_token=A&refresh_token=R", p)
	if err != nil || res.Kind != KindTokens {
		t.Fatalf("expected tokens exchange, got %+v %v", res, err)
	}
	if len(p.codes) != 0 {
		t.Fatalf("code should not be exchanged")
	}
}

func TestRecover_Code(t *testing.T) {
	p := &codeProvider{}
	res, err := Recover(context.Background(), "http://localhost:8765/cb?code=C1", p)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if res.Kind != KindCode || res.CleanURL != "http://localhost:8765/cb" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(p.codes) != 1 || p.codes[0] != "C1" {
		t.Fatalf("codes = %v", p.codes)
	}
}

func TestRecover_CodeFailureLeavesURL(t *testing.T) {
	p := &codeProvider{failErr: errors.New("invalid flow state")}
	res, err := Recover(context.Background(), "http://localhost:8765/?code=C1", p)
	if err == nil {
		t.Fatalf("expected error")
	}
	if res.CleanURL != "" {
		t.Fatalf("CleanURL = %q, want empty", res.CleanURL)
	}
}

func TestRecover_CodeWithoutExchanger(t *testing.T) {
	p := &fakeProvider{}
	res, err := Recover(context.Background(), "http://localhost:8765/?code=C1", p)
	if !errors.Is(err, ErrCodeUnsupported) {
		t.Fatalf("err = %v", err)
	}
	if res.CleanURL != "" || len(p.tokens) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRecover_NoArtifacts(t *testing.T) {
	for _, raw := range []string{"", "http://localhost:8765/", "http://localhost:8765/?theme=dark#top"} {
		res, err := Recover(context.Background(), raw, &codeProvider{})
		if err != nil || res.Kind != KindNone {
			t.Fatalf("%q: expected no-op, got %+v %v", raw, res, err)
		}
	}
}

func TestHasCredential(t *testing.T) {
	cases := map[string]bool{
		"http://h/#access_token=a&refresh_token=b": true,
		"http://h/?code=x":                         true,
		"http://h/#access_token=a":                 false,
		"http://h/":                                false,
		"::bad":                                    false,
	}
	for raw, want := range cases {
		if got := HasCredential(raw); got != want {
			t.Fatalf("HasCredential(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestRecover_FragmentTokensDecodedOnce(t *testing.T) {
	cases := []struct {
		url    string
		at, rt string
	}{
		{"http://localhost:8765/#access_token=abc%2Bdef&refresh_token=R", "abc+def", "R"},
		{"http://localhost:8765/#access_token=abc%26x&refresh_token=r%3D1", "abc&x", "r=1"},
		{"http://localhost:8765/#access_token=A&refresh_token=R&note=a;b", "A", "R"},
	}
	for _, tc := range cases {
		p := &fakeProvider{}
		res, err := Recover(context.Background(), tc.url, p)
		if err != nil {
			t.Fatalf("%s: Recover: %v", tc.url, err)
		}
		if len(p.tokens) != 1 || p.tokens[0] != [2]string{tc.at, tc.rt} {
			t.Fatalf("%s: tokens = %v", tc.url, p.tokens)
		}
		if res.CleanURL != "http://localhost:8765/" {
			t.Fatalf("%s: CleanURL = %q", tc.url, res.CleanURL)
		}
	}
	if !HasCredential("http://localhost:8765/#access_token=A&refresh_token=R&note=a;b") {
		t.Fatalf("expected HasCredential despite a malformed pair")
	}
}
