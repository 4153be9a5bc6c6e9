package callback

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recorder struct {
	mu   sync.Mutex
	urls []string
}

func (r *recorder) add(u string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, u)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

func TestLanding_CodeIsDelivered(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(New("", rec.add, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?code=abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Signed in.") {
		t.Fatalf("unexpected page %d: %s", resp.StatusCode, body)
	}
	got := rec.all()
	if len(got) != 1 || !strings.HasSuffix(got[0], "/?code=abc") || !strings.HasPrefix(got[0], "http://") {
		t.Fatalf("delivered = %v", got)
	}
}

func TestLanding_WithoutCodeDeliversNothing(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(New("", rec.add, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `fetch("/callback"`) {
		t.Fatalf("landing page lacks fragment relay")
	}
	if len(rec.all()) != 0 {
		t.Fatalf("nothing should be delivered")
	}
}

func TestLanding_ErrorRedirect(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(New("", rec.add, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?error=access_denied&error_description=Email+link+is+invalid")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "Sign-in failed: Email link is invalid") || len(rec.all()) != 0 {
		t.Fatalf("unexpected: %s %v", body, rec.all())
	}
}

func TestPost_FragmentURL(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(New("", rec.add, nil).Handler())
	defer srv.Close()

	u := "http://127.0.0.1:8765/#access_token=a&refresh_token=b"
	resp, err := http.Post(srv.URL+"/callback", "text/plain", strings.NewReader(u))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := rec.all(); len(got) != 1 || got[0] != u {
		t.Fatalf("delivered = %v", got)
	}

	resp, err = http.Post(srv.URL+"/callback", "text/plain", strings.NewReader("http://127.0.0.1:8765/"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || len(rec.all()) != 1 {
		t.Fatalf("credential-less post accepted: %d", resp.StatusCode)
	}
}

func TestStart_BindsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New("127.0.0.1:0", nil, nil)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	cancel()
}

func TestPost_RejectsOtherOrigins(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(New("", rec.add, nil).Handler())
	defer srv.Close()

	u := "http://127.0.0.1:8765/#access_token=a&refresh_token=b"
	post := func(headers map[string]string) int {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/callback", strings.NewReader(u))
		req.Header.Set("Content-Type", "text/plain")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for _, h := range []map[string]string{
		{"Origin": "https://evil.example"},
		{"Origin": "null"},
		{"Sec-Fetch-Site": "cross-site"},
		{"Origin": srv.URL, "Sec-Fetch-Site": "same-site"},
	} {
		if got := post(h); got != http.StatusForbidden {
			t.Fatalf("%v: status = %d", h, got)
		}
	}
	if got := rec.all(); len(got) != 0 {
		t.Fatalf("delivered = %v", got)
	}

	if got := post(map[string]string{"Origin": srv.URL, "Sec-Fetch-Site": "same-origin"}); got != http.StatusNoContent {
		t.Fatalf("same-origin status = %d", got)
	}
	if got := rec.all(); len(got) != 1 || got[0] != u {
		t.Fatalf("delivered = %v", got)
	}
}
