// Package callback is the local listener magic links redirect back to.
//
// A code redirect (?code=) is visible to the server and handed over directly.
// A token redirect keeps its credentials in the URL fragment, which browsers
// never send; the landing page posts its own address back instead.
package callback

import (
	"context"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"quicknotes/internal/redirect"
)

const maxPostedURL = 16 << 10

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>QuickNotes</title>
<style>body{font-family:system-ui,sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem;color:#222}</style>
</head>
<body>
<h1>QuickNotes</h1>
<p id="msg">{{.Message}}</p>
<script>
(function () {
  var msg = document.getElementById("msg");
  if ({{.Scrub}}) {
    history.replaceState(null, document.title, location.pathname);
    return;
  }
  if (location.hash.indexOf("access_token=") < 0) {
    return;
  }
  fetch("/callback", {method: "POST", headers: {"Content-Type": "text/plain"}, body: location.href})
    .then(function (r) {
      history.replaceState(null, document.title, location.pathname);
      msg.textContent = r.ok ? "Signed in. You can close this tab and return to QuickNotes." : "Sign-in failed. Request a new link.";
    })
    .catch(function () { msg.textContent = "QuickNotes is not running."; });
})();
</script>
</body>
</html>
`))

type page struct {
	Message string
	Scrub   bool
}

type Server struct {
	addr   string
	onURL  func(rawURL string)
	logger *slog.Logger

	ln  net.Listener
	srv *http.Server
}

// New returns a listener for addr that passes every received redirect URL to onURL.
func New(addr string, onURL func(rawURL string), logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{addr: strings.TrimSpace(addr), onURL: onURL, logger: logger}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/callback", s.handlePost).Methods(http.MethodPost)
	r.PathPrefix("/").HandlerFunc(s.handleLanding).Methods(http.MethodGet)
	return r
}

// Start binds the address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("callback listener stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("callback listener started", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := strings.TrimSpace(q.Get("error_description")); e != "" || q.Get("error") != "" {
		if e == "" {
			e = q.Get("error")
		}
		s.logger.Warn("sign-in redirect carried an error", "err", e)
		s.render(w, http.StatusOK, page{Message: "Sign-in failed: " + e, Scrub: true})
		return
	}
	if strings.TrimSpace(q.Get("code")) != "" {
		s.deliver(requestURL(r))
		s.render(w, http.StatusOK, page{Message: "Signed in. You can close this tab and return to QuickNotes.", Scrub: true})
		return
	}
	s.render(w, http.StatusOK, page{Message: "Waiting for a sign-in link..."})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if !sameOrigin(r) {
		s.logger.Warn("cross-origin callback post rejected", "origin", r.Header.Get("Origin"), "site", r.Header.Get("Sec-Fetch-Site"))
		http.Error(w, "cross-origin request", http.StatusForbidden)
		return
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxPostedURL))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	raw := strings.TrimSpace(string(b))
	if !redirect.HasCredential(raw) {
		http.Error(w, "no sign-in credential in url", http.StatusBadRequest)
		return
	}
	s.deliver(raw)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deliver(raw string) {
	s.logger.Debug("redirect received")
	if s.onURL != nil {
		s.onURL(raw)
	}
}

func (s *Server) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, p)
}

func requestURL(r *http.Request) string {
	return origin(r) + r.URL.RequestURI()
}

func origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// sameOrigin accepts posts from the landing page itself. Another site can
// send a text/plain POST without a preflight, so browser requests must carry
// this listener's origin. Requests without browser headers come from local tools.
func sameOrigin(r *http.Request) bool {
	if site := r.Header.Get("Sec-Fetch-Site"); site != "" && site != "same-origin" {
		return false
	}
	if o := r.Header.Get("Origin"); o != "" && !strings.EqualFold(o, origin(r)) {
		return false
	}
	return true
}
