// Package devserver is a local stand-in for the hosted backend: a small
// GoTrue-compatible auth issuer and a PostgREST-compatible notes table over
// SQLite. It is meant for development and tests, not for production use.
package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"quicknotes/internal/notestore"
)

type Config struct {
	// Dir holds the database, the signing secret and the outbox.
	Dir string
	// Memory keeps the database in memory; Dir is still used for the outbox.
	Memory bool
	// APIKey, when set, must be sent as the apikey header.
	APIKey string
	// PublicURL is the externally visible base used in emailed links.
	// Defaults to http://<request host>.
	PublicURL string

	AccessTTL time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
	// OnMagicLink is called with every link that would be emailed.
	OnMagicLink func(email, link string)
}

type Server struct {
	cfg    Config
	db     *sql.DB
	secret []byte
	logger *slog.Logger
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	cfg.Dir = strings.TrimSpace(cfg.Dir)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if cfg.Dir == "" {
		return nil, errors.New("devserver: dir is empty")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	secret, err := loadOrInitSecret(cfg.Dir)
	if err != nil {
		return nil, err
	}
	db, err := openDB(ctx, cfg.Dir, cfg.Memory)
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, db: db, secret: secret, logger: logger}, nil
}

func (s *Server) Close() error { return s.db.Close() }

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/uid", s.handleUID).Methods(http.MethodGet)

	// Opened from an email client, so no apikey header.
	r.HandleFunc("/auth/v1/verify", s.handleVerify).Methods(http.MethodGet)

	auth := r.PathPrefix("/auth/v1").Subrouter()
	auth.Use(s.requireAPIKey)
	auth.HandleFunc("/otp", s.handleOTP).Methods(http.MethodPost)
	auth.HandleFunc("/token", s.handleToken).Methods(http.MethodPost)
	auth.HandleFunc("/user", s.handleUser).Methods(http.MethodGet)
	auth.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	rest := r.PathPrefix("/rest/v1").Subrouter()
	rest.Use(s.requireAPIKey)
	rest.HandleFunc("/{table}", s.handleNotesList).Methods(http.MethodGet)
	rest.HandleFunc("/{table}", s.handleNotesInsert).Methods(http.MethodPost)
	rest.HandleFunc("/{table}", s.handleNotesUpdate).Methods(http.MethodPatch)
	rest.HandleFunc("/{table}", s.handleNotesDelete).Methods(http.MethodDelete)

	r.Use(s.logRequests)
	return r
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleUID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"id": notestore.NewID(s.cfg.Now())})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && strings.TrimSpace(r.Header.Get("apikey")) != s.cfg.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "dur", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// bearer returns the verified access-token claims of the request.
func (s *Server) bearer(r *http.Request) (claims, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(tok) == "" {
		return claims{}, errors.New("missing bearer token")
	}
	c, err := verifyToken(s.secret, tok, s.cfg.Now())
	if err != nil {
		return claims{}, err
	}
	if c.Typ != "access" {
		return claims{}, errors.New("invalid JWT: not an access token")
	}
	return c, nil
}
