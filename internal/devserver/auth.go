package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	magicLinkTTL = 15 * time.Minute
	flowStateTTL = 5 * time.Minute
)

type userJSON struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Aud   string `json:"aud"`
	Role  string `json:"role"`
}

type sessionJSON struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         userJSON `json:"user"`
}

func authError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "msg": msg})
}

func grantError(w http.ResponseWriter, desc string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": desc})
}

func (s *Server) handleOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email               string `json:"email"`
		CreateUser          bool   `json:"create_user"`
		CodeChallenge       string `json:"code_challenge"`
		CodeChallengeMethod string `json:"code_challenge_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authError(w, http.StatusBadRequest, "Could not parse request body as JSON")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		authError(w, http.StatusBadRequest, "Unable to validate email address: invalid format")
		return
	}
	if req.CodeChallenge != "" && !strings.EqualFold(req.CodeChallengeMethod, "s256") {
		authError(w, http.StatusBadRequest, "Unsupported code challenge method")
		return
	}

	ctx := r.Context()
	if _, err := s.userByEmail(ctx, email); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			authError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !req.CreateUser {
			authError(w, http.StatusUnprocessableEntity, "Signups not allowed for otp")
			return
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO users(id, email, created_at_unixms) VALUES(?, ?, ?)`,
			uuid.NewString(), email, s.cfg.Now().UnixMilli()); err != nil {
			authError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	nonce, err := newNonce()
	if err != nil {
		authError(w, http.StatusInternalServerError, err.Error())
		return
	}
	redirectTo := strings.TrimSpace(r.URL.Query().Get("redirect_to"))
	if _, err := s.db.ExecContext(ctx, `INSERT INTO magic_links(nonce, email, code_challenge, redirect_to) VALUES(?, ?, ?, ?)`,
		nonce, email, req.CodeChallenge, redirectTo); err != nil {
		authError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tok, err := signToken(s.secret, claims{
		Typ: "magic",
		N:   nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(s.cfg.Now().Add(magicLinkTTL)),
		},
	})
	if err != nil {
		authError(w, http.StatusInternalServerError, err.Error())
		return
	}

	link := verifyURL(s.publicBase(r), tok, redirectTo)
	if err := writeOutboxEmail(s.cfg.Dir, email, "Your QuickNotes login link", link, s.cfg.Now()); err != nil {
		s.logger.Warn("write outbox email", "err", err)
	}
	s.logger.Info("magic link issued", "email", email, "link", link)
	if s.cfg.OnMagicLink != nil {
		s.cfg.OnMagicLink(email, link)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// handleVerify consumes a magic link and sends the browser back to the
// client with either an authorization code (PKCE) or a token fragment.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := verifyToken(s.secret, r.URL.Query().Get("token"), s.cfg.Now())
	if err != nil || c.Typ != "magic" {
		authError(w, http.StatusForbidden, "Email link is invalid or has expired")
		return
	}

	var challenge, redirectTo string
	var used int
	err = s.db.QueryRowContext(ctx, `SELECT code_challenge, redirect_to, used FROM magic_links WHERE nonce = ?`, c.N).
		Scan(&challenge, &redirectTo, &used)
	if err != nil || used != 0 {
		authError(w, http.StatusForbidden, "Email link is invalid or has expired")
		return
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE magic_links SET used = 1 WHERE nonce = ?`, c.N); err != nil {
		authError(w, http.StatusInternalServerError, err.Error())
		return
	}
	u, err := s.userByEmail(ctx, c.Subject)
	if err != nil {
		authError(w, http.StatusForbidden, "User not found")
		return
	}
	if redirectTo == "" {
		redirectTo = s.publicBase(r) + "/"
	}
	target, err := url.Parse(redirectTo)
	if err != nil {
		authError(w, http.StatusBadRequest, "Invalid redirect URL")
		return
	}

	if challenge != "" {
		code := uuid.NewString()
		if _, err := s.db.ExecContext(ctx, `INSERT INTO flow_states(auth_code, user_id, code_challenge, expires_unix) VALUES(?, ?, ?, ?)`,
			code, u.ID, challenge, s.cfg.Now().Add(flowStateTTL).Unix()); err != nil {
			authError(w, http.StatusInternalServerError, err.Error())
			return
		}
		q := target.Query()
		q.Set("code", code)
		target.RawQuery = q.Encode()
		http.Redirect(w, r, target.String(), http.StatusSeeOther)
		return
	}

	sess, err := s.issueSession(ctx, u)
	if err != nil {
		authError(w, http.StatusInternalServerError, err.Error())
		return
	}
	frag := url.Values{
		"access_token":  {sess.AccessToken},
		"refresh_token": {sess.RefreshToken},
		"expires_in":    {itoa(sess.ExpiresIn)},
		"expires_at":    {itoa(sess.ExpiresAt)},
		"token_type":    {sess.TokenType},
		"type":          {"magiclink"},
	}
	target.Fragment = ""
	http.Redirect(w, r, target.String()+"#"+frag.Encode(), http.StatusSeeOther)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		AuthCode     string `json:"auth_code"`
		CodeVerifier string `json:"code_verifier"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authError(w, http.StatusBadRequest, "Could not parse request body as JSON")
		return
	}

	switch r.URL.Query().Get("grant_type") {
	case "pkce":
		var userID, challenge string
		var expires int64
		err := s.db.QueryRowContext(ctx, `SELECT user_id, code_challenge, expires_unix FROM flow_states WHERE auth_code = ?`,
			strings.TrimSpace(req.AuthCode)).Scan(&userID, &challenge, &expires)
		if err != nil {
			authError(w, http.StatusNotFound, "invalid flow state, no valid flow state found")
			return
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM flow_states WHERE auth_code = ?`, req.AuthCode); err != nil {
			authError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.cfg.Now().Unix() > expires {
			authError(w, http.StatusBadRequest, "invalid flow state, flow state has expired")
			return
		}
		if oauth2.S256ChallengeFromVerifier(req.CodeVerifier) != challenge {
			authError(w, http.StatusBadRequest, "code challenge does not match previously saved code verifier")
			return
		}
		u, err := s.userByID(ctx, userID)
		if err != nil {
			authError(w, http.StatusNotFound, "User not found")
			return
		}
		s.writeSession(w, r, u)

	case "refresh_token":
		var userID string
		var revoked int
		err := s.db.QueryRowContext(ctx, `SELECT user_id, revoked FROM refresh_tokens WHERE token = ?`,
			strings.TrimSpace(req.RefreshToken)).Scan(&userID, &revoked)
		if err != nil {
			grantError(w, "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		if revoked != 0 {
			grantError(w, "Invalid Refresh Token: Already Used")
			return
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE token = ?`, req.RefreshToken); err != nil {
			authError(w, http.StatusInternalServerError, err.Error())
			return
		}
		u, err := s.userByID(ctx, userID)
		if err != nil {
			grantError(w, "Invalid Refresh Token: User Not Found")
			return
		}
		s.writeSession(w, r, u)

	default:
		authError(w, http.StatusBadRequest, "unsupported_grant_type")
	}
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	c, err := s.bearer(r)
	if err != nil {
		authError(w, http.StatusUnauthorized, err.Error())
		return
	}
	u, err := s.userByID(r.Context(), c.Subject)
	if err != nil {
		authError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleLogout revokes every refresh token of the caller. The access token
// itself stays valid until it expires.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	c, err := s.bearer(r)
	if err != nil {
		authError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if _, err := s.db.ExecContext(r.Context(), `UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?`, c.Subject); err != nil {
		authError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, u userJSON) {
	sess, err := s.issueSession(r.Context(), u)
	if err != nil {
		authError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) issueSession(ctx context.Context, u userJSON) (sessionJSON, error) {
	now := s.cfg.Now()
	exp := now.Add(s.cfg.AccessTTL)
	access, err := signToken(s.secret, claims{
		Email: u.Email,
		Role:  "authenticated",
		Typ:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		return sessionJSON{}, err
	}
	refresh, err := newNonce()
	if err != nil {
		return sessionJSON{}, err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO refresh_tokens(token, user_id) VALUES(?, ?)`, refresh, u.ID); err != nil {
		return sessionJSON{}, err
	}
	return sessionJSON{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
		ExpiresAt:    exp.Unix(),
		RefreshToken: refresh,
		User:         u,
	}, nil
}

func (s *Server) userByEmail(ctx context.Context, email string) (userJSON, error) {
	u := userJSON{Aud: "authenticated", Role: "authenticated"}
	err := s.db.QueryRowContext(ctx, `SELECT id, email FROM users WHERE email = ?`, email).Scan(&u.ID, &u.Email)
	return u, err
}

func (s *Server) userByID(ctx context.Context, id string) (userJSON, error) {
	u := userJSON{Aud: "authenticated", Role: "authenticated"}
	err := s.db.QueryRowContext(ctx, `SELECT id, email FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Email)
	return u, err
}

func (s *Server) publicBase(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	return "http://" + r.Host
}
