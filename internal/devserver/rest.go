package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"quicknotes/internal/notestore"
)

const createdLayout = "2006-01-02T15:04:05.999999-07:00"

var noteColumns = []string{"id", "user_id", "title", "content", "created"}

type pgError struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
	Hint    *string `json:"hint"`
}

func restError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, pgError{Code: code, Message: msg})
}

type noteRow struct {
	ID      string
	UserID  string
	Title   string
	Content string
	Created int64 // unix micros
}

func (n noteRow) columns(sel []string) map[string]any {
	out := make(map[string]any, len(sel))
	for _, c := range sel {
		switch c {
		case "id":
			out[c] = n.ID
		case "user_id":
			out[c] = n.UserID
		case "title":
			out[c] = n.Title
		case "content":
			out[c] = n.Content
		case "created":
			out[c] = time.UnixMicro(n.Created).UTC().Format(createdLayout)
		}
	}
	return out
}

// restRequest is the caller and the row filter of one PostgREST call.
type restRequest struct {
	userID string
	where  []string
	args   []any
	sel    []string
	desc   *bool
}

// parseRest checks the table, authenticates the caller, and translates the
// supported PostgREST query subset (eq filters, select, order) into SQL.
// Every query is restricted to the caller's rows.
func (s *Server) parseRest(w http.ResponseWriter, r *http.Request) (*restRequest, bool) {
	if table := mux.Vars(r)["table"]; table != "notes" {
		restError(w, http.StatusNotFound, "42P01", fmt.Sprintf("relation \"public.%s\" does not exist", table))
		return nil, false
	}
	c, err := s.bearer(r)
	if err != nil {
		restError(w, http.StatusUnauthorized, "PGRST301", err.Error())
		return nil, false
	}

	req := &restRequest{userID: c.Subject, where: []string{"user_id = ?"}, args: []any{c.Subject}, sel: noteColumns}
	q := r.URL.Query()
	for key, vals := range q {
		switch key {
		case "select":
			sel, err := parseSelect(vals[0])
			if err != nil {
				restError(w, http.StatusBadRequest, "PGRST100", err.Error())
				return nil, false
			}
			req.sel = sel
		case "order":
			desc, err := parseOrder(vals[0])
			if err != nil {
				restError(w, http.StatusBadRequest, "PGRST100", err.Error())
				return nil, false
			}
			req.desc = &desc
		case "id", "user_id", "title", "content":
			for _, v := range vals {
				val, ok := strings.CutPrefix(v, "eq.")
				if !ok {
					restError(w, http.StatusBadRequest, "PGRST100", fmt.Sprintf("unsupported filter %s=%s", key, v))
					return nil, false
				}
				req.where = append(req.where, key+" = ?")
				req.args = append(req.args, val)
			}
		default:
			restError(w, http.StatusBadRequest, "PGRST100", fmt.Sprintf("unsupported query parameter %q", key))
			return nil, false
		}
	}
	return req, true
}

func parseSelect(v string) ([]string, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "*" {
		return noteColumns, nil
	}
	var out []string
	for _, c := range strings.Split(v, ",") {
		c = strings.TrimSpace(c)
		if !isNoteColumn(c) {
			return nil, fmt.Errorf("column notes.%s does not exist", c)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseOrder(v string) (desc bool, err error) {
	col, dir, _ := strings.Cut(strings.TrimSpace(v), ".")
	if col != "created" {
		return false, fmt.Errorf("unsupported order column %q", col)
	}
	switch dir {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, fmt.Errorf("unsupported order direction %q", dir)
	}
}

func isNoteColumn(c string) bool {
	for _, n := range noteColumns {
		if n == c {
			return true
		}
	}
	return false
}

func (s *Server) handleNotesList(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseRest(w, r)
	if !ok {
		return
	}
	query := `SELECT id, user_id, title, content, created_unixus FROM notes WHERE ` + strings.Join(req.where, " AND ")
	if req.desc != nil {
		if *req.desc {
			query += ` ORDER BY created_unixus DESC, id DESC`
		} else {
			query += ` ORDER BY created_unixus ASC, id ASC`
		}
	}
	rows, err := s.db.QueryContext(r.Context(), query, req.args...)
	if err != nil {
		restError(w, http.StatusInternalServerError, "XX000", err.Error())
		return
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		var n noteRow
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Created); err != nil {
			restError(w, http.StatusInternalServerError, "XX000", err.Error())
			return
		}
		out = append(out, n.columns(req.sel))
	}
	if err := rows.Err(); err != nil {
		restError(w, http.StatusInternalServerError, "XX000", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type insertRow struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Created string `json:"created"`
}

func (s *Server) handleNotesInsert(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseRest(w, r)
	if !ok {
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		restError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json")
		return
	}
	var in []insertRow
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "{") {
		var one insertRow
		if err := json.Unmarshal(raw, &one); err != nil {
			restError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json")
			return
		}
		in = []insertRow{one}
	} else if err := json.Unmarshal(raw, &in); err != nil {
		restError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json")
		return
	}

	rows := make([]noteRow, 0, len(in))
	for _, ir := range in {
		n := noteRow{ID: strings.TrimSpace(ir.ID), UserID: strings.TrimSpace(ir.UserID), Title: ir.Title, Content: ir.Content}
		if n.UserID == "" {
			n.UserID = req.userID
		}
		if n.UserID != req.userID {
			restError(w, http.StatusForbidden, "42501", `new row violates row-level security policy for table "notes"`)
			return
		}
		if n.ID == "" {
			n.ID = notestore.NewID(s.cfg.Now())
		}
		if strings.TrimSpace(ir.Created) == "" {
			n.Created = s.cfg.Now().UnixMicro()
		} else {
			ms, err := notestore.ParseCreated(ir.Created)
			if err != nil {
				restError(w, http.StatusBadRequest, "22007", fmt.Sprintf("invalid input syntax for type timestamp with time zone: %q", ir.Created))
				return
			}
			n.Created = ms * 1000
		}
		rows = append(rows, n)
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		restError(w, http.StatusInternalServerError, "XX000", err.Error())
		return
	}
	defer func() { _ = tx.Rollback() }()
	for _, n := range rows {
		_, err := tx.ExecContext(r.Context(), `INSERT INTO notes(id, user_id, title, content, created_unixus) VALUES(?, ?, ?, ?, ?)`,
			n.ID, n.UserID, n.Title, n.Content, n.Created)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				restError(w, http.StatusConflict, "23505", `duplicate key value violates unique constraint "notes_pkey"`)
				return
			}
			restError(w, http.StatusInternalServerError, "XX000", err.Error())
			return
		}
	}
	if err := tx.Commit(); err != nil {
		restError(w, http.StatusInternalServerError, "XX000", err.Error())
		return
	}

	if strings.Contains(r.Header.Get("Prefer"), "return=representation") {
		out := make([]map[string]any, 0, len(rows))
		for _, n := range rows {
			out = append(out, n.columns(req.sel))
		}
		writeJSON(w, http.StatusCreated, out)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleNotesUpdate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseRest(w, r)
	if !ok {
		return
	}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		restError(w, http.StatusBadRequest, "PGRST102", "Empty or invalid json")
		return
	}
	var sets []string
	var args []any
	for _, col := range []string{"title", "content"} {
		raw, ok := body[col]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			restError(w, http.StatusBadRequest, "22P02", fmt.Sprintf("invalid value for %s", col))
			return
		}
		sets = append(sets, col+" = ?")
		args = append(args, v)
		delete(body, col)
	}
	if len(body) > 0 {
		unknown := make([]string, 0, len(body))
		for col := range body {
			unknown = append(unknown, col)
		}
		sort.Strings(unknown)
		restError(w, http.StatusBadRequest, "PGRST204", fmt.Sprintf("Could not find the '%s' column of 'notes' in the schema cache", unknown[0]))
		return
	}
	if len(sets) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	args = append(args, req.args...)
	query := `UPDATE notes SET ` + strings.Join(sets, ", ") + ` WHERE ` + strings.Join(req.where, " AND ")
	if _, err := s.db.ExecContext(r.Context(), query, args...); err != nil {
		restError(w, http.StatusInternalServerError, "XX000", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotesDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseRest(w, r)
	if !ok {
		return
	}
	query := `DELETE FROM notes WHERE ` + strings.Join(req.where, " AND ")
	if _, err := s.db.ExecContext(r.Context(), query, req.args...); err != nil {
		restError(w, http.StatusInternalServerError, "XX000", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// verifyURL builds the link handleVerify consumes.
func verifyURL(base, token, redirectTo string) string {
	q := url.Values{"token": {token}, "type": {"magiclink"}}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return strings.TrimRight(base, "/") + "/auth/v1/verify?" + q.Encode()
}
