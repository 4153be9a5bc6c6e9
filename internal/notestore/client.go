package notestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quicknotes/internal/model"
)

const table = "notes"

// TokenSource yields the bearer token for row-level-secured requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Options struct {
	BaseURL    string
	APIKey     string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a Store speaking PostgREST under <base>/rest/v1.
type Client struct {
	base   string
	apiKey string
	tokens TokenSource
	http   *http.Client
	logger *slog.Logger
}

var _ Store = (*Client)(nil)

func NewClient(opts Options) *Client {
	c := &Client{
		base:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey: strings.TrimSpace(opts.APIKey),
		tokens: opts.Tokens,
		http:   opts.HTTPClient,
		logger: opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

func (c *Client) List(ctx context.Context, userID string) ([]model.Note, error) {
	q := url.Values{}
	q.Set("select", "id,title,content,created")
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created.desc")
	var rows []row
	if err := c.do(ctx, http.MethodGet, q, nil, "", &rows); err != nil {
		return nil, &StoreReadError{UserID: userID, Reason: err.Error(), Err: err}
	}
	out := make([]model.Note, 0, len(rows))
	for _, r := range rows {
		n, err := fromRow(r)
		if err != nil {
			return nil, &StoreReadError{UserID: userID, Reason: fmt.Sprintf("note %s: bad created timestamp %q", r.ID, r.Created), Err: err}
		}
		out = append(out, n)
	}
	return out, nil
}

func (c *Client) Insert(ctx context.Context, userID string, n model.Note) error {
	if err := c.do(ctx, http.MethodPost, nil, []row{toRow(userID, n)}, "return=minimal", nil); err != nil {
		return &StoreWriteError{Op: "insert", ID: n.ID, Reason: err.Error(), Err: err}
	}
	return nil
}

func (c *Client) Update(ctx context.Context, userID string, n model.Note) error {
	q := scoped(n.ID, userID)
	body := map[string]string{"title": n.Title, "content": n.Content}
	if err := c.do(ctx, http.MethodPatch, q, body, "return=minimal", nil); err != nil {
		return &StoreWriteError{Op: "update", ID: n.ID, Reason: err.Error(), Err: err}
	}
	return nil
}

// Delete removes the row; deleting a row that is already gone succeeds.
func (c *Client) Delete(ctx context.Context, userID, id string) error {
	if err := c.do(ctx, http.MethodDelete, scoped(id, userID), nil, "return=minimal", nil); err != nil {
		return &StoreWriteError{Op: "delete", ID: id, Reason: err.Error(), Err: err}
	}
	return nil
}

// scoped matches by id and principal, even though the server enforces row scoping too.
func scoped(id, userID string) url.Values {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("user_id", "eq."+userID)
	return q
}

func (c *Client) do(ctx context.Context, method string, q url.Values, in any, prefer string, out any) error {
	token := c.apiKey
	if c.tokens != nil {
		t, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		token = t
	}

	u := c.base + "/rest/v1/" + table
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
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("store request", "method", method, "status", resp.StatusCode, "dur", time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
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
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

// errorReason extracts the PostgREST error message.
func errorReason(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Details string `json:"details"`
		Hint    string `json:"hint"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	switch {
	case body.Message != "" && body.Details != "":
		return body.Message + ": " + body.Details
	case body.Message != "":
		return body.Message
	default:
		return body.Msg
	}
}
