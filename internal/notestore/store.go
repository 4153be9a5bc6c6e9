// Package notestore reads and writes note rows scoped to one principal.
package notestore

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"quicknotes/internal/model"
)

// Store is the remote note collection. Every call is scoped to userID.
type Store interface {
	// List returns the principal's notes, newest created first.
	List(ctx context.Context, userID string) ([]model.Note, error)
	Insert(ctx context.Context, userID string, n model.Note) error
	// Update writes title and content only.
	Update(ctx context.Context, userID string, n model.Note) error
	Delete(ctx context.Context, userID, id string) error
}

// NewID returns a note id that sorts roughly by creation time: base36 epoch
// millis followed by base36 of 48 random bits.
func NewID(now time.Time) string {
	var b [8]byte
	_, _ = rand.Read(b[2:])
	r := binary.BigEndian.Uint64(b[:])
	return strconv.FormatInt(now.UnixMilli(), 36) + strconv.FormatUint(r, 36)
}

// row is the wire shape of a note.
type row struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Created string `json:"created"`
}

const wireLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatCreated renders epoch millis as the wire timestamp (UTC, millisecond precision).
func FormatCreated(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(wireLayout)
}

// ParseCreated reads a wire timestamp into epoch millis. Postgres may answer
// with microseconds, a numeric offset or no zone at all (read as UTC).
func ParseCreated(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixMilli(), nil
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07",
		"2006-01-02 15:04:05.999999999",
	} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	_, err := time.Parse(time.RFC3339Nano, s)
	return 0, err
}

func toRow(userID string, n model.Note) row {
	return row{ID: n.ID, UserID: userID, Title: n.Title, Content: n.Content, Created: FormatCreated(n.Created)}
}

func fromRow(r row) (model.Note, error) {
	ms, err := ParseCreated(r.Created)
	if err != nil {
		return model.Note{}, err
	}
	return model.Note{ID: r.ID, Title: r.Title, Content: r.Content, Created: ms}, nil
}
