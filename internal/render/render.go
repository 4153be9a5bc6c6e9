// Package render turns engine state into a view model. It is pure: the same
// state always yields the same View.
package render

import (
	"fmt"
	"strings"
	"time"

	"quicknotes/internal/model"
	"quicknotes/internal/syncer"
)

type Entry struct {
	ID      string
	Title   string
	Content string
	Created time.Time
	// Editing marks the note currently open in the editor.
	Editing bool
	// CanEdit and CanDelete are the per-entry affordances.
	CanEdit   bool
	CanDelete bool
}

type View struct {
	Enabled  bool
	SignedIn bool
	// UserLabel is the principal's email, else its id, else "-".
	UserLabel string
	CanCreate bool

	Empty   bool
	Entries []Entry
	Count   string

	Status     string
	StatusKind syncer.StatusKind
	// Busy is true while a persistent status (loading or in-flight call) shows.
	Busy bool

	Editing     bool
	EditorTitle string
	EditorNote  *Entry
}

// CountText is the plural-aware note count.
func CountText(n int) string {
	if n == 1 {
		return "1 note"
	}
	return fmt.Sprintf("%d notes", n)
}

func Build(st syncer.State) View {
	v := View{
		Enabled:    st.Enabled,
		SignedIn:   st.SignedIn(),
		UserLabel:  "-",
		Empty:      len(st.Notes) == 0,
		Count:      CountText(len(st.Notes)),
		Status:     st.Status.Text,
		StatusKind: st.Status.Kind,
		Busy:       st.Status.Kind == syncer.StatusLoading,
		Editing:    st.Editing,
	}
	if st.Principal != nil {
		v.UserLabel = principalLabel(*st.Principal)
	}
	v.CanCreate = v.SignedIn && !st.Reconciling

	v.Entries = make([]Entry, 0, len(st.Notes))
	for _, n := range st.Notes {
		e := entryFor(n, v.SignedIn)
		e.Editing = st.Editing && st.EditingID != "" && st.EditingID == n.ID
		if e.Editing {
			cp := e
			v.EditorNote = &cp
		}
		v.Entries = append(v.Entries, e)
	}
	if st.Editing {
		v.EditorTitle = "Create Note"
		if st.EditingID != "" {
			v.EditorTitle = "Edit Note"
		}
	}
	return v
}

func entryFor(n model.Note, signedIn bool) Entry {
	return Entry{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Created:   n.CreatedTime(),
		CanEdit:   signedIn,
		CanDelete: signedIn,
	}
}

func principalLabel(p model.Principal) string {
	if l := strings.TrimSpace(p.Label()); l != "" {
		return l
	}
	return "-"
}
