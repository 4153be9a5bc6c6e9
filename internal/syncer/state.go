package syncer

import (
	"slices"

	"quicknotes/internal/model"
)

type StatusKind int

const (
	StatusNone StatusKind = iota
	StatusInfo
	StatusSuccess
	StatusLoading
	StatusError
)

func (k StatusKind) String() string {
	switch k {
	case StatusInfo:
		return "info"
	case StatusSuccess:
		return "success"
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	default:
		return "none"
	}
}

// Status is the single status line. Seq increases with every change so an
// expiry timer can tell whether its message is still the one showing.
type Status struct {
	Text     string
	Kind     StatusKind
	AutoHide bool
	Seq      int
}

func (s Status) Visible() bool { return s.Text != "" }

// State is the application state owned by the Engine loop. Subscribers
// receive copies.
type State struct {
	// Enabled is false when no backend is configured.
	Enabled   bool
	Principal *model.Principal
	// Notes is ordered newest created first.
	Notes []model.Note

	// Editing is true while the editor is open; EditingID is empty for a new note.
	Editing   bool
	EditingID string

	Status Status

	Reconciling bool
	Saving      bool
	SigningOut  bool
}

func (s State) SignedIn() bool { return s.Principal != nil }

// Note returns the note with id, if present.
func (s State) Note(id string) (model.Note, bool) {
	for _, n := range s.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return model.Note{}, false
}

func (s State) clone() State {
	out := s
	out.Notes = slices.Clone(s.Notes)
	if s.Principal != nil {
		p := *s.Principal
		out.Principal = &p
	}
	return out
}

func (s *State) indexOf(id string) int {
	return slices.IndexFunc(s.Notes, func(n model.Note) bool { return n.ID == id })
}
