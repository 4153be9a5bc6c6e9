package tui

import "quicknotes/internal/syncer"

type modalKind int

const (
	modalNone modalKind = iota
	modalSignIn
	modalCallbackURL
	modalEditor
	modalConfirmDelete
)

type confirmModalFocus int

const (
	confirmFocusConfirm confirmModalFocus = iota
	confirmFocusCancel
)

type editorFocus int

const (
	editorFocusTitle editorFocus = iota
	editorFocusContent
)

// stateMsg carries a snapshot published by the engine.
type stateMsg struct{ state syncer.State }

// newNoteKey marks the editor as open on a note that does not exist yet.
const newNoteKey = "\x00new"
