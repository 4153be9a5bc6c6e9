package syncer

// Action is a user intent dispatched to the Engine loop.
type Action interface{ isAction() }

type RequestMagicLink struct{ Email string }

// OpenEditor opens the editor on NoteID, or on a new note when NoteID is empty.
type OpenEditor struct{ NoteID string }

type CloseEditor struct{}

// SaveNote saves the editor contents into the note being edited.
type SaveNote struct{ Title, Content string }

type DeleteNote struct{ ID string }

type SignOut struct{}

// Reload re-reads the current session and reconciles against it.
type Reload struct{}

// RecoverRedirect hands a magic-link redirect URL to the engine.
type RecoverRedirect struct{ URL string }

type ClearStatus struct{}

func (RequestMagicLink) isAction() {}
func (OpenEditor) isAction()       {}
func (CloseEditor) isAction()      {}
func (SaveNote) isAction()         {}
func (DeleteNote) isAction()       {}
func (SignOut) isAction()          {}
func (Reload) isAction()           {}
func (RecoverRedirect) isAction()  {}
func (ClearStatus) isAction()      {}
