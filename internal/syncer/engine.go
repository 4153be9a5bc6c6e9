// Package syncer reconciles the local note projection with the signed-in
// session and the remote note store.
//
// All state lives in one goroutine (Run). Provider session events, UI actions
// and completions of network calls arrive on a single inbox; network calls
// themselves run in their own goroutines and only ever report back through
// that inbox.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quicknotes/internal/identity"
	"quicknotes/internal/model"
	"quicknotes/internal/notestore"
)

const (
	DefaultSignOutDeadline = 8 * time.Second
	DefaultStatusTTL       = 3 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
)

const (
	msgNotConfigured    = "Cloud sync is not configured."
	msgSendingLink      = "Sending magic link..."
	msgCheckEmail       = "Check your email for the login link."
	msgLoading          = "Loading notes..."
	msgRequired         = "Title and content are required."
	msgSaving           = "Saving note..."
	msgUpdating         = "Updating note..."
	msgSaved            = "Note saved successfully!"
	msgUpdated          = "Note updated successfully!"
	msgDeleted          = "Note deleted successfully!"
	msgGone             = "Note no longer exists."
	msgSigningOut       = "Signing out..."
	msgSignedOut        = "Signed out successfully."
	msgSignedOutTimeout = "Signed out (network timeout, using local fallback)."
	msgSignedOutNetErr  = "Signed out (network error, using local fallback)."
)

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDFunc replaces notestore.NewID for new notes.
func WithIDFunc(fn func(time.Time) string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func WithSignOutDeadline(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.signOutDeadline = d
		}
	}
}

func WithStatusTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.statusTTL = d
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.requestTimeout = d
		}
	}
}

// WithCallbackURL sets the redirect target sent with magic-link requests.
func WithCallbackURL(u string) Option {
	return func(e *Engine) { e.callbackURL = strings.TrimSpace(u) }
}

type Engine struct {
	provider identity.Provider
	notes    notestore.Store

	logger          *slog.Logger
	now             func() time.Time
	newID           func(time.Time) string
	signOutDeadline time.Duration
	statusTTL       time.Duration
	requestTimeout  time.Duration
	callbackURL     string

	inbox   chan any
	updates chan State
	done    chan struct{}
	runOnce sync.Once
	ctx     context.Context

	mu   sync.Mutex
	last State

	// Loop-owned.
	state   State
	session *model.Session
	started bool
	// missed is set when a session event arrived before startup finished;
	// the session is read again once the initial pass settles.
	missed bool
}

// New builds an Engine. A nil provider or store puts it in disabled mode:
// signed out, no notes, and no network calls.
func New(provider identity.Provider, store notestore.Store, opts ...Option) *Engine {
	e := &Engine{
		provider:        provider,
		notes:           store,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
		newID:           notestore.NewID,
		signOutDeadline: DefaultSignOutDeadline,
		statusTTL:       DefaultStatusTTL,
		requestTimeout:  DefaultRequestTimeout,
		inbox:           make(chan any, 64),
		updates:         make(chan State, 1),
		done:            make(chan struct{}),
		ctx:             context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state.Enabled = provider != nil && store != nil
	e.last = e.state.clone()
	return e
}

// Updates delivers state snapshots. Only the latest unread snapshot is kept.
func (e *Engine) Updates() <-chan State { return e.updates }

// Snapshot returns the most recently published state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.clone()
}

// Dispatch queues a user action. It never blocks once Run has returned.
func (e *Engine) Dispatch(a Action) {
	if a == nil {
		return
	}
	e.post(a)
}

func (e *Engine) post(msg any) {
	select {
	case e.inbox <- msg:
	case <-e.done:
	}
}

// Run drives the engine until ctx is done. initialURL, when it carries a
// redirect credential, is consumed before the first reconciliation.
func (e *Engine) Run(ctx context.Context, initialURL string) error {
	first := false
	e.runOnce.Do(func() { first = true })
	if !first {
		return errAlreadyRunning
	}
	defer close(e.done)
	e.ctx = ctx

	e.publish()
	if e.state.Enabled {
		events, unsubscribe := e.provider.Subscribe()
		defer unsubscribe()
		go e.forward(ctx, events)
		e.startup(initialURL)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-e.inbox:
			e.handle(msg)
		}
	}
}

type sessionEvent struct{ ev identity.Event }

func (e *Engine) forward(ctx context.Context, events <-chan identity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.post(sessionEvent{ev: ev})
		}
	}
}

func (e *Engine) handle(msg any) {
	if !e.state.Enabled {
		e.handleDisabled(msg)
		return
	}
	switch msg := msg.(type) {
	case sessionEvent:
		e.onSessionEvent(msg.ev)
	case startupDone:
		e.onStartupDone(msg)
	case sessionLoaded:
		e.onSessionLoaded(msg)
	case listDone:
		e.onListDone(msg)
	case magicDone:
		e.onMagicDone(msg)
	case saveDone:
		e.onSaveDone(msg)
	case deleteDone:
		e.onDeleteDone(msg)
	case signOutDone:
		e.onSignOutDone(msg)
	case recoverDone:
		e.onRecoverDone(msg)
	case statusExpired:
		e.onStatusExpired(msg)

	case RequestMagicLink:
		e.requestMagicLink(msg)
	case OpenEditor:
		e.openEditor(msg)
	case CloseEditor:
		e.closeEditor()
		e.publish()
	case SaveNote:
		e.saveNote(msg)
	case DeleteNote:
		e.deleteNote(msg)
	case SignOut:
		e.signOut()
	case Reload:
		e.reload()
	case RecoverRedirect:
		e.recoverRedirect(msg)
	case ClearStatus:
		e.clearStatus()
		e.publish()
	default:
		e.logger.Warn("unknown engine message", "type", fmt.Sprintf("%T", msg))
	}
}

func (e *Engine) handleDisabled(msg any) {
	switch m := msg.(type) {
	case statusExpired:
		e.onStatusExpired(m)
	case CloseEditor, ClearStatus:
		e.clearStatus()
		e.publish()
	case Action:
		e.setStatus(msgNotConfigured, StatusInfo, true)
		e.publish()
	}
}

func (e *Engine) onSessionEvent(ev identity.Event) {
	if !e.started {
		// The initial CurrentSession read supersedes anything emitted before it.
		e.logger.Debug("session event before initial load ignored", "kind", ev.Kind.String())
		e.missed = true
		return
	}
	if model.SameSession(e.session, ev.Session) {
		e.logger.Debug("session unchanged", "kind", ev.Kind.String())
		return
	}
	e.reconcile(ev.Session, ev.Kind.String())
}

// reconcile makes the local projection follow session. A trigger that arrives
// while a pass is in flight is dropped, not queued.
func (e *Engine) reconcile(session *model.Session, reason string) {
	if e.state.Reconciling {
		e.logger.Debug("reconcile dropped: already in flight", "reason", reason)
		return
	}
	e.state.Reconciling = true
	e.logger.Debug("reconcile", "reason", reason, "signed_in", session != nil)

	prev := e.state.Principal
	e.session = session
	if session == nil {
		e.state.Principal = nil
	} else {
		p := session.User
		e.state.Principal = &p
	}
	if prev == nil || e.state.Principal == nil || prev.ID != e.state.Principal.ID {
		e.closeEditor()
	}
	e.publish()

	if e.state.Principal == nil {
		e.state.Notes = nil
		e.clearStatus()
		e.reconcileFinished()
		e.publish()
		return
	}

	e.setStatus(msgLoading, StatusLoading, false)
	e.publish()
	e.listTask(e.state.Principal.ID, e.state.Status.Seq)
}

// reconcileFinished ends a pass and re-reads the session once if events were
// ignored while startup was running.
func (e *Engine) reconcileFinished() {
	e.state.Reconciling = false
	if e.started && e.missed {
		e.missed = false
		e.sessionTask(true)
	}
}

func (e *Engine) onListDone(msg listDone) {
	defer e.publish()
	e.reconcileFinished()
	if e.state.Principal == nil || e.state.Principal.ID != msg.userID {
		e.logger.Debug("stale note list discarded", "user", msg.userID)
		return
	}
	if msg.err != nil {
		e.logger.Warn("load notes", "err", msg.err)
		e.state.Notes = []model.Note{}
		e.setStatus("Load failed: "+msg.err.Error(), StatusError, false)
		return
	}
	e.state.Notes = msg.notes
	if e.state.Status.Seq == msg.statusSeq {
		e.clearStatus()
	}
}

func (e *Engine) requestMagicLink(a RequestMagicLink) {
	email := strings.TrimSpace(a.Email)
	if email == "" {
		return
	}
	e.setStatus(msgSendingLink, StatusLoading, false)
	e.publish()
	e.magicLinkTask(email)
}

func (e *Engine) onMagicDone(msg magicDone) {
	if msg.err != nil {
		e.logger.Warn("magic link", "email", msg.email, "err", msg.err)
		e.setStatus("Error: "+msg.err.Error(), StatusError, false)
	} else {
		e.logger.Info("magic link sent", "email", msg.email)
		e.setStatus(msgCheckEmail, StatusSuccess, true)
	}
	e.publish()
}

func (e *Engine) openEditor(a OpenEditor) {
	defer e.publish()
	id := strings.TrimSpace(a.NoteID)
	if !e.state.SignedIn() {
		if id == "" {
			e.setStatus("Please sign in to create notes.", StatusInfo, true)
		} else {
			e.setStatus("Please sign in to edit notes.", StatusInfo, true)
		}
		return
	}
	if id != "" && e.state.indexOf(id) < 0 {
		e.setStatus(msgGone, StatusInfo, true)
		return
	}
	e.state.Editing = true
	e.state.EditingID = id
}

func (e *Engine) closeEditor() {
	e.state.Editing = false
	e.state.EditingID = ""
}

func (e *Engine) saveNote(a SaveNote) {
	if !e.state.SignedIn() || e.state.Reconciling || e.state.Saving || e.state.SigningOut || !e.state.Editing {
		e.logger.Debug("save ignored", "signed_in", e.state.SignedIn(), "reconciling", e.state.Reconciling,
			"saving", e.state.Saving, "signing_out", e.state.SigningOut)
		return
	}
	defer e.publish()
	title := strings.TrimSpace(a.Title)
	content := strings.TrimSpace(a.Content)
	if title == "" || content == "" {
		e.setStatus(msgRequired, StatusInfo, true)
		return
	}
	userID := e.state.Principal.ID

	if id := e.state.EditingID; id != "" {
		i := e.state.indexOf(id)
		if i < 0 {
			e.closeEditor()
			e.setStatus(msgGone, StatusInfo, true)
			return
		}
		e.state.Notes[i].Title = title
		e.state.Notes[i].Content = content
		e.state.Saving = true
		e.setStatus(msgUpdating, StatusLoading, false)
		e.saveTask("update", userID, e.state.Notes[i])
		return
	}

	now := e.now()
	n := model.Note{ID: e.newID(now), Title: title, Content: content, Created: now.UnixMilli()}
	e.state.Notes = append([]model.Note{n}, e.state.Notes...)
	e.state.Saving = true
	e.setStatus(msgSaving, StatusLoading, false)
	e.saveTask("insert", userID, n)
}

func (e *Engine) onSaveDone(msg saveDone) {
	defer e.publish()
	e.state.Saving = false
	if e.state.SigningOut || e.state.Principal == nil || e.state.Principal.ID != msg.userID {
		e.logger.Debug("save result discarded after sign-out", "op", msg.op, "id", msg.note.ID, "err", msg.err)
		return
	}
	if msg.err != nil {
		// The optimistic local change stays; the next reload settles it.
		e.logger.Warn("save note", "op", msg.op, "id", msg.note.ID, "err", msg.err)
		e.setStatus("Save failed: "+msg.err.Error(), StatusError, false)
		return
	}
	editingID := ""
	if msg.op == "update" {
		editingID = msg.note.ID
	}
	if e.state.Editing && e.state.EditingID == editingID {
		e.closeEditor()
	}
	if msg.op == "update" {
		e.setStatus(msgUpdated, StatusSuccess, true)
	} else {
		e.setStatus(msgSaved, StatusSuccess, true)
	}
}

func (e *Engine) deleteNote(a DeleteNote) {
	defer e.publish()
	if !e.state.SignedIn() {
		e.setStatus("Please sign in to delete notes.", StatusInfo, true)
		return
	}
	id := strings.TrimSpace(a.ID)
	if id == "" {
		return
	}
	e.deleteTask(e.state.Principal.ID, id)
}

func (e *Engine) onDeleteDone(msg deleteDone) {
	defer e.publish()
	if e.state.SigningOut || e.state.Principal == nil || e.state.Principal.ID != msg.userID {
		e.logger.Debug("delete result discarded after sign-out", "id", msg.id, "err", msg.err)
		return
	}
	if msg.err != nil {
		e.logger.Warn("delete note", "id", msg.id, "err", msg.err)
		e.setStatus("Delete failed: "+msg.err.Error(), StatusError, false)
		return
	}
	if i := e.state.indexOf(msg.id); i >= 0 {
		e.state.Notes = append(e.state.Notes[:i:i], e.state.Notes[i+1:]...)
	}
	if e.state.Editing && e.state.EditingID == msg.id {
		e.closeEditor()
	}
	e.setStatus(msgDeleted, StatusSuccess, true)
}

func (e *Engine) signOut() {
	if e.state.SigningOut {
		return
	}
	e.state.SigningOut = true
	e.setStatus(msgSigningOut, StatusLoading, true)
	e.publish()
	e.signOutTask()
}

func (e *Engine) onSignOutDone(msg signOutDone) {
	e.state.SigningOut = false
	e.session = nil
	e.state.Principal = nil
	e.state.Notes = nil
	e.closeEditor()
	switch {
	case msg.err == nil:
		e.setStatus(msgSignedOut, StatusSuccess, true)
	case errors.Is(msg.err, ErrSignOutDeadline):
		e.logger.Warn("sign out timed out, using local fallback", "deadline", e.signOutDeadline)
		e.setStatus(msgSignedOutTimeout, StatusInfo, true)
	default:
		e.logger.Warn("sign out failed, using local fallback", "err", msg.err)
		e.setStatus(msgSignedOutNetErr, StatusInfo, true)
	}
	e.publish()
}

func (e *Engine) reload() {
	if e.state.Reconciling {
		e.logger.Debug("reload dropped: already reconciling")
		return
	}
	e.sessionTask(false)
}

func (e *Engine) onSessionLoaded(msg sessionLoaded) {
	if msg.err != nil {
		e.logger.Warn("get session failed, treating as signed out", "err", msg.err)
	}
	if msg.recheck && (msg.err != nil || model.SameSession(e.session, msg.session)) {
		e.logger.Debug("session unchanged after startup", "err", msg.err)
		return
	}
	e.reconcile(msg.session, "reload")
}

func (e *Engine) recoverRedirect(a RecoverRedirect) {
	if strings.TrimSpace(a.URL) == "" {
		return
	}
	e.recoverTask(a.URL)
}

func (e *Engine) onRecoverDone(msg recoverDone) {
	if msg.err != nil {
		e.logger.Warn("redirect recovery failed", "kind", msg.res.Kind.String(), "err", msg.err)
		return
	}
	e.logger.Info("redirect recovered", "kind", msg.res.Kind.String())
}

func (e *Engine) onStartupDone(msg startupDone) {
	e.started = true
	if msg.recoverErr != nil {
		e.logger.Warn("redirect recovery skipped", "err", msg.recoverErr)
	}
	if msg.err != nil {
		e.logger.Warn("get session failed, starting signed out", "err", msg.err)
	}
	e.reconcile(msg.session, "initial")
}

// publish hands a copy of the state to subscribers, replacing any snapshot
// they have not read yet. Only the loop goroutine calls it.
func (e *Engine) publish() {
	snap := e.state.clone()
	e.mu.Lock()
	e.last = snap
	e.mu.Unlock()
	select {
	case <-e.updates:
	default:
	}
	select {
	case e.updates <- snap.clone():
	default:
	}
}
