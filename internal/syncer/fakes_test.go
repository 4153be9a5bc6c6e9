package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quicknotes/internal/identity"
	"quicknotes/internal/model"
)

type fakeProvider struct {
	mu         sync.Mutex
	session    *model.Session
	sessionErr error
	events     chan identity.Event

	magicErr   error
	magicCalls []string
	redirects  []string

	exchanged [][2]string

	signOut      func(ctx context.Context) error
	signOutCalls int
}

func newFakeProvider(s *model.Session) *fakeProvider {
	return &fakeProvider{session: s, events: make(chan identity.Event, 32)}
}

func (f *fakeProvider) RequestMagicLink(_ context.Context, email, redirectTo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.magicCalls = append(f.magicCalls, email)
	f.redirects = append(f.redirects, redirectTo)
	return f.magicErr
}

func (f *fakeProvider) CurrentSession(context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.sessionErr
}

func (f *fakeProvider) Subscribe() (<-chan identity.Event, func()) {
	return f.events, func() {}
}

func (f *fakeProvider) ExchangeTokens(_ context.Context, at, rt string) (*model.Session, error) {
	f.mu.Lock()
	f.exchanged = append(f.exchanged, [2]string{at, rt})
	s := &model.Session{AccessToken: at, RefreshToken: rt, User: model.Principal{ID: "u1", Email: "a@b.com"}}
	f.session = s
	f.mu.Unlock()
	f.emit(identity.SignedIn, s)
	return s, nil
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOutCalls++
	fn := f.signOut
	f.session = nil
	f.mu.Unlock()
	f.emit(identity.SignedOut, nil)
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (f *fakeProvider) emit(kind identity.EventKind, s *model.Session) {
	f.events <- identity.Event{Kind: kind, Session: s}
}

func (f *fakeProvider) magicCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.magicCalls)
}

type fakeStore struct {
	mu    sync.Mutex
	rows  map[string][]model.Note
	gate  chan struct{}
	// saveGate, when set, holds Insert until it is closed.
	saveGate chan struct{}
	calls    map[string]int

	inFlight    int
	maxInFlight int

	listErr   error
	insertErr error
	updateErr error
	deleteErr error

	inserted []model.Note
	updated  []model.Note
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string][]model.Note{}, calls: map[string]int{}}
}

func (f *fakeStore) List(ctx context.Context, userID string) ([]model.Note, error) {
	f.mu.Lock()
	f.calls["list"]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Note(nil), f.rows[userID]...), nil
}

func (f *fakeStore) Insert(ctx context.Context, userID string, n model.Note) error {
	f.mu.Lock()
	f.calls["insert"]++
	gate := f.saveGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, n)
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows[userID] = append([]model.Note{n}, f.rows[userID]...)
	return nil
}

func (f *fakeStore) Update(_ context.Context, userID string, n model.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	f.updated = append(f.updated, n)
	return f.updateErr
}

func (f *fakeStore) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	f.deleted = append(f.deleted, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	rows := f.rows[userID][:0]
	for _, n := range f.rows[userID] {
		if n.ID != id {
			rows = append(rows, n)
		}
	}
	f.rows[userID] = rows
	return nil
}

func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func session(userID, token string) *model.Session {
	return &model.Session{AccessToken: token, RefreshToken: "rt", User: model.Principal{ID: userID, Email: userID + "@example.com"}}
}

var errBoom = errors.New("boom")

func start(t *testing.T, e *Engine, initialURL string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx, initialURL)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, e *Engine, what string, pred func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := e.Snapshot()
		if pred(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state: %+v", what, st)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func idle(st State) bool { return !st.Reconciling && !st.Saving && !st.SigningOut }

func signedInIdle(st State) bool { return st.SignedIn() && idle(st) && st.Status.Text == "" }
