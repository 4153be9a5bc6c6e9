package identity

import (
	"context"
	"testing"
	"time"

	"quicknotes/internal/model"
	"quicknotes/internal/store"
)

func TestWatch_EmitsOnExternalSessionChange(t *testing.T) {
	c, _, dir := newTestClient(t)
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	if err := dir.SaveAuthState(&store.AuthState{Session: &model.Session{
		AccessToken:  "from-other-process",
		RefreshToken: "rt",
		User:         model.Principal{ID: "u-9", Email: "z@example.com"},
	}}); err != nil {
		t.Fatalf("SaveAuthState: %v", err)
	}

	ev := recv(t, events)
	if ev.Kind != SignedIn || ev.Session == nil || ev.Session.User.ID != "u-9" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if err := dir.SaveAuthState(&store.AuthState{}); err != nil {
		t.Fatalf("SaveAuthState: %v", err)
	}
	if ev := recv(t, events); ev.Kind != SignedOut {
		t.Fatalf("expected SignedOut, got %v", ev.Kind)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not stop")
	}
}
