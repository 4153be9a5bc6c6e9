package identity

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"quicknotes/internal/model"
	"quicknotes/internal/store"
)

const watchDebounce = 50 * time.Millisecond

// Watch follows the persisted session file until ctx is done, so a sign-in or
// sign-out performed by another process (for example `quicknotes callback`)
// reaches this client's subscribers.
func (c *Client) Watch(ctx context.Context) error {
	if err := c.state.Ensure(); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	// Watch the directory: atomic writes replace the file, which drops a file watch.
	if err := w.Add(c.state.Path); err != nil {
		return fmt.Errorf("watch %s: %w", c.state.Path, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != store.AuthStateFileName {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("session watch", "err", err)
		case <-fire:
			fire = nil
			c.reload()
		}
	}
}

// reload re-reads the session file and emits an event if it changed under us.
func (c *Client) reload() {
	st, err := c.state.LoadAuthState()
	if err != nil {
		c.logger.Warn("reload session", "err", err)
		return
	}
	c.mu.Lock()
	prev := c.session
	changed := !model.SameSession(prev, st.Session)
	c.session = copySession(st.Session)
	c.loaded = true
	c.mu.Unlock()
	if !changed {
		return
	}
	kind := SignedIn
	switch {
	case st.Session == nil:
		kind = SignedOut
	case prev != nil && prev.User.ID == st.Session.User.ID:
		kind = TokenRefreshed
	}
	c.logger.Debug("session changed on disk", "kind", kind.String())
	c.emit(Event{Kind: kind, Session: st.Session})
}
