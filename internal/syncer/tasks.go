package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quicknotes/internal/model"
	"quicknotes/internal/redirect"
)

var errAlreadyRunning = errors.New("syncer: engine already running")

type startupDone struct {
	session    *model.Session
	err        error
	recoverErr error
}

type sessionLoaded struct {
	session *model.Session
	err     error
	recheck bool
}

type listDone struct {
	userID    string
	statusSeq int
	notes     []model.Note
	err       error
}

type magicDone struct {
	email string
	err   error
}

type saveDone struct {
	op     string
	userID string
	note   model.Note
	err    error
}

type deleteDone struct {
	userID string
	id     string
	err    error
}

type signOutDone struct{ err error }

type recoverDone struct {
	res redirect.Result
	err error
}

// Each task runs one network call off the loop and posts its completion.

func (e *Engine) requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(e.ctx, e.requestTimeout)
}

func (e *Engine) startup(initialURL string) {
	go func() {
		ctx, cancel := e.requestCtx()
		defer cancel()
		var recoverErr error
		if redirect.HasCredential(initialURL) {
			_, recoverErr = redirect.Recover(ctx, initialURL, e.provider)
		}
		s, err := e.provider.CurrentSession(ctx)
		e.post(startupDone{session: s, err: err, recoverErr: recoverErr})
	}()
}

func (e *Engine) sessionTask(recheck bool) {
	go func() {
		ctx, cancel := e.requestCtx()
		defer cancel()
		s, err := e.provider.CurrentSession(ctx)
		e.post(sessionLoaded{session: s, err: err, recheck: recheck})
	}()
}

func (e *Engine) listTask(userID string, statusSeq int) {
	go func() {
		ctx, cancel := e.requestCtx()
		defer cancel()
		notes, err := e.notes.List(ctx, userID)
		if notes == nil && err == nil {
			notes = []model.Note{}
		}
		e.post(listDone{userID: userID, statusSeq: statusSeq, notes: notes, err: err})
	}()
}

func (e *Engine) magicLinkTask(email string) {
	redirectTo := e.callbackURL
	go func() {
		ctx, cancel := e.requestCtx()
		defer cancel()
		err := e.provider.RequestMagicLink(ctx, email, redirectTo)
		e.post(magicDone{email: email, err: err})
	}()
}

func (e *Engine) saveTask(op, userID string, n model.Note) {
	go func() {
		ctx, cancel := e.requestCtx()
		defer cancel()
		var err error
		switch op {
		case "update":
			err = e.notes.Update(ctx, userID, n)
		case "insert":
			err = e.notes.Insert(ctx, userID, n)
		default:
			err = fmt.Errorf("unknown save op %q", op)
		}
		e.post(saveDone{op: op, userID: userID, note: n, err: err})
	}()
}

func (e *Engine) deleteTask(userID, id string) {
	go func() {
		ctx, cancel := e.requestCtx()
		defer cancel()
		e.post(deleteDone{userID: userID, id: id, err: e.notes.Delete(ctx, userID, id)})
	}()
}

// signOutTask races the provider sign-out against the deadline. The loser's
// result goes into a buffered channel nobody reads again, so a late answer
// can never reach the loop. The network call itself is abandoned, not
// cancelled.
func (e *Engine) signOutTask() {
	deadline := e.signOutDeadline
	ctx := context.WithoutCancel(e.ctx)
	go func() {
		res := make(chan error, 1)
		go func() { res <- e.provider.SignOut(ctx) }()
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case err := <-res:
			e.post(signOutDone{err: err})
		case <-timer.C:
			e.post(signOutDone{err: ErrSignOutDeadline})
		}
	}()
}

func (e *Engine) recoverTask(rawURL string) {
	go func() {
		ctx, cancel := e.requestCtx()
		defer cancel()
		res, err := redirect.Recover(ctx, rawURL, e.provider)
		e.post(recoverDone{res: res, err: err})
	}()
}
