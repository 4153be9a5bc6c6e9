package syncer

import (
	"strings"
	"time"
)

type statusExpired struct{ seq int }

// setStatus replaces the status line. An autoHide message is cleared after the
// status TTL unless it reads like an error or has been replaced meanwhile.
func (e *Engine) setStatus(text string, kind StatusKind, autoHide bool) {
	e.state.Status.Seq++
	seq := e.state.Status.Seq
	hide := autoHide && text != "" && !looksLikeFailure(text)
	e.state.Status = Status{Text: text, Kind: kind, AutoHide: hide, Seq: seq}
	if hide {
		time.AfterFunc(e.statusTTL, func() { e.post(statusExpired{seq: seq}) })
	}
}

func (e *Engine) clearStatus() {
	e.setStatus("", StatusNone, false)
}

func (e *Engine) onStatusExpired(msg statusExpired) {
	if msg.seq != e.state.Status.Seq {
		return
	}
	e.clearStatus()
	e.publish()
}

func looksLikeFailure(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "error") || strings.Contains(t, "failed")
}
