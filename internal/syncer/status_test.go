package syncer

import (
	"testing"
	"time"
)

func TestStatus_ExpiryIgnoresReplacedMessage(t *testing.T) {
	e := New(nil, nil, WithStatusTTL(time.Hour))
	e.setStatus("Note saved successfully!", StatusSuccess, true)
	first := e.state.Status.Seq
	e.setStatus("Note deleted successfully!", StatusSuccess, true)

	e.onStatusExpired(statusExpired{seq: first})
	if e.state.Status.Text != "Note deleted successfully!" {
		t.Fatalf("newer status cleared by stale timer: %q", e.state.Status.Text)
	}
	e.onStatusExpired(statusExpired{seq: e.state.Status.Seq})
	if e.state.Status.Visible() {
		t.Fatalf("status not cleared: %+v", e.state.Status)
	}
}

func TestStatus_FailureTextNeverAutoHides(t *testing.T) {
	e := New(nil, nil, WithStatusTTL(time.Hour))
	for _, text := range []string{"Save failed: x", "Error: bad email", "Signed out (network error, using local fallback)."} {
		e.setStatus(text, StatusInfo, true)
		if e.state.Status.AutoHide {
			t.Fatalf("%q should not auto-hide", text)
		}
	}
	e.setStatus("Signed out successfully.", StatusSuccess, true)
	if !e.state.Status.AutoHide {
		t.Fatalf("success message should auto-hide")
	}
	e.setStatus("Loading notes...", StatusLoading, false)
	if e.state.Status.AutoHide {
		t.Fatalf("persistent message marked auto-hide")
	}
}
