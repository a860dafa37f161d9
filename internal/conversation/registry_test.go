package conversation

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ragchat/internal/metrics"
)

func TestRegistry_Lifecycle(t *testing.T) {
	before := testutil.ToFloat64(metrics.ActiveSessions)
	r := NewRegistry(&fakeAnswerer{})

	a := r.Create()
	b := r.Create()
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if got := testutil.ToFloat64(metrics.ActiveSessions) - before; got != 2 {
		t.Errorf("expected 2 active sessions, got %v", got)
	}

	got, err := r.Get(a.ID)
	if err != nil || got != a {
		t.Fatalf("Get: %v", err)
	}
	if n := len(r.List()); n != 2 {
		t.Errorf("expected 2 sessions, got %d", n)
	}

	if err := r.Delete(a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := r.Delete(a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second delete: expected ErrSessionNotFound, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.ActiveSessions) - before; got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
}
