package membership

import (
	"testing"
	"time"

	"github.com/cuemby/conclave/pkg/types"
)

func TestHostStatusLegalTransitions(t *testing.T) {
	h := NewHostStatus("host-a")
	if h.State != types.HostUnknown {
		t.Fatalf("new host should start UNKNOWN, got %s", h.State)
	}

	if !h.BeginChecking() {
		t.Fatal("UNKNOWN -> CHECKING should be legal")
	}
	if h.State != types.HostChecking {
		t.Fatalf("expected CHECKING, got %s", h.State)
	}

	now := time.Now()
	if !h.CompleteAuthorization(true, now, nil) {
		t.Fatal("CHECKING -> RUNNING should be legal")
	}
	if h.State != types.HostRunning {
		t.Fatalf("expected RUNNING, got %s", h.State)
	}
}

func TestHostStatusIllegalTransitionIgnored(t *testing.T) {
	h := NewHostStatus("host-a")
	// UNKNOWN -> RUNNING is not in the legal table.
	if h.transition(types.HostRunning) {
		t.Fatal("illegal transition should be rejected")
	}
	if h.State != types.HostUnknown {
		t.Fatalf("state should be unchanged, got %s", h.State)
	}
}

func TestHostStatusIsolatedIsTerminal(t *testing.T) {
	h := NewHostStatus("host-a")
	h.BeginChecking()
	h.CompleteAuthorization(false, time.Now(), nil)
	if h.State != types.HostIsolating {
		t.Fatalf("expected ISOLATING, got %s", h.State)
	}
	if !h.FinishIsolation() {
		t.Fatal("ISOLATING -> ISOLATED should be legal")
	}
	if h.State != types.HostIsolated {
		t.Fatalf("expected ISOLATED, got %s", h.State)
	}

	h.ForceResetToUnknown()
	if h.State != types.HostIsolated {
		t.Fatal("ISOLATED must never be reset, even by the back-door reset")
	}
}

func TestHostStatusSilentRequiresRecheck(t *testing.T) {
	h := NewHostStatus("host-a")
	h.BeginChecking()
	h.CompleteAuthorization(true, time.Now(), nil)

	h.LastLocalTime = time.Now().Add(-time.Hour)
	h.AgeOut(time.Now(), 10*time.Second, false)
	if h.State != types.HostSilent {
		t.Fatalf("expected SILENT after timeout, got %s", h.State)
	}

	// A silent host must go through CHECKING again, never straight to RUNNING.
	if h.transition(types.HostRunning) {
		t.Fatal("SILENT -> RUNNING directly should be illegal")
	}
	if !h.BeginChecking() {
		t.Fatal("SILENT -> CHECKING should be legal")
	}
}

func TestHostStatusAutoFence(t *testing.T) {
	h := NewHostStatus("host-a")
	h.BeginChecking()
	h.CompleteAuthorization(true, time.Now(), nil)
	h.LastLocalTime = time.Now().Add(-time.Hour)

	h.AgeOut(time.Now(), 10*time.Second, true)
	if h.State != types.HostIsolating {
		t.Fatalf("expected ISOLATING with autoFence, got %s", h.State)
	}
}

func TestSortedNames(t *testing.T) {
	hosts := map[string]*HostStatus{
		"c": NewHostStatus("c"),
		"a": NewHostStatus("a"),
		"b": NewHostStatus("b"),
	}
	got := SortedNames(hosts)
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("SortedNames()[%d] = %s, want %s", i, got[i], name)
		}
	}
}
