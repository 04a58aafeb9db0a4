package clusterctx

import (
	"testing"
	"time"

	"github.com/cuemby/conclave/pkg/events"
	"github.com/cuemby/conclave/pkg/types"
)

func testConfig() Config {
	return Config{
		LocalAddress:  "host-a",
		SilentTimeout: 10 * time.Second,
		SyncTimeout:   30 * time.Second,
		AutoFence:     false,
	}
}

func TestOnTickEventBeginsChecking(t *testing.T) {
	ctx := New(testConfig(), nil, nil)

	now := time.Now()
	ctx.OnTickEvent("host-b", now, now)

	h, ok := ctx.Host("host-b")
	if !ok {
		t.Fatal("host-b should now be known")
	}
	if h.State != types.HostChecking {
		t.Fatalf("first tick should move host to CHECKING, got %s", h.State)
	}
}

func TestOnAuthorizationRunning(t *testing.T) {
	ctx := New(testConfig(), nil, nil)
	now := time.Now()
	ctx.OnTickEvent("host-b", now, now)
	ctx.OnAuthorization("host-b", true, now, nil)

	h, _ := ctx.Host("host-b")
	if h.State != types.HostRunning {
		t.Fatalf("authorized host should be RUNNING, got %s", h.State)
	}
}

func TestMasterElection(t *testing.T) {
	ctx := New(testConfig(), nil, nil)
	now := time.Now()

	for _, addr := range []string{"host-z", "host-a", "host-m"} {
		ctx.OnTickEvent(addr, now, now)
		ctx.OnAuthorization(addr, true, now, nil)
	}

	master, ok := ctx.Master()
	if !ok || master != "host-a" {
		t.Fatalf("Master() = %s, %v, want host-a (lexically smallest RUNNING)", master, ok)
	}
	if !ctx.IsMaster() {
		t.Fatal("local address host-a should be master")
	}
}

func TestOnProcessEventConflict(t *testing.T) {
	ctx := New(testConfig(), nil, nil)
	now := time.Now()
	key := types.ProcessKey{Application: "app", Process: "proc"}

	ctx.OnProcessEvent("host-a", key, types.ProcessEvent{State: types.ProcessRunning, Start: now})
	if ctx.Conflicting() {
		t.Fatal("single runner should not conflict")
	}

	ctx.OnProcessEvent("host-b", key, types.ProcessEvent{State: types.ProcessRunning, Start: now})
	if !ctx.Conflicting() {
		t.Fatal("two runners should conflict")
	}
	conflicts := ctx.Conflicts()
	if len(conflicts) != 1 || conflicts[0].Key != key {
		t.Fatalf("unexpected conflicts: %+v", conflicts)
	}
}

func TestHandleIsolationPublishesBeforeFinishing(t *testing.T) {
	pub := newRecordingPublisher()
	ctx := New(testConfig(), nil, pub)
	now := time.Now()

	ctx.OnTickEvent("host-b", now, now)
	ctx.OnAuthorization("host-b", false, now, nil)

	h, _ := ctx.Host("host-b")
	if h.State != types.HostIsolating {
		t.Fatalf("rejected authorization should move to ISOLATING, got %s", h.State)
	}

	beforeFinish := len(pub.events)
	isolated := ctx.HandleIsolation()

	h, _ = ctx.Host("host-b")
	if h.State != types.HostIsolated {
		t.Fatalf("HandleIsolation should finish isolation, got %s", h.State)
	}
	if len(isolated) != 1 || isolated[0] != "host-b" {
		t.Fatalf("HandleIsolation should report host-b as newly isolated, got %v", isolated)
	}
	if len(pub.events) != beforeFinish+1 {
		t.Fatalf("expected exactly 1 additional published event from HandleIsolation, got %d new", len(pub.events)-beforeFinish)
	}
	last := pub.events[len(pub.events)-1]
	if last.Type != events.TypeAddressStatus || last.Payload["state"] != string(types.HostIsolated) {
		t.Fatalf("unexpected final event: %+v", last)
	}
}

// TestAddressStatusPublishedOnEveryTransition covers spec §4.7: an
// address-status event fires for every Host Status transition, not just
// the isolation special case.
func TestAddressStatusPublishedOnEveryTransition(t *testing.T) {
	pub := newRecordingPublisher()
	ctx := New(testConfig(), nil, pub)
	now := time.Now()

	ctx.OnTickEvent("host-b", now, now) // UNKNOWN -> CHECKING
	ctx.OnAuthorization("host-b", true, now, nil) // CHECKING -> RUNNING

	var states []string
	for _, e := range pub.events {
		if e.Type == events.TypeAddressStatus {
			states = append(states, e.Payload["state"])
		}
	}
	if len(states) != 2 || states[0] != string(types.HostChecking) || states[1] != string(types.HostRunning) {
		t.Fatalf("expected CHECKING then RUNNING address-status events, got %v", states)
	}
}

// TestApplicationAndProcessStatusPublishedOnChange covers spec §4.7's
// application-status and process-status event types, previously declared
// but never published.
func TestApplicationAndProcessStatusPublishedOnChange(t *testing.T) {
	pub := newRecordingPublisher()
	ctx := New(testConfig(), nil, pub)
	key := types.ProcessKey{Application: "app", Process: "proc"}

	ctx.OnProcessEvent("host-a", key, types.ProcessEvent{State: types.ProcessRunning, Start: time.Now()})

	var sawProcess, sawApplication bool
	for _, e := range pub.events {
		switch e.Type {
		case events.TypeProcessStatus:
			sawProcess = true
		case events.TypeApplicationStatus:
			sawApplication = true
			if e.Payload["state"] != string(types.AppRunning) {
				t.Fatalf("application-status payload state = %q, want RUNNING", e.Payload["state"])
			}
		}
	}
	if !sawProcess {
		t.Fatal("expected a process-status event")
	}
	if !sawApplication {
		t.Fatal("expected an application-status event")
	}
}

func TestMarkedProcesses(t *testing.T) {
	ctx := New(testConfig(), nil, nil)
	key := types.ProcessKey{Application: "app", Process: "proc"}

	ctx.OnProcessEvent("host-a", key, types.ProcessEvent{State: types.ProcessFatal})

	app, _ := ctx.Application("app")
	app.Processes["proc"].Rules.RunningFailure = types.RunningFailureRestartProcess

	marked := ctx.MarkedProcesses()
	if len(marked) != 1 || marked[0].Key != key {
		t.Fatalf("expected proc marked for restart, got %+v", marked)
	}
}

func TestSynchroExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.SyncTimeout = time.Millisecond
	ctx := New(cfg, nil, nil)

	if ctx.SynchroExpired(time.Now()) {
		t.Fatal("synchro should not be expired immediately")
	}
	time.Sleep(5 * time.Millisecond)
	if !ctx.SynchroExpired(time.Now()) {
		t.Fatal("synchro should be expired after the timeout elapses")
	}
}

type recordingPublisher struct {
	events []events.Event
}

func newRecordingPublisher() *recordingPublisher { return &recordingPublisher{} }

func (r *recordingPublisher) Publish(e events.Event) {
	r.events = append(r.events, e)
}
