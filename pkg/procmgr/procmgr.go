// Package procmgr defines the contract conclave speaks to the per-host
// local process manager and its remote-control surface (spec §1: "per-
// host process manager" and "RPC to remote process managers" are both
// named as external collaborators described only by the contract the
// core consumes). Nothing in this package starts or stops a real OS
// process; Fake exists purely so the rest of the core can be tested
// without one.
package procmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/conclave/pkg/types"
)

// CheckResult is what CheckAddress learns by connecting to a peer's
// process manager directly (spec §4.4 check_address protocol): its
// self-reported cluster state and, when that state isn't ISOLATING or
// ISOLATED, the full local process snapshot.
type CheckResult struct {
	State     types.HostState
	Processes []types.ProcessInfo
}

// Client is the RPC surface conclave drives on a remote host's local
// process manager (spec's CHECK_ADDRESS / ISOLATE_ADDRESSES /
// START_PROCESS / STOP_PROCESS / RESTART_PROCESS / SHUTDOWN verbs).
// Every call is fire-and-forget from the agent thread's point of view:
// the actual state change, if any, arrives later as a process event.
type Client interface {
	// CheckAddress connects to address's process manager directly and
	// asks it to self-report its cluster state and process list (spec
	// §4.4). The caller (the deferred check-address worker) decides
	// authorization from the returned state.
	CheckAddress(ctx context.Context, address string) (CheckResult, error)

	// IsolateAddresses tells address to stop talking to the listed
	// peers (spec §4.1, ISOLATING -> ISOLATED).
	IsolateAddresses(ctx context.Context, address string, isolate []string) error

	StartProcess(ctx context.Context, address string, key types.ProcessKey) error
	StopProcess(ctx context.Context, address string, key types.ProcessKey) error
	RestartProcess(ctx context.Context, address string, key types.ProcessKey) error

	// Shutdown asks the local process manager on address to terminate.
	Shutdown(ctx context.Context, address string) error
}

// Fake is an in-memory Client recording every call it receives, for use
// in tests that exercise the deployer, reconciler, or failure handler
// without a real transport.
type Fake struct {
	mu sync.Mutex

	Checked    []string
	Isolated   map[string][]string
	Started    []types.ProcessKey
	Stopped    []types.ProcessKey
	Restarted  []types.ProcessKey
	ShutDown   []string
	CheckReply map[string]CheckResult
	Err        error

	// StartedAddrs/StoppedAddrs/RestartedAddrs parallel Started/Stopped/
	// Restarted with the address each call targeted, for tests that need
	// to assert which host a strategy picked, not just which process key.
	StartedAddrs   []string
	StoppedAddrs   []string
	RestartedAddrs []string
}

func NewFake() *Fake {
	return &Fake{
		Isolated:   make(map[string][]string),
		CheckReply: make(map[string]CheckResult),
	}
}

func (f *Fake) CheckAddress(_ context.Context, address string) (CheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Checked = append(f.Checked, address)
	if f.Err != nil {
		return CheckResult{}, f.Err
	}
	if reply, ok := f.CheckReply[address]; ok {
		return reply, nil
	}
	return CheckResult{State: types.HostRunning}, nil
}

func (f *Fake) IsolateAddresses(_ context.Context, address string, isolate []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Isolated[address] = append(f.Isolated[address], isolate...)
	return f.Err
}

func (f *Fake) StartProcess(_ context.Context, address string, key types.ProcessKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = append(f.Started, key)
	f.StartedAddrs = append(f.StartedAddrs, address)
	return f.Err
}

func (f *Fake) StopProcess(_ context.Context, address string, key types.ProcessKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = append(f.Stopped, key)
	f.StoppedAddrs = append(f.StoppedAddrs, address)
	return f.Err
}

func (f *Fake) RestartProcess(_ context.Context, address string, key types.ProcessKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Restarted = append(f.Restarted, key)
	f.RestartedAddrs = append(f.RestartedAddrs, address)
	return f.Err
}

func (f *Fake) Shutdown(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ShutDown = append(f.ShutDown, address)
	return f.Err
}

var _ Client = (*Fake)(nil)

// ErrUnreachable is returned by real Client implementations when a peer
// cannot be contacted at all (as opposed to replying with a failure).
var ErrUnreachable = fmt.Errorf("procmgr: address unreachable")
