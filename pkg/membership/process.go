package membership

import (
	"sort"

	"github.com/cuemby/conclave/pkg/types"
)

// ProcessStatus is the aggregated cross-host view of a single logical
// process (spec §3): the most recent record per host it has ever been
// observed on, plus its immutable rules.
type ProcessStatus struct {
	Key   types.ProcessKey
	Rules types.ProcessRules

	byHost map[string]types.ProcessEvent
}

// NewProcessStatus creates an empty record for a logical process.
func NewProcessStatus(key types.ProcessKey, rules types.ProcessRules) *ProcessStatus {
	return &ProcessStatus{
		Key:    key,
		Rules:  rules,
		byHost: make(map[string]types.ProcessEvent),
	}
}

// Update records the latest event for this process on the given host and
// reports whether any observable field changed — the trigger for the
// deployer's incremental work (spec §4.2 on_process_event).
func (p *ProcessStatus) Update(address string, ev types.ProcessEvent) bool {
	prev, ok := p.byHost[address]
	p.byHost[address] = ev
	if !ok {
		return true
	}
	return prev.State != ev.State ||
		prev.PID != ev.PID ||
		prev.SpawnError != ev.SpawnError ||
		!prev.Start.Equal(ev.Start) ||
		!prev.Stop.Equal(ev.Stop)
}

// EventOn returns the last observed event for this process on address.
func (p *ProcessStatus) EventOn(address string) (types.ProcessEvent, bool) {
	ev, ok := p.byHost[address]
	return ev, ok
}

// RunningHosts returns, in lexical order, every host where this process
// is currently observed RUNNING.
func (p *ProcessStatus) RunningHosts() []string {
	var hosts []string
	for addr, ev := range p.byHost {
		if ev.State == types.ProcessRunning {
			hosts = append(hosts, addr)
		}
	}
	sort.Strings(hosts)
	return hosts
}

// Conflict is true iff the process is observed RUNNING on more than one
// host simultaneously (spec §3, §8 invariant 4).
func (p *ProcessStatus) Conflict() bool {
	return len(p.RunningHosts()) > 1
}

// State synthesizes a single cross-host state for the process. RUNNING
// dominates (conflict is reported separately via Conflict()); otherwise
// the most "active" locally-observed state wins, falling back to
// STOPPED when only STOPPED/UNKNOWN records exist and to UNKNOWN when
// nothing has ever been observed.
func (p *ProcessStatus) State() types.ProcessState {
	if len(p.RunningHosts()) > 0 {
		return types.ProcessRunning
	}
	var anyStarting, anyStopping, anyBackoff, anyFatal, anyExited, anyObserved bool
	for _, ev := range p.byHost {
		anyObserved = true
		switch ev.State {
		case types.ProcessStarting:
			anyStarting = true
		case types.ProcessStopping:
			anyStopping = true
		case types.ProcessBackoff:
			anyBackoff = true
		case types.ProcessFatal:
			anyFatal = true
		case types.ProcessExited:
			anyExited = true
		}
	}
	switch {
	case anyStarting:
		return types.ProcessStarting
	case anyStopping:
		return types.ProcessStopping
	case anyBackoff:
		return types.ProcessBackoff
	case anyFatal:
		return types.ProcessFatal
	case anyExited:
		return types.ProcessExited
	case anyObserved:
		return types.ProcessStopped
	default:
		return types.ProcessUnknown
	}
}

// OldestRunner returns the host where this process has been RUNNING the
// longest (smallest local start timestamp), ties broken by host address
// lexical order (spec §4.5). ok is false if the process has no runners.
func (p *ProcessStatus) OldestRunner() (address string, ok bool) {
	return extremeRunner(p, func(a, b types.ProcessEvent) bool { return a.Start.Before(b.Start) })
}

// YoungestRunner returns the host where this process started most
// recently, ties broken by host address lexical order.
func (p *ProcessStatus) YoungestRunner() (address string, ok bool) {
	return extremeRunner(p, func(a, b types.ProcessEvent) bool { return a.Start.After(b.Start) })
}

func extremeRunner(p *ProcessStatus, better func(a, b types.ProcessEvent) bool) (string, bool) {
	hosts := p.RunningHosts()
	if len(hosts) == 0 {
		return "", false
	}
	best := hosts[0]
	bestEv := p.byHost[best]
	for _, addr := range hosts[1:] {
		ev := p.byHost[addr]
		if better(ev, bestEv) {
			best, bestEv = addr, ev
		}
	}
	return best, true
}
