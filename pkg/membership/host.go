// Package membership owns the two record kinds the Context is the
// exclusive writer of: per-peer Host Status (C1) and the cross-host
// Process/Application Status (C2). Records are created lazily on first
// observation and never deleted for the lifetime of a run — isolation is
// a terminal state, not a deletion, per spec §3.
package membership

import (
	"sort"
	"time"

	"github.com/cuemby/conclave/pkg/log"
	"github.com/cuemby/conclave/pkg/types"
)

// legalHostTransitions is the authoritative table from spec §4.1.
// Anything not listed here is silently ignored (spec §7).
var legalHostTransitions = map[types.HostState]map[types.HostState]bool{
	types.HostUnknown:   {types.HostChecking: true},
	types.HostChecking:  {types.HostRunning: true, types.HostIsolating: true, types.HostSilent: true},
	types.HostRunning:   {types.HostSilent: true},
	types.HostSilent:    {types.HostChecking: true, types.HostIsolating: true},
	types.HostIsolating: {types.HostIsolated: true},
	types.HostIsolated:  {},
}

// HostStatus is the per-peer liveness record described in spec §3/§4.1.
type HostStatus struct {
	Name           string
	State          types.HostState
	LastRemoteTime time.Time
	LastLocalTime  time.Time
	Checked        bool
	Processes      map[types.ProcessKey]types.ProcessEvent
}

// NewHostStatus creates a lazily-initialized record in UNKNOWN.
func NewHostStatus(name string) *HostStatus {
	return &HostStatus{
		Name:      name,
		State:     types.HostUnknown,
		Processes: make(map[types.ProcessKey]types.ProcessEvent),
	}
}

// transition applies the move if, and only if, it appears in the legal
// transition table. Returns whether it took effect.
func (h *HostStatus) transition(to types.HostState) bool {
	if h.State == to {
		return false
	}
	if !legalHostTransitions[h.State][to] {
		log.WithComponent("membership").Warn().
			Str("address", h.Name).
			Str("from", string(h.State)).
			Str("to", string(to)).
			Msg("ignored illegal host state transition")
		return false
	}
	h.State = to
	return true
}

// BeginChecking sends this host into CHECKING — the trigger is "an
// authorization request sent", valid from UNKNOWN or, on re-check, from
// SILENT (spec §4.2: a SILENT host may only return to RUNNING via a
// fresh CHECKING round).
func (h *HostStatus) BeginChecking() bool {
	return h.transition(types.HostChecking)
}

// CompleteAuthorization finishes a CHECKING round: true moves to RUNNING
// and adopts the bootstrap process snapshot; false moves to ISOLATING.
func (h *HostStatus) CompleteAuthorization(authorized bool, now time.Time, snapshot []types.ProcessInfo) bool {
	if authorized {
		if !h.transition(types.HostRunning) {
			return false
		}
		h.Checked = true
		h.LastRemoteTime = now
		h.LastLocalTime = now
		for _, info := range snapshot {
			h.Processes[info.Key] = info.Event
		}
		return true
	}
	return h.transition(types.HostIsolating)
}

// ObserveTick records a heartbeat from this host. now is this agent's
// wall clock; when is the sender's.
func (h *HostStatus) ObserveTick(when, now time.Time) {
	h.LastRemoteTime = when
	h.LastLocalTime = now
}

// AgeOut applies the RUNNING->SILENT (and CHECKING->SILENT, for a check
// that never got a reply) timeout and, when autoFence is set, the
// immediate SILENT->ISOLATING follow-up (spec §4.1, §4.2). Isolated
// hosts are untouched.
func (h *HostStatus) AgeOut(now time.Time, silentTimeout time.Duration, autoFence bool) {
	if h.State == types.HostIsolated || h.State == types.HostIsolating {
		return
	}
	if (h.State == types.HostRunning || h.State == types.HostChecking) && now.Sub(h.LastLocalTime) > silentTimeout {
		h.transition(types.HostSilent)
	}
	if h.State == types.HostSilent && autoFence {
		h.transition(types.HostIsolating)
	}
}

// FinishIsolation moves ISOLATING to ISOLATED. Callers must publish the
// isolation event before calling this — publish-then-set (spec §4.2).
func (h *HostStatus) FinishIsolation() bool {
	return h.transition(types.HostIsolated)
}

// ForceResetToUnknown is the explicit INITIALIZATION re-entry back-door
// (spec §4.1): every non-isolated host is reset to UNKNOWN, bypassing the
// normal transition guard, so synchronization can restart without losing
// isolation history.
func (h *HostStatus) ForceResetToUnknown() {
	if h.State == types.HostIsolated {
		return
	}
	h.State = types.HostUnknown
	h.Checked = false
}

// UpdateProcess records the latest process event observed on this host
// and reports whether any observable field changed.
func (h *HostStatus) UpdateProcess(key types.ProcessKey, ev types.ProcessEvent) bool {
	prev, ok := h.Processes[key]
	h.Processes[key] = ev
	if !ok {
		return true
	}
	return prev.State != ev.State ||
		prev.PID != ev.PID ||
		prev.SpawnError != ev.SpawnError ||
		!prev.Start.Equal(ev.Start) ||
		!prev.Stop.Equal(ev.Stop)
}

// SortedNames returns host names in lexical order. Master election and
// runner tie-breaks sort their own host lists and do not call it.
func SortedNames(hosts map[string]*HostStatus) []string {
	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
