// Package fsm implements the cluster supervisor state machine (spec
// §4.3, component C5): INITIALIZATION, DEPLOYMENT, OPERATION, and
// CONCILIATION, each with an entry, evaluate, and exit action, driven by
// a strict transition table. A single Tick collapses a run of legal
// transitions — e.g. INITIALIZATION straight through to OPERATION when
// there is nothing to deploy — into one call, matching the "no
// observable intermediate state" requirement from spec §7.
package fsm

import (
	"time"

	"github.com/cuemby/conclave/pkg/clusterctx"
	"github.com/cuemby/conclave/pkg/deploy"
	"github.com/cuemby/conclave/pkg/log"
	"github.com/cuemby/conclave/pkg/reconcile"
	"github.com/cuemby/conclave/pkg/types"
)

// maxStepsPerTick bounds the transition-collapsing loop so a bug in an
// evaluate action can never spin the agent thread forever.
const maxStepsPerTick = 8

// legalTransitions is the authoritative table from spec §4.3. Anything
// not listed here is silently ignored, mirroring the host transition
// guard in pkg/membership.
var legalTransitions = map[types.FSMState]map[types.FSMState]bool{
	types.StateInitialization: {types.StateDeployment: true},
	types.StateDeployment:     {types.StateOperation: true, types.StateConciliation: true},
	types.StateOperation:      {types.StateConciliation: true, types.StateInitialization: true},
	types.StateConciliation:   {types.StateOperation: true, types.StateInitialization: true},
}

// FSM owns the current cluster state and the entry/evaluate/exit actions
// that drive it. It reads and writes through the Context; it never
// keeps membership state of its own.
type FSM struct {
	state types.FSMState

	ctx        *clusterctx.Context
	deployer   deploy.Deployer
	reconciler reconcile.Reconciler
}

// New creates an FSM starting in INITIALIZATION, running that state's
// entry action immediately.
func New(ctx *clusterctx.Context, deployer deploy.Deployer, reconciler reconcile.Reconciler) *FSM {
	f := &FSM{state: types.StateInitialization, ctx: ctx, deployer: deployer, reconciler: reconciler}
	f.enter(types.StateInitialization, time.Now())
	return f
}

// State returns the current FSM state.
func (f *FSM) State() types.FSMState { return f.state }

// Tick runs one evaluate pass, applying every legal transition it
// triggers in sequence until evaluate reports no further change or the
// step bound is hit.
func (f *FSM) Tick(now time.Time) {
	for i := 0; i < maxStepsPerTick; i++ {
		next, ok := f.evaluate(now)
		if !ok || next == f.state {
			return
		}
		if !legalTransitions[f.state][next] {
			log.WithComponent("fsm").Warn().
				Str("from", string(f.state)).
				Str("to", string(next)).
				Msg("ignored illegal fsm transition")
			return
		}
		f.exit(f.state, now)
		prev := f.state
		f.state = next
		log.WithComponent("fsm").Info().
			Str("from", string(prev)).
			Str("to", string(next)).
			Msg("fsm transition")
		f.enter(next, now)
	}
}

func (f *FSM) enter(state types.FSMState, now time.Time) {
	switch state {
	case types.StateInitialization:
		f.ctx.BeginSynchro(now)
	case types.StateDeployment:
		if f.deployer != nil {
			if err := f.deployer.Run(f.ctx); err != nil {
				log.WithComponent("fsm").Error().Err(err).Msg("deployment run failed")
			}
		}
	case types.StateConciliation:
		if f.reconciler != nil {
			if err := f.reconciler.Reconcile(f.ctx); err != nil {
				log.WithComponent("fsm").Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}

func (f *FSM) exit(state types.FSMState, now time.Time) {
	switch state {
	case types.StateInitialization:
		f.ctx.EndSynchro()
		f.ctx.CacheMaster()
	}
}

// evaluate computes the state evaluate() would move to next, or ok=false
// to stay put.
func (f *FSM) evaluate(now time.Time) (types.FSMState, bool) {
	switch f.state {
	case types.StateInitialization:
		if f.synchroComplete(now) {
			return types.StateDeployment, true
		}
		return f.state, false

	case types.StateDeployment:
		if f.deploymentSettled() {
			if f.ctx.Conflicting() {
				return types.StateConciliation, true
			}
			return types.StateOperation, true
		}
		return f.state, false

	case types.StateOperation:
		if !f.masterOrLocalRunning() {
			return types.StateInitialization, true
		}
		if f.ctx.Conflicting() {
			return types.StateConciliation, true
		}
		return f.state, false

	case types.StateConciliation:
		if !f.masterOrLocalRunning() {
			return types.StateInitialization, true
		}
		if !f.ctx.Conflicting() {
			return types.StateOperation, true
		}
		return f.state, false
	}
	return f.state, false
}

// masterOrLocalRunning is false once either the local host or the master
// fixed at the last INITIALIZATION exit has dropped out of RUNNING — the
// spec §4.3 trigger that sends OPERATION/CONCILIATION back to
// INITIALIZATION (scenario S4, "master loss"). It deliberately checks the
// cached master, not a freshly re-elected one: re-election only happens on
// the next pass through INITIALIZATION.
func (f *FSM) masterOrLocalRunning() bool {
	master, ok := f.ctx.CachedMaster()
	if !ok {
		return false
	}
	masterHost, ok := f.ctx.Host(master)
	if !ok || masterHost.State != types.HostRunning {
		return false
	}
	local, ok := f.ctx.Host(f.ctx.LocalAddress())
	return ok && local.State == types.HostRunning
}

// synchroComplete is true once every known host has left UNKNOWN and
// CHECKING and the local host is RUNNING, or the synchro window has
// simply run out (spec §4.3: a
// slow-to-sync host does not hold the cluster in INITIALIZATION
// forever).
func (f *FSM) synchroComplete(now time.Time) bool {
	if f.ctx.SynchroExpired(now) {
		return true
	}
	if len(f.ctx.UnknownAddresses()) != 0 {
		return false
	}
	local, ok := f.ctx.Host(f.ctx.LocalAddress())
	return ok && local.State == types.HostRunning
}

// deploymentSettled is true once every known application has reached a
// stable state (RUNNING or deliberately STOPPED) — nothing left for the
// deployer to push forward.
func (f *FSM) deploymentSettled() bool {
	for _, name := range f.ctx.Applications() {
		app, ok := f.ctx.Application(name)
		if !ok {
			continue
		}
		switch app.State() {
		case types.AppRunning, types.AppStopped:
			continue
		default:
			return false
		}
	}
	return true
}
