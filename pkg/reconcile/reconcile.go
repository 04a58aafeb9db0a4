// Package reconcile implements the conflict reconciliation policy
// engine (spec §4.5, component C6): given a process running on more
// than one host, decide which copies to stop. Every strategy is pure
// decision-making over the Context's already-synthesized conflict list;
// the actual stop/restart call is delegated to the procmgr contract.
package reconcile

import (
	"context"

	"github.com/cuemby/conclave/pkg/clusterctx"
	"github.com/cuemby/conclave/pkg/log"
	"github.com/cuemby/conclave/pkg/membership"
	"github.com/cuemby/conclave/pkg/procmgr"
	"github.com/cuemby/conclave/pkg/types"
)

// Reconciler is the contract the FSM's CONCILIATION entry action
// invokes. A single pass should make a best-effort attempt to resolve
// every conflict currently known to the Context; it is not required to
// guarantee all conflicts are gone by the time it returns, since the
// actual stop only takes effect once the process manager reports the
// process has exited.
type Reconciler interface {
	Reconcile(ctx *clusterctx.Context) error
}

// Strategy decides, for one conflicting process, which hosts to stop it
// on. It returns the addresses to stop, leaving the rest running.
type Strategy func(proc *membership.ProcessStatus) (stop []string, keep []string)

// Policy is the default Reconciler: spec §6 names conciliation_strategy
// as a single cluster-wide configuration value applied to every conflict.
// The one exception is StrategyRunningFailure, which delegates per
// conflicting process to that process's own running_failure_strategy rule
// (spec §4.5).
type Policy struct {
	Client      procmgr.Client
	Strategy    types.ConciliationStrategy // the configured conciliation_strategy; empty defaults to senicide
	DefaultUser Strategy                   // used for StrategyUser when no better hook is wired
}

// NewPolicy creates a Policy applying strategy to every conflict, driving
// client for every stop/restart call.
func NewPolicy(client procmgr.Client, strategy types.ConciliationStrategy) *Policy {
	return &Policy{Client: client, Strategy: strategy}
}

func (p *Policy) Reconcile(ctx *clusterctx.Context) error {
	logger := log.WithComponent("reconcile")
	clusterStrategy := p.Strategy
	if clusterStrategy == "" {
		clusterStrategy = types.StrategySenicide
	}

	var firstErr error
	for _, proc := range ctx.Conflicts() {
		applied := clusterStrategy
		if clusterStrategy == types.StrategyRunningFailure {
			applied = perProcessStrategy(proc)
		}
		stop, keep := p.resolve(applied, proc)
		logger.Info().
			Str("process", proc.Key.String()).
			Str("strategy", string(applied)).
			Strs("stop", stop).
			Strs("keep", keep).
			Msg("resolving process conflict")
		for _, addr := range stop {
			var err error
			if applied == types.StrategyRestart {
				err = p.Client.RestartProcess(context.Background(), addr, proc.Key)
			} else {
				err = p.Client.StopProcess(context.Background(), addr, proc.Key)
			}
			if err != nil {
				logger.Error().Err(err).Str("address", addr).Str("process", proc.Key.String()).
					Msg("conciliation request failed")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// perProcessStrategy maps a process's own running-failure rule to a
// concrete conciliation strategy — the delegation StrategyRunningFailure
// names in spec §4.5. Processes with no explicit running-failure strategy
// default to senicide.
func perProcessStrategy(proc *membership.ProcessStatus) types.ConciliationStrategy {
	switch proc.Rules.RunningFailure {
	case types.RunningFailureRestartProcess, types.RunningFailureRestartApplication:
		return types.StrategyRestart
	case types.RunningFailureStopApplication:
		return types.StrategyStop
	default:
		return types.StrategySenicide
	}
}

func (p *Policy) resolve(strategy types.ConciliationStrategy, proc *membership.ProcessStatus) (stop, keep []string) {
	running := proc.RunningHosts()

	switch strategy {
	case types.StrategySenicide:
		// Stop the oldest runner, keep the youngest.
		if winner, ok := proc.YoungestRunner(); ok {
			return without(running, winner), []string{winner}
		}
	case types.StrategyInfanticide:
		// Stop the youngest runner, keep the oldest.
		if winner, ok := proc.OldestRunner(); ok {
			return without(running, winner), []string{winner}
		}
	case types.StrategyStop, types.StrategyRestart:
		// Stop (or restart) every conflicting copy outright; normal
		// placement rules redeploy it on the next DEPLOYMENT pass.
		return running, nil
	case types.StrategyUser:
		if p.DefaultUser != nil {
			return p.DefaultUser(proc)
		}
	}
	// Unresolvable (e.g. no running hosts at all), or StrategyUser with no
	// hook wired: surface for manual intervention, stop nothing.
	return nil, running
}

func without(hosts []string, exclude string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h != exclude {
			out = append(out, h)
		}
	}
	return out
}

var _ Reconciler = (*Policy)(nil)
