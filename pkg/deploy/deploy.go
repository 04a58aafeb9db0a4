// Package deploy implements the Deployer contract (spec §4.4, component
// C7): decide the order in which processes are started during
// DEPLOYMENT and hand each start/stop off to the procmgr contract. The
// actual deployment sequencer that produced the rules' start/stop
// sequence numbers is itself an external collaborator (spec §1); this
// package only walks the sequence it was given.
package deploy

import (
	"context"
	"sort"

	"github.com/cuemby/conclave/pkg/clusterctx"
	"github.com/cuemby/conclave/pkg/log"
	"github.com/cuemby/conclave/pkg/membership"
	"github.com/cuemby/conclave/pkg/procmgr"
	"github.com/cuemby/conclave/pkg/rules"
	"github.com/cuemby/conclave/pkg/types"
)

// Deployer is the contract the FSM's DEPLOYMENT entry action invokes.
// Run should be fire-and-forget: it issues start requests for whatever
// isn't running yet and returns without waiting for them to land — the
// FSM's evaluate action is what notices deployment has settled, once
// process events report the new state back.
type Deployer interface {
	Run(ctx *clusterctx.Context) error
}

// SequentialDeployer starts applications in ascending StartSequence
// order and, within an application, processes in ascending
// StartSequence order, batching same-sequence processes together — the
// same batch-then-advance shape conclave's original rolling-update
// deployer used, applied here to "start" rather than "replace".
type SequentialDeployer struct {
	Client procmgr.Client
}

func NewSequentialDeployer(client procmgr.Client) *SequentialDeployer {
	return &SequentialDeployer{Client: client}
}

func (d *SequentialDeployer) Run(ctx *clusterctx.Context) error {
	logger := log.WithComponent("deploy")
	hosts := ctx.RunningAddresses()

	for _, appName := range sortedAppsBySequence(ctx) {
		app, ok := ctx.Application(appName)
		if !ok {
			continue
		}
		if app.State() == types.AppRunning {
			continue
		}

		for _, batch := range batchesBySequence(app) {
			logger.Info().
				Str("application", appName).
				Int("batch_size", len(batch)).
				Msg("starting process batch")

			for _, proc := range batch {
				if len(proc.RunningHosts()) > 0 {
					continue // already up somewhere, nothing to do
				}
				addresses := rules.ResolveAddresses(proc.Rules, hosts)
				for _, addr := range addresses {
					if err := d.Client.StartProcess(context.Background(), addr, proc.Key); err != nil {
						logger.Error().Err(err).
							Str("address", addr).
							Str("process", proc.Key.String()).
							Msg("start request failed")
					}
				}
			}
		}
	}
	return nil
}

// sortedAppsBySequence orders application names by their ApplicationRules
// StartSequence, breaking ties lexically for determinism.
func sortedAppsBySequence(ctx *clusterctx.Context) []string {
	names := ctx.Applications()
	sort.SliceStable(names, func(i, j int) bool {
		ai, _ := ctx.Application(names[i])
		aj, _ := ctx.Application(names[j])
		if ai.Rules.StartSequence != aj.Rules.StartSequence {
			return ai.Rules.StartSequence < aj.Rules.StartSequence
		}
		return names[i] < names[j]
	})
	return names
}

// batchesBySequence groups an application's processes by StartSequence,
// in ascending sequence order; within a batch, process order is
// lexical by process name.
func batchesBySequence(app *membership.ApplicationStatus) [][]*membership.ProcessStatus {
	names := app.ProcessNames()
	bySeq := make(map[int][]*membership.ProcessStatus)
	var seqs []int
	for _, name := range names {
		proc := app.Processes[name]
		seq := proc.Rules.StartSequence
		if _, ok := bySeq[seq]; !ok {
			seqs = append(seqs, seq)
		}
		bySeq[seq] = append(bySeq[seq], proc)
	}
	sort.Ints(seqs)
	out := make([][]*membership.ProcessStatus, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, bySeq[seq])
	}
	return out
}

var _ Deployer = (*SequentialDeployer)(nil)
