package metrics

import (
	"time"

	"github.com/cuemby/conclave/pkg/agent"
	"github.com/cuemby/conclave/pkg/clusterctx"
	"github.com/cuemby/conclave/pkg/types"
)

// Collector periodically samples an Agent's Context and FSM state into
// the package's Prometheus gauges. It never mutates anything it reads —
// the statistics compiler this feeds is an external collaborator (spec
// §1) that only ever needs a read-only snapshot.
type Collector struct {
	agent  *agent.Agent
	stopCh chan struct{}
}

// NewCollector creates a collector sampling a.
func NewCollector(a *agent.Agent) *Collector {
	return &Collector{agent: a, stopCh: make(chan struct{})}
}

// Start begins sampling on a fixed interval, in its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx := c.agent.Context()

	c.collectHostMetrics(ctx)
	c.collectApplicationMetrics(ctx)
	c.collectFSMMetrics()
}

func (c *Collector) collectHostMetrics(ctx *clusterctx.Context) {
	counts := make(map[types.HostState]int)
	for _, name := range ctx.Hosts() {
		h, ok := ctx.Host(name)
		if !ok {
			continue
		}
		counts[h.State]++
	}
	for _, state := range []types.HostState{
		types.HostUnknown, types.HostChecking, types.HostRunning,
		types.HostSilent, types.HostIsolating, types.HostIsolated,
	} {
		HostsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *Collector) collectApplicationMetrics(ctx *clusterctx.Context) {
	counts := make(map[types.ApplicationState]int)
	conflicts := 0
	for _, name := range ctx.Applications() {
		app, ok := ctx.Application(name)
		if !ok {
			continue
		}
		counts[app.State()]++
		conflicts += len(app.Conflicts())
	}
	for _, state := range []types.ApplicationState{
		types.AppStopped, types.AppStarting, types.AppRunning, types.AppStopping,
	} {
		ApplicationsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
	ProcessConflictsTotal.Set(float64(conflicts))
}

func (c *Collector) collectFSMMetrics() {
	current := c.agent.FSMState()
	for _, state := range []types.FSMState{
		types.StateInitialization, types.StateDeployment, types.StateOperation, types.StateConciliation,
	} {
		value := 0.0
		if state == current {
			value = 1.0
		}
		FSMState.WithLabelValues(string(state)).Set(value)
	}

	master := 0.0
	if c.agent.Context().IsMaster() {
		master = 1.0
	}
	IsMaster.Set(master)
}
