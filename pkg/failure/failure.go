// Package failure implements the Failure Handler (spec §4.2, component
// C9): a queue of (process, running-failure-strategy) jobs, populated
// from the Context's marked-process list and drained only while this
// agent holds mastership. Non-masters still collect marks (so nothing
// is lost on an election) but never act on them.
package failure

import (
	"context"

	"github.com/cuemby/conclave/pkg/clusterctx"
	"github.com/cuemby/conclave/pkg/log"
	"github.com/cuemby/conclave/pkg/procmgr"
	"github.com/cuemby/conclave/pkg/types"
)

// Job is one queued running-failure response.
type Job struct {
	Key      types.ProcessKey
	Strategy types.RunningFailureStrategy
}

// Handler owns the failure job queue. It is not safe for concurrent
// use — like the FSM and Context, it is owned exclusively by the agent
// thread (spec §4.4's single-writer rule).
type Handler struct {
	client procmgr.Client
	queue  []Job
	seen   map[types.ProcessKey]bool
}

func New(client procmgr.Client) *Handler {
	return &Handler{client: client, seen: make(map[types.ProcessKey]bool)}
}

// Collect folds the Context's current marked-process list into the
// queue, skipping processes already queued so a process stuck in FATAL
// across several ticks is only enqueued once.
func (h *Handler) Collect(ctx *clusterctx.Context) {
	for _, marked := range ctx.MarkedProcesses() {
		if h.seen[marked.Key] {
			continue
		}
		h.seen[marked.Key] = true
		h.queue = append(h.queue, Job{Key: marked.Key, Strategy: marked.Strategy})
	}
}

// Pending returns the number of jobs waiting to be drained.
func (h *Handler) Pending() int { return len(h.queue) }

// Drain runs every queued job to completion, in FIFO order, issuing the
// matching procmgr request for each. It is the caller's responsibility
// to call Drain only when this agent holds mastership (spec §4.2: "the
// Failure Handler's queue is drained only by the master on each tick").
func (h *Handler) Drain(ctx *clusterctx.Context) {
	logger := log.WithComponent("failure")
	addresses := ctx.Hosts()

	for _, job := range h.queue {
		logger.Info().
			Str("process", job.Key.String()).
			Str("strategy", string(job.Strategy)).
			Msg("draining running-failure job")

		switch job.Strategy {
		case types.RunningFailureRestartProcess:
			h.restartProcess(addresses, job.Key)
		case types.RunningFailureStopApplication:
			h.stopApplication(ctx, job.Key.Application)
		case types.RunningFailureRestartApplication:
			h.stopApplication(ctx, job.Key.Application)
			h.restartApplication(ctx, job.Key.Application)
		case types.RunningFailureContinue:
			// Nothing to do; should not normally be queued.
		}
		delete(h.seen, job.Key)
	}
	h.queue = h.queue[:0]
}

func (h *Handler) restartProcess(addresses []string, key types.ProcessKey) {
	for _, addr := range addresses {
		_ = h.client.RestartProcess(context.Background(), addr, key)
	}
}

func (h *Handler) stopApplication(ctx *clusterctx.Context, appName string) {
	app, ok := ctx.Application(appName)
	if !ok {
		return
	}
	hosts := ctx.Hosts()
	for _, procName := range app.ProcessNames() {
		key := app.Processes[procName].Key
		for _, addr := range hosts {
			_ = h.client.StopProcess(context.Background(), addr, key)
		}
	}
}

func (h *Handler) restartApplication(ctx *clusterctx.Context, appName string) {
	app, ok := ctx.Application(appName)
	if !ok {
		return
	}
	hosts := ctx.Hosts()
	for _, procName := range app.ProcessNames() {
		key := app.Processes[procName].Key
		for _, addr := range hosts {
			_ = h.client.StartProcess(context.Background(), addr, key)
		}
	}
}
