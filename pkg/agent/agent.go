// Package agent implements the Main Loop (spec §4.4, component C4): a
// three-goroutine split between the agent thread, which exclusively owns
// the Context, the FSM, and the Failure Handler; an I/O worker that
// bridges the transport's inbound messages onto a channel the agent
// thread polls with a 500ms timeout; and a check worker that runs the
// check_address RPCs and feeds their outcome onto the same channel. No
// mutable cluster state ever crosses those boundaries except as a
// transport.Message value.
package agent

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/conclave/pkg/clusterctx"
	"github.com/cuemby/conclave/pkg/deploy"
	"github.com/cuemby/conclave/pkg/events"
	"github.com/cuemby/conclave/pkg/failure"
	"github.com/cuemby/conclave/pkg/fsm"
	"github.com/cuemby/conclave/pkg/procmgr"
	"github.com/cuemby/conclave/pkg/reconcile"
	"github.com/cuemby/conclave/pkg/rules"
	"github.com/cuemby/conclave/pkg/transport"
	"github.com/cuemby/conclave/pkg/types"
)

// pollTimeout bounds how long the agent thread waits for an inbound
// message before running its own timer tick anyway — the mechanism
// that drives host aging and FSM evaluation even when the cluster is
// perfectly quiet.
const pollTimeout = 500 * time.Millisecond

// Config wires every collaborator the agent needs. Transport and
// ProcessManager are the two external contracts (spec §1); everything
// else is part of the core.
type Config struct {
	ClusterCtx     clusterctx.Config
	Catalog        *rules.Catalog
	Transport      transport.Transport
	ProcessManager procmgr.Client
	Publisher      events.Publisher
	Deployer       deploy.Deployer      // nil uses deploy.NewSequentialDeployer(ProcessManager)
	Reconciler     reconcile.Reconciler // nil uses reconcile.NewPolicy(ProcessManager, ConciliationStrategy)

	// ConciliationStrategy is the cluster-wide conciliation_strategy
	// configuration knob (spec §6), used only when Reconciler is nil.
	// Empty defaults to senicide.
	ConciliationStrategy types.ConciliationStrategy
}

// Agent runs the control plane's main loop for one host.
type Agent struct {
	cfg Config

	ctx            *clusterctx.Context
	fsm            *fsm.FSM
	failureHandler *failure.Handler

	msgCh      chan transport.Message
	deferredCh chan string // addresses awaiting a deferred CHECK_ADDRESS RPC
}

// New assembles an Agent from cfg, defaulting the deployer and
// reconciler to their stock implementations when the caller leaves them
// nil.
func New(cfg Config) *Agent {
	clusterCtx := clusterctx.New(cfg.ClusterCtx, cfg.Catalog, cfg.Publisher)

	deployer := cfg.Deployer
	if deployer == nil {
		deployer = deploy.NewSequentialDeployer(cfg.ProcessManager)
	}
	reconciler := cfg.Reconciler
	if reconciler == nil {
		strategy := cfg.ConciliationStrategy
		if strategy == "" {
			strategy = types.StrategySenicide
		}
		reconciler = reconcile.NewPolicy(cfg.ProcessManager, strategy)
	}

	return &Agent{
		cfg:            cfg,
		ctx:            clusterCtx,
		fsm:            fsm.New(clusterCtx, deployer, reconciler),
		failureHandler: failure.New(cfg.ProcessManager),
		msgCh:          make(chan transport.Message, 256),
		deferredCh:     make(chan string, 256),
	}
}

// Run blocks until ctx is cancelled or any goroutine fails, running the
// I/O worker, the deferred-request worker, and the agent loop
// concurrently (spec §5: the agent thread owns Context/FSM/FailureHandler;
// a second worker does all blocking I/O, including RPCs to remote process
// managers).
func (a *Agent) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return a.ioWorker(gctx)
	})
	group.Go(func() error {
		return a.checkWorker(gctx)
	})
	group.Go(func() error {
		return a.loop(gctx)
	})

	return group.Wait()
}

// ioWorker copies every inbound transport message onto the agent
// thread's channel, exiting when the transport closes its inbox or the
// context is cancelled.
func (a *Agent) ioWorker(ctx context.Context) error {
	inbox := a.cfg.Transport.Inbox()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbox:
			if !ok {
				return nil
			}
			select {
			case a.msgCh <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// loop is the agent thread: the only goroutine that ever touches the
// Context, the FSM, or the Failure Handler.
func (a *Agent) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = a.cfg.ProcessManager.Shutdown(context.Background(), a.ctx.LocalAddress())
			return ctx.Err()
		case msg := <-a.msgCh:
			a.handle(msg)
		case <-time.After(pollTimeout):
		}

		now := time.Now()
		a.ctx.OnTimerEvent(now)
		if isolated := a.ctx.HandleIsolation(); len(isolated) > 0 {
			_ = a.cfg.ProcessManager.IsolateAddresses(context.Background(), a.ctx.LocalAddress(), isolated)
		}
		a.fsm.Tick(now)

		a.failureHandler.Collect(a.ctx)
		if a.ctx.IsMaster() {
			a.failureHandler.Drain(a.ctx)
		}

		if a.ctx.Dirty() {
			a.publishStatus()
			a.ctx.ClearDirty()
		}
	}
}

func (a *Agent) handle(msg transport.Message) {
	now := time.Now()
	switch msg.Kind {
	case transport.KindTick:
		if a.ctx.OnTickEvent(msg.Address, msg.When, now) {
			a.enqueueCheck(msg.Address)
		}
	case transport.KindProcessEvent:
		if msg.Process != nil {
			a.ctx.OnProcessEvent(msg.Address, msg.Process.Key, msg.Process.Event)
		}
	case transport.KindAuthReply:
		if msg.Authorize != nil {
			a.ctx.OnAuthorization(msg.Address, msg.Authorize.Authorized, now, msg.Authorize.Snapshot)
		}
	}
}

// enqueueCheck schedules a deferred CHECK_ADDRESS for address, dropping it
// rather than blocking the agent thread if the queue is saturated — the
// host stays CHECKING, later ticks do not re-queue it, and OnTimerEvent
// ages it to SILENT once it has gone a silence timeout without a tick.
func (a *Agent) enqueueCheck(address string) {
	select {
	case a.deferredCh <- address:
	default:
	}
}

// checkWorker is the deferred-request puller (spec §4.4/§5): it pulls
// addresses awaiting authorization off deferredCh and runs the
// check_address protocol against each one's process manager directly,
// converting the RPC result into an agent-thread message. RPC errors are
// swallowed per spec §7 — the CHECKING host simply times out and is aged
// out by OnTimerEvent instead.
func (a *Agent) checkWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case address := <-a.deferredCh:
			result, err := a.cfg.ProcessManager.CheckAddress(ctx, address)
			if err != nil {
				continue
			}
			authorized := result.State != types.HostIsolating && result.State != types.HostIsolated
			msg := transport.Message{
				Kind:    transport.KindAuthReply,
				Address: address,
				When:    time.Now(),
				Authorize: &transport.AuthPayload{
					Authorized: authorized,
				},
			}
			if authorized {
				msg.Authorize.Snapshot = result.Processes
			}
			select {
			case a.msgCh <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (a *Agent) publishStatus() {
	if a.cfg.Publisher == nil {
		return
	}
	master, _ := a.ctx.CachedMaster()
	a.cfg.Publisher.Publish(events.Event{
		Type:    events.TypeSupervisorStatus,
		Address: a.ctx.LocalAddress(),
		Payload: map[string]string{
			"fsm_state":      string(a.fsm.State()),
			"master_address": master,
		},
	})
}

// FSMState exposes the current FSM state for metrics and diagnostics.
func (a *Agent) FSMState() types.FSMState { return a.fsm.State() }

// Context exposes the underlying Context for read-only inspection (the
// HTTP/web UI and statistics compiler collaborators, both external per
// spec §1, consume exactly this kind of read-only snapshot).
func (a *Agent) Context() *clusterctx.Context { return a.ctx }
