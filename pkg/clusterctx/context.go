// Package clusterctx implements the Context (spec §4.2, component C3):
// the exclusive owner of every Host Status, Process Status, and
// Application Status record. Nothing outside this package ever mutates
// membership state directly — the FSM, the reconciler, and the failure
// handler all act through the Context's exported operations, and every
// external view (metrics, the HTTP surface, RPC snapshots) is a read-only
// copy taken from here.
package clusterctx

import (
	"sort"
	"time"

	"github.com/cuemby/conclave/pkg/events"
	"github.com/cuemby/conclave/pkg/membership"
	"github.com/cuemby/conclave/pkg/rules"
	"github.com/cuemby/conclave/pkg/types"
)

// Config holds the timing knobs the Context needs to age out silent
// peers and close the INITIALIZATION synchro window.
type Config struct {
	LocalAddress  string
	SilentTimeout time.Duration
	SyncTimeout   time.Duration
	AutoFence     bool
}

// MarkedProcess pairs a process awaiting failure handling with the
// strategy its rules name for it (spec §4.2 "marked processes", feeding
// directly into the C9 Failure Handler queue).
type MarkedProcess struct {
	Key      types.ProcessKey
	Strategy types.RunningFailureStrategy
}

// Context is the control plane's single source of truth for cluster
// membership and process/application status.
type Context struct {
	cfg Config

	hosts        map[string]*membership.HostStatus
	applications map[string]*membership.ApplicationStatus

	catalog *rules.Catalog
	known   []string // every known host name in lexical order, refreshed on each host discovery

	publisher events.Publisher

	syncStart time.Time
	inSynchro bool

	cachedMaster    string
	hasCachedMaster bool

	dirty bool
}

// New creates a Context seeded with the local address as the first known
// host. catalog may be nil, in which case processes are admitted with
// the documented default rules (spec §6) as they are first observed.
func New(cfg Config, catalog *rules.Catalog, publisher events.Publisher) *Context {
	if catalog == nil {
		catalog = rules.NewCatalog()
	}
	c := &Context{
		cfg:          cfg,
		hosts:        make(map[string]*membership.HostStatus),
		applications: make(map[string]*membership.ApplicationStatus),
		catalog:      catalog,
		publisher:    publisher,
		inSynchro:    true,
	}
	c.syncStart = time.Now()
	c.host(cfg.LocalAddress)
	return c
}

// host returns the record for name, creating it in UNKNOWN on first use.
func (c *Context) host(name string) *membership.HostStatus {
	h, ok := c.hosts[name]
	if !ok {
		h = membership.NewHostStatus(name)
		c.hosts[name] = h
		c.known = append(c.known, name)
		sort.Strings(c.known)
		c.dirty = true
	}
	return h
}

// BeginSynchro starts (or restarts) the INITIALIZATION synchro window,
// resetting every non-ISOLATED host to UNKNOWN (spec §4.1 re-entry
// back-door).
func (c *Context) BeginSynchro(now time.Time) {
	c.inSynchro = true
	c.syncStart = now
	for _, h := range c.hosts {
		h.ForceResetToUnknown()
	}
	c.dirty = true
}

// OnTickEvent records a heartbeat from a peer (spec §4.2 on_tick_event).
// A host heard from while UNKNOWN (first contact, or after an
// INITIALIZATION reset) or while SILENT is sent into CHECKING so the agent
// thread issues an authorization request. Returns true when the tick moved
// the host into CHECKING — the agent's cue to enqueue a deferred
// CHECK_ADDRESS.
func (c *Context) OnTickEvent(address string, when, now time.Time) bool {
	h := c.host(address)
	prev := h.State
	h.ObserveTick(when, now)
	beganChecking := false
	if h.State == types.HostUnknown || h.State == types.HostSilent {
		beganChecking = h.BeginChecking()
	}
	c.publishAddressStatusIfChanged(h, prev)
	c.dirty = true
	return beganChecking
}

// OnAuthorization completes a CHECKING round for address (spec §4.2
// on_authorization). On success the host's self-reported process
// snapshot is folded into membership and the per-process/application
// catalog entries are created as needed.
func (c *Context) OnAuthorization(address string, authorized bool, now time.Time, snapshot []types.ProcessInfo) {
	h := c.host(address)
	prev := h.State
	if !h.CompleteAuthorization(authorized, now, snapshot) {
		return
	}
	c.publishAddressStatusIfChanged(h, prev)
	if authorized {
		for _, info := range snapshot {
			c.applyProcessEvent(address, info.Key, info.Event)
		}
	}
	c.dirty = true
}

// OnProcessEvent folds a single process state-change event, reported by
// address's local process manager, into the cross-host process and
// application status records (spec §4.2 on_process_event).
func (c *Context) OnProcessEvent(address string, key types.ProcessKey, ev types.ProcessEvent) {
	c.applyProcessEvent(address, key, ev)
	c.dirty = true
}

func (c *Context) applyProcessEvent(address string, key types.ProcessKey, ev types.ProcessEvent) {
	app := c.applicationFor(key.Application)
	prevAppState := app.State()
	proc := c.processFor(app, key)
	if proc.Update(address, ev) {
		c.dirty = true
		c.publishProcessStatus(proc)
	}
	c.host(address).UpdateProcess(key, ev)
	if app.State() != prevAppState {
		c.dirty = true
		c.publishApplicationStatus(app)
	}
}

// publishAddressStatusIfChanged emits an address-status event whenever h's
// state differs from prev (spec §4.7: "on every Host Status transition").
func (c *Context) publishAddressStatusIfChanged(h *membership.HostStatus, prev types.HostState) {
	if h.State == prev || c.publisher == nil {
		return
	}
	c.publisher.Publish(events.Event{
		Type:    events.TypeAddressStatus,
		Address: h.Name,
		Payload: map[string]string{"state": string(h.State)},
	})
}

func (c *Context) publishApplicationStatus(app *membership.ApplicationStatus) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(events.Event{
		Type:    events.TypeApplicationStatus,
		Payload: map[string]string{"application": app.Name, "state": string(app.State())},
	})
}

func (c *Context) publishProcessStatus(proc *membership.ProcessStatus) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(events.Event{
		Type: events.TypeProcessStatus,
		Payload: map[string]string{
			"application": proc.Key.Application,
			"process":     proc.Key.Process,
			"state":       string(proc.State()),
		},
	})
}

func (c *Context) applicationFor(name string) *membership.ApplicationStatus {
	app, ok := c.applications[name]
	if ok {
		return app
	}
	appRules := types.DefaultApplicationRules()
	if entry, ok := c.catalog.Applications[name]; ok {
		appRules = entry.Rules
	}
	app = membership.NewApplicationStatus(name, appRules)
	c.applications[name] = app
	return app
}

func (c *Context) processFor(app *membership.ApplicationStatus, key types.ProcessKey) *membership.ProcessStatus {
	proc, ok := app.Processes[key.Process]
	if ok {
		return proc
	}
	procRules := types.DefaultProcessRules()
	if entry, ok := c.catalog.Applications[key.Application]; ok {
		for _, p := range entry.Processes {
			if p.Name == key.Process {
				procRules = p.Rules
				break
			}
		}
	}
	proc = membership.NewProcessStatus(key, procRules)
	app.Processes[key.Process] = proc
	return proc
}

// OnTimerEvent runs the periodic aging pass (spec §4.2 on_timer_event):
// ages every known host toward SILENT/ISOLATING. It does not finalize
// ISOLATING hosts; HandleIsolation does that as a separate call.
func (c *Context) OnTimerEvent(now time.Time) {
	for _, name := range c.known {
		h := c.hosts[name]
		prev := h.State
		h.AgeOut(now, c.cfg.SilentTimeout, c.cfg.AutoFence)
		c.publishAddressStatusIfChanged(h, prev)
	}
	c.dirty = true
}

// HandleIsolation publishes an isolation event for every host currently
// ISOLATING and then finalizes it to ISOLATED — publish-then-set, so a
// crash between the two never hides an isolation from the rest of the
// cluster (spec §4.2). Returns the addresses newly finalized to ISOLATED,
// which the Main Loop uses to issue ISOLATE_ADDRESSES against the local
// process manager and tear down its transport connections.
func (c *Context) HandleIsolation() []string {
	var isolated []string
	for _, name := range c.known {
		h := c.hosts[name]
		if h.State != types.HostIsolating {
			continue
		}
		if c.publisher != nil {
			c.publisher.Publish(events.Event{
				Type:    events.TypeAddressStatus,
				Address: h.Name,
				Payload: map[string]string{"state": string(types.HostIsolated)},
			})
		}
		if h.FinishIsolation() {
			c.dirty = true
			isolated = append(isolated, name)
		}
	}
	return isolated
}

// EndSynchro closes the INITIALIZATION synchro window (spec §4.3 exit
// action). Hosts that never reached RUNNING stay exactly where they are
// — the spec does not auto-isolate a host merely for being slow to sync.
func (c *Context) EndSynchro() {
	c.inSynchro = false
}

// SynchroExpired reports whether the synchro window has run past its
// configured timeout.
func (c *Context) SynchroExpired(now time.Time) bool {
	if !c.inSynchro || c.syncStart.IsZero() {
		return false
	}
	return now.Sub(c.syncStart) > c.cfg.SyncTimeout
}

// InSynchro reports whether INITIALIZATION's synchro window is open.
func (c *Context) InSynchro() bool { return c.inSynchro }

// RunningAddresses returns, in lexical order, every host currently in
// RUNNING.
func (c *Context) RunningAddresses() []string {
	var out []string
	for _, name := range c.known {
		if c.hosts[name].State == types.HostRunning {
			out = append(out, name)
		}
	}
	return out
}

// UnknownAddresses returns, in lexical order, every host still in
// UNKNOWN or CHECKING (spec's "not yet synchronized" set).
func (c *Context) UnknownAddresses() []string {
	var out []string
	for _, name := range c.known {
		switch c.hosts[name].State {
		case types.HostUnknown, types.HostChecking:
			out = append(out, name)
		}
	}
	return out
}

// Master returns the deterministic master election result (spec §4.2):
// the lexicographically smallest RUNNING host address, and whether one
// exists at all.
func (c *Context) Master() (string, bool) {
	running := c.RunningAddresses()
	if len(running) == 0 {
		return "", false
	}
	return running[0], true
}

// IsMaster reports whether the local address currently holds mastership.
func (c *Context) IsMaster() bool {
	master, ok := c.Master()
	return ok && master == c.cfg.LocalAddress
}

// CacheMaster fixes the master address for the next OPERATION/CONCILIATION
// cycle (spec §4.3 INITIALIZATION exit action: "compute master=min(
// running_addresses())"). The FSM calls this once, on leaving
// INITIALIZATION; evaluate() then checks this fixed reference, not a
// freshly re-elected one, so a master that drops out of RUNNING is
// noticed even if a new master would otherwise be elected instantly.
func (c *Context) CacheMaster() {
	c.cachedMaster, c.hasCachedMaster = c.Master()
}

// CachedMaster returns the master address fixed by the last CacheMaster
// call.
func (c *Context) CachedMaster() (string, bool) {
	return c.cachedMaster, c.hasCachedMaster
}

// Conflicts returns every process currently observed RUNNING on more
// than one host, across all applications, in (application, process)
// lexical order.
func (c *Context) Conflicts() []*membership.ProcessStatus {
	var out []*membership.ProcessStatus
	for _, appName := range c.applicationNames() {
		out = append(out, c.applications[appName].Conflicts()...)
	}
	return out
}

// Conflicting reports whether any process conflict currently exists —
// the trigger the FSM uses to move OPERATION into CONCILIATION.
func (c *Context) Conflicting() bool {
	for _, appName := range c.applicationNames() {
		if len(c.applications[appName].Conflicts()) > 0 {
			return true
		}
	}
	return false
}

// MarkedProcesses returns every process whose last observed state is
// terminal (EXITED/FATAL) and whose rules name a running-failure
// strategy other than CONTINUE — the feed for the C9 Failure Handler.
func (c *Context) MarkedProcesses() []MarkedProcess {
	var out []MarkedProcess
	for _, appName := range c.applicationNames() {
		app := c.applications[appName]
		for _, procName := range app.ProcessNames() {
			proc := app.Processes[procName]
			if !proc.State().Terminal() {
				continue
			}
			if proc.Rules.RunningFailure == types.RunningFailureContinue {
				continue
			}
			out = append(out, MarkedProcess{Key: proc.Key, Strategy: proc.Rules.RunningFailure})
		}
	}
	return out
}

func (c *Context) applicationNames() []string {
	names := make([]string, 0, len(c.applications))
	for name := range c.applications {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Applications returns the known application names in lexical order.
func (c *Context) Applications() []string {
	return c.applicationNames()
}

// Application returns the status record for name, if known.
func (c *Context) Application(name string) (*membership.ApplicationStatus, bool) {
	app, ok := c.applications[name]
	return app, ok
}

// Host returns the status record for address, if known.
func (c *Context) Host(address string) (*membership.HostStatus, bool) {
	h, ok := c.hosts[address]
	return h, ok
}

// Hosts returns known host names in lexical order.
func (c *Context) Hosts() []string {
	return append([]string(nil), c.known...)
}

// Dirty reports whether any mutation has happened since the last
// ClearDirty call — the Main Loop's cue to push a fresh status snapshot
// out over the event publisher.
func (c *Context) Dirty() bool { return c.dirty }

// ClearDirty resets the dirty flag.
func (c *Context) ClearDirty() { c.dirty = false }

// LocalAddress returns this agent's own address.
func (c *Context) LocalAddress() string { return c.cfg.LocalAddress }
