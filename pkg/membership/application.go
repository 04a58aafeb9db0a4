package membership

import (
	"sort"

	"github.com/cuemby/conclave/pkg/types"
)

// ApplicationStatus groups a set of logical processes under one
// application, with its own rules and a derived state (spec §3).
type ApplicationStatus struct {
	Name      string
	Rules     types.ApplicationRules
	Processes map[string]*ProcessStatus // process name -> status
}

// NewApplicationStatus creates an application record with no processes
// yet attached.
func NewApplicationStatus(name string, rules types.ApplicationRules) *ApplicationStatus {
	return &ApplicationStatus{
		Name:      name,
		Rules:     rules,
		Processes: make(map[string]*ProcessStatus),
	}
}

// ProcessNames returns member process names in lexical order.
func (a *ApplicationStatus) ProcessNames() []string {
	names := make([]string, 0, len(a.Processes))
	for name := range a.Processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// State derives the application's lifecycle state from its member
// processes (spec §3): STOPPED if every member is STOPPED or never
// observed, else STOPPING if any member is winding down, else RUNNING once
// every required process (or, with none required, every process) is
// RUNNING, STARTING otherwise.
func (a *ApplicationStatus) State() types.ApplicationState {
	if len(a.Processes) == 0 {
		return types.AppStopped
	}

	allStopped := true
	anyStopping := false
	requiredRunning := true
	anyRequired := false

	for _, ps := range a.Processes {
		state := ps.State()
		if state != types.ProcessStopped && state != types.ProcessUnknown {
			allStopped = false
		}
		if state == types.ProcessStopping {
			anyStopping = true
		}
		if ps.Rules.Required {
			anyRequired = true
			if state != types.ProcessRunning {
				requiredRunning = false
			}
		}
	}

	switch {
	case allStopped:
		return types.AppStopped
	case anyStopping:
		return types.AppStopping
	case anyRequired && requiredRunning:
		return types.AppRunning
	case !anyRequired && allRunning(a.Processes):
		return types.AppRunning
	default:
		return types.AppStarting
	}
}

func allRunning(procs map[string]*ProcessStatus) bool {
	for _, ps := range procs {
		if ps.State() != types.ProcessRunning {
			return false
		}
	}
	return true
}

// Conflicts returns the process statuses under this application that
// currently have a conflict, in process-name order.
func (a *ApplicationStatus) Conflicts() []*ProcessStatus {
	var out []*ProcessStatus
	for _, name := range a.ProcessNames() {
		if a.Processes[name].Conflict() {
			out = append(out, a.Processes[name])
		}
	}
	return out
}
