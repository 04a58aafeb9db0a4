package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/conclave/pkg/types"
)

func TestApplicationStatusStateEmpty(t *testing.T) {
	app := NewApplicationStatus("app", types.DefaultApplicationRules())
	assert.Equal(t, types.AppStopped, app.State())
}

func TestApplicationStatusStateRequiredRunning(t *testing.T) {
	app := NewApplicationStatus("app", types.DefaultApplicationRules())

	required := types.DefaultProcessRules()
	required.Required = true
	p1 := NewProcessStatus(types.ProcessKey{Application: "app", Process: "p1"}, required)
	p1.Update("host-a", types.ProcessEvent{State: types.ProcessRunning})
	app.Processes["p1"] = p1

	optional := NewProcessStatus(types.ProcessKey{Application: "app", Process: "p2"}, types.DefaultProcessRules())
	optional.Update("host-a", types.ProcessEvent{State: types.ProcessStarting})
	app.Processes["p2"] = optional

	assert.Equal(t, types.AppRunning, app.State(), "application should be RUNNING once its required process is up")
}

func TestApplicationStatusStateStarting(t *testing.T) {
	app := NewApplicationStatus("app", types.DefaultApplicationRules())

	required := types.DefaultProcessRules()
	required.Required = true
	p1 := NewProcessStatus(types.ProcessKey{Application: "app", Process: "p1"}, required)
	p1.Update("host-a", types.ProcessEvent{State: types.ProcessStarting})
	app.Processes["p1"] = p1

	assert.Equal(t, types.AppStarting, app.State())
}

func TestApplicationStatusConflicts(t *testing.T) {
	app := NewApplicationStatus("app", types.DefaultApplicationRules())

	p1 := NewProcessStatus(types.ProcessKey{Application: "app", Process: "p1"}, types.DefaultProcessRules())
	p1.Update("host-a", types.ProcessEvent{State: types.ProcessRunning})
	p1.Update("host-b", types.ProcessEvent{State: types.ProcessRunning})
	app.Processes["p1"] = p1

	p2 := NewProcessStatus(types.ProcessKey{Application: "app", Process: "p2"}, types.DefaultProcessRules())
	p2.Update("host-a", types.ProcessEvent{State: types.ProcessRunning})
	app.Processes["p2"] = p2

	conflicts := app.Conflicts()
	if assert.Len(t, conflicts, 1) {
		assert.Equal(t, "p1", conflicts[0].Key.Process)
	}
}
