package rules

import (
	"strings"
	"testing"

	"github.com/cuemby/conclave/pkg/types"
)

const sampleRulesXML = `<?xml version="1.0" encoding="UTF-8"?>
<rules>
  <application name="dummy_application_A">
    <start_sequence>1</start_sequence>
    <stop_sequence>1</stop_sequence>
    <starting_failure_strategy>ABORT</starting_failure_strategy>
    <running_failure_strategy>CONTINUE</running_failure_strategy>
    <program name="dummy_program_A0">
      <addresses>*</addresses>
      <start_sequence>1</start_sequence>
      <stop_sequence>1</stop_sequence>
      <required>true</required>
      <expected_loading>5</expected_loading>
      <running_failure_strategy>RESTART_PROCESS</running_failure_strategy>
    </program>
    <program name="dummy_program_A1">
      <addresses>#</addresses>
      <homogeneous_index>0</homogeneous_index>
      <start_sequence>2</start_sequence>
    </program>
  </application>
</rules>`

func TestParseXML(t *testing.T) {
	cat, err := parseXML(strings.NewReader(sampleRulesXML))
	if err != nil {
		t.Fatalf("parseXML: %v", err)
	}

	app, ok := cat.Applications["dummy_application_A"]
	if !ok {
		t.Fatal("expected application dummy_application_A")
	}
	if app.Rules.StartingFailure != types.StartFailureAbort {
		t.Errorf("StartingFailure = %s, want ABORT", app.Rules.StartingFailure)
	}
	if len(app.Processes) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(app.Processes))
	}

	p0 := app.Processes[0]
	if p0.Name != "dummy_program_A0" {
		t.Fatalf("unexpected first process: %s", p0.Name)
	}
	if !p0.Rules.Required {
		t.Error("dummy_program_A0 should be required")
	}
	if p0.Rules.ExpectedLoading != 5 {
		t.Errorf("ExpectedLoading = %d, want 5", p0.Rules.ExpectedLoading)
	}
	if p0.Rules.RunningFailure != types.RunningFailureRestartProcess {
		t.Errorf("RunningFailure = %s, want RESTART_PROCESS", p0.Rules.RunningFailure)
	}

	p1 := app.Processes[1]
	if p1.Rules.HomogeneousIndex != 0 {
		t.Errorf("HomogeneousIndex = %d, want 0", p1.Rules.HomogeneousIndex)
	}
	if len(p1.Rules.Addresses) != 1 || p1.Rules.Addresses[0] != "#" {
		t.Errorf("Addresses = %v, want [#]", p1.Rules.Addresses)
	}
}

func TestParseXMLMissingApplicationName(t *testing.T) {
	_, err := parseXML(strings.NewReader(`<rules><application><program name="x"/></application></rules>`))
	if err == nil {
		t.Fatal("expected an error for a nameless application")
	}
}
