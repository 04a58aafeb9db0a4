// Package types is the foundation of conclave's data model: host
// liveness, process/application status, FSM state, and rule records.
// Nothing in this package owns behavior — see pkg/membership, pkg/fsm,
// and pkg/rules for the state machines built on top of these shapes.
package types
