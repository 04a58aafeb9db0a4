// Package metrics defines conclave's Prometheus gauges and counters —
// host/application state counts, FSM state, conflicts, reconciliation
// and deployment activity — and a Collector that samples an Agent's
// Context on a fixed interval.
package metrics
