package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Membership metrics

	HostsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conclave_hosts_total",
			Help: "Number of known hosts by liveness state",
		},
		[]string{"state"},
	)

	ApplicationsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conclave_applications_total",
			Help: "Number of known applications by derived state",
		},
		[]string{"state"},
	)

	ProcessConflictsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conclave_process_conflicts",
			Help: "Number of processes currently observed RUNNING on more than one host",
		},
	)

	// FSM metrics

	FSMState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conclave_fsm_state",
			Help: "1 for the cluster FSM's current state, 0 otherwise",
		},
		[]string{"state"},
	)

	FSMTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_fsm_transitions_total",
			Help: "Total number of FSM transitions by from/to state",
		},
		[]string{"from", "to"},
	)

	IsMaster = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conclave_is_master",
			Help: "Whether this agent currently holds mastership (1) or not (0)",
		},
	)

	// Reconciliation metrics

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conclave_reconciliation_cycles_total",
			Help: "Total number of conciliation passes completed",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conclave_reconciliation_duration_seconds",
			Help:    "Time taken for a conciliation pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProcessesStoppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_processes_stopped_total",
			Help: "Total number of processes stopped by the reconciler, by strategy",
		},
		[]string{"strategy"},
	)

	// Deployment metrics

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conclave_deployment_duration_seconds",
			Help:    "Time the cluster spent in DEPLOYMENT per visit",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	StartRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conclave_start_requests_total",
			Help: "Total number of process start requests issued by the deployer",
		},
	)

	// Failure handler metrics

	FailureJobsQueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conclave_failure_jobs_queued_total",
			Help: "Total number of running-failure jobs enqueued",
		},
	)

	FailureJobsDrainedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conclave_failure_jobs_drained_total",
			Help: "Total number of running-failure jobs drained by the master",
		},
	)

	// Event publisher metrics

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conclave_events_published_total",
			Help: "Total number of events published, by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(HostsByState)
	prometheus.MustRegister(ApplicationsByState)
	prometheus.MustRegister(ProcessConflictsTotal)
	prometheus.MustRegister(FSMState)
	prometheus.MustRegister(FSMTransitionsTotal)
	prometheus.MustRegister(IsMaster)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ProcessesStoppedTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(StartRequestsTotal)
	prometheus.MustRegister(FailureJobsQueuedTotal)
	prometheus.MustRegister(FailureJobsDrainedTotal)
	prometheus.MustRegister(EventsPublishedTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an in-flight operation for later observation against a
// histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time against histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time against a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram *prometheus.HistogramVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
