package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the pipeline-wide counters. One instance is wired
// through the services; nil receivers are tolerated everywhere so tests can
// skip metrics entirely.
type Metrics struct {
	EventsClassified  *prometheus.CounterVec
	EventsDropped     prometheus.Counter
	Deliveries        *prometheus.CounterVec
	GateVerdicts      *prometheus.CounterVec
	BatchCommits      prometheus.Counter
	BatchDuplicates   prometheus.Counter
	ReplayRetries     prometheus.Counter
	BroadcastFailures prometheus.Counter
	GateCheckDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "filegate_events_classified_total",
			Help: "Inbound events by classified request type",
		}, []string{"type"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_events_dropped_total",
			Help: "Inbound events that matched no request type",
		}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "filegate_deliveries_total",
			Help: "Redemption outcomes",
		}, []string{"outcome"}),
		GateVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "filegate_gate_verdicts_total",
			Help: "Membership gate verdicts",
		}, []string{"verdict"}),
		BatchCommits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_batch_commits_total",
			Help: "Batch records committed to the store",
		}),
		BatchDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_batch_duplicate_commits_total",
			Help: "Batch commits swallowed by the idempotency guard",
		}),
		ReplayRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_replay_retries_total",
			Help: "Archive replay attempts retried after a transient fault",
		}),
		BroadcastFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_broadcast_failures_total",
			Help: "Broadcast recipients that could not be reached",
		}),
		GateCheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "filegate_gate_check_duration_seconds",
			Help:    "Latency of full membership gate evaluation",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveClassified(eventType string) {
	if m == nil {
		return
	}
	m.EventsClassified.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func (m *Metrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVerdict(allowed bool) {
	if m == nil {
		return
	}
	verdict := "deny"
	if allowed {
		verdict = "allow"
	}
	m.GateVerdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) ObserveBatchCommit(committed bool) {
	if m == nil {
		return
	}
	if committed {
		m.BatchCommits.Inc()
	} else {
		m.BatchDuplicates.Inc()
	}
}

func (m *Metrics) ObserveReplayRetry() {
	if m == nil {
		return
	}
	m.ReplayRetries.Inc()
}

func (m *Metrics) ObserveBroadcastFailure() {
	if m == nil {
		return
	}
	m.BroadcastFailures.Inc()
}

func (m *Metrics) ObserveGateDuration(seconds float64) {
	if m == nil {
		return
	}
	m.GateCheckDuration.Observe(seconds)
}
