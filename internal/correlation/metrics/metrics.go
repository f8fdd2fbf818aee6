package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the correlation engine. All methods are
// nil-receiver safe so wiring metrics stays optional in tests.
type Metrics struct {
	// Signal source fetch latencies by domain
	SourceLatency *prometheus.HistogramVec

	// Full evaluation run latency
	RunLatency prometheus.Histogram

	// Evaluation runs by outcome
	RunsTotal *prometheus.CounterVec

	// Compound events created by rule name
	EventsCreated *prometheus.CounterVec

	// Rules skipped or failed during a run
	RuleErrors *prometheus.CounterVec
}

// New creates a Metrics instance with all correlation engine metrics
// registered on the default registry.
func New() *Metrics {
	return &Metrics{
		SourceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "caresignal_source_fetch_duration_seconds",
			Help:    "Duration of signal source window queries by domain",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"domain"}),

		RunLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "caresignal_run_duration_seconds",
			Help:    "Duration of a full correlation run including emits",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caresignal_runs_total",
			Help: "Total correlation runs by outcome",
		}, []string{"outcome"}), // outcome: "ok", "subject_not_found", "locked", "error"

		EventsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caresignal_compound_events_created_total",
			Help: "Total compound events created by rule",
		}, []string{"rule"}),

		RuleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "caresignal_rule_errors_total",
			Help: "Rules skipped as malformed or failed during emit",
		}, []string{"kind"}), // kind: "skipped", "emit_failed"
	}
}

// ObserveSourceLatency records the duration of one domain's window query.
func (m *Metrics) ObserveSourceLatency(domain string, d time.Duration) {
	if m != nil {
		m.SourceLatency.WithLabelValues(domain).Observe(d.Seconds())
	}
}

// ObserveRunLatency records the total run duration.
func (m *Metrics) ObserveRunLatency(d time.Duration) {
	if m != nil {
		m.RunLatency.Observe(d.Seconds())
	}
}

// IncrementRuns records a run outcome.
func (m *Metrics) IncrementRuns(outcome string) {
	if m != nil {
		m.RunsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncrementEventsCreated records a created compound event.
func (m *Metrics) IncrementEventsCreated(rule string) {
	if m != nil {
		m.EventsCreated.WithLabelValues(rule).Inc()
	}
}

// IncrementRuleErrors records a skipped or failed rule.
func (m *Metrics) IncrementRuleErrors(kind string) {
	if m != nil {
		m.RuleErrors.WithLabelValues(kind).Inc()
	}
}
