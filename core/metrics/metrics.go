package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for record workflows.
type Metrics struct {
	// Transitions by workflow action and outcome ("ok" or the error kind)
	Transitions *prometheus.CounterVec

	// Best-effort sink failures: audit, notify, email, escalation
	SideEffectFailures *prometheus.CounterVec

	// Reminder sweep duration
	ReminderSweep prometheus.Histogram

	// Imported rows by outcome
	ImportRows *prometheus.CounterVec
}

// New registers all metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oblik_record_transitions_total",
			Help: "Record workflow operations by action and result",
		}, []string{"action", "result"}),

		SideEffectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oblik_side_effect_failures_total",
			Help: "Failed best-effort side effects by sink",
		}, []string{"sink"}),

		ReminderSweep: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "oblik_reminder_sweep_duration_seconds",
			Help:    "Duration of a deadline reminder sweep",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}),

		ImportRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oblik_import_rows_total",
			Help: "Register import rows by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncTransition(action, result string) {
	if m != nil {
		m.Transitions.WithLabelValues(action, result).Inc()
	}
}

func (m *Metrics) IncSideEffectFailure(sink string) {
	if m != nil {
		m.SideEffectFailures.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) ObserveReminderSweep(d time.Duration) {
	if m != nil {
		m.ReminderSweep.Observe(d.Seconds())
	}
}

func (m *Metrics) IncImportRow(result string) {
	if m != nil {
		m.ImportRows.WithLabelValues(result).Inc()
	}
}
