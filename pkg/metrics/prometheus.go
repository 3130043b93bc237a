package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	HoldsCreated   prometheus.Counter
	HoldConflicts  prometheus.Counter
	SyncBlocks     *prometheus.CounterVec
	SyncRuns       *prometheus.CounterVec
	SweepItems     *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
	NotifyFailures prometheus.Counter
}

// NewMetrics creates new prometheus metrics registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking lifecycle operations by action and outcome",
		}, []string{"action", "outcome"}),
		HoldsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_created_total",
			Help:      "The total number of holds placed",
		}),
		HoldConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_conflicts_total",
			Help:      "Hold attempts rejected because the dates were taken",
		}),
		SyncBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_sync_blocks_total",
			Help:      "External calendar blocks touched by sync, by operation",
		}, []string{"op"}),
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_sync_runs_total",
			Help:      "External calendar sync runs by result",
		}, []string{"result"}),
		SweepItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_sweep_items_total",
			Help:      "Holds handled by the expiration sweep, by outcome",
		}, []string{"outcome"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time taken by scheduled jobs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status class",
		}, []string{"method", "route", "status"}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered",
		}),
	}
}

func (m *Metrics) Transition(action, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) HoldCreated() {
	if m == nil {
		return
	}
	m.HoldsCreated.Inc()
}

func (m *Metrics) HoldConflict() {
	if m == nil {
		return
	}
	m.HoldConflicts.Inc()
}

func (m *Metrics) SyncApplied(op string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SyncBlocks.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) SyncRun(result string) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) SweepItem(outcome string) {
	if m == nil {
		return
	}
	m.SweepItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveJob(job string, seconds float64) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(job).Observe(seconds)
}

func (m *Metrics) Request(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}
