// Package jobmetrics instruments the ledger notification queue.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Metrics counts notification enqueues and handler runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	handled  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	enqueued *prometheus.CounterVec
}

// NewMetrics registers the collectors on registerer. A nil registerer yields
// a nil *Metrics.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return nil
	}
	m := &Metrics{
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_notifications_handled_total",
			Help: "Notification tasks processed by the worker, by task type and outcome.",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_ledger_notification_duration_seconds",
			Help:    "Time spent handling one notification task.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"task"}),
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_notifications_enqueued_total",
			Help: "Notification tasks handed to the queue, by task type and outcome.",
		}, []string{"task", "outcome"}),
	}
	registerer.MustRegister(m.handled, m.duration, m.enqueued)
	return m
}

// Run measures one handler invocation.
type Run struct {
	metrics *Metrics
	task    string
	started time.Time
}

// Track starts measuring a handler run for task.
func (m *Metrics) Track(task string) *Run {
	return &Run{metrics: m, task: task, started: time.Now()}
}

// End records the outcome of the run and returns err unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	r.metrics.handled.WithLabelValues(r.task, outcome(err)).Inc()
	r.metrics.duration.WithLabelValues(r.task).Observe(time.Since(r.started).Seconds())
	return err
}

// Enqueued counts one enqueue attempt for task.
func (m *Metrics) Enqueued(task string, err error) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(task, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeOK
}
