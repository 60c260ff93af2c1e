package cron

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes scheduler counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
	retries     prometheus.Counter
	overruns    prometheus.Counter
	queueDepth  prometheus.Gauge
	inFlight    prometheus.Gauge
}

// NewMetrics creates the scheduler collectors and registers them on reg.
// A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "cron",
			Name:      "submissions_total",
			Help:      "Job submissions by result.",
		}, []string{"result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "cron",
			Name:      "runs_total",
			Help:      "Job runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "daybook",
			Subsystem: "cron",
			Name:      "run_duration_seconds",
			Help:      "Wall time of job runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "cron",
			Name:      "retries_total",
			Help:      "Runs re-armed after a retryable failure.",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "cron",
			Name:      "overruns_total",
			Help:      "Periodic runs that outlasted their period.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "daybook",
			Subsystem: "cron",
			Name:      "queue_depth",
			Help:      "Armed entries in the fire queue.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "daybook",
			Subsystem: "cron",
			Name:      "runs_in_flight",
			Help:      "Runs currently executing.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.submissions, m.runs, m.duration, m.retries, m.overruns, m.queueDepth, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("cron: register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) submitted(r SubmitResult) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(r)).Inc()
}

func (m *Metrics) ran(o Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(o)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) overran() {
	if m == nil {
		return
	}
	m.overruns.Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) setInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}
