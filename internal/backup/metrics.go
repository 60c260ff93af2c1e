package backup

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes backup counters. A nil *Metrics records nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
	pruneFailures prometheus.Counter
	artifacts     prometheus.Gauge
}

// NewMetrics creates the backup collectors and registers them on reg. A nil
// reg skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "backup",
			Name:      "runs_total",
			Help:      "Backup runs by result.",
		}, []string{"result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "daybook",
			Subsystem: "backup",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful backup.",
		}),
		pruneFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "daybook",
			Subsystem: "backup",
			Name:      "prune_failures_total",
			Help:      "Old artifacts that could not be removed.",
		}),
		artifacts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "daybook",
			Subsystem: "backup",
			Name:      "artifacts",
			Help:      "Artifacts currently retained.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.runs, m.lastSuccess, m.pruneFailures, m.artifacts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("backup: register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observe(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.runs.WithLabelValues("error").Inc()
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.lastSuccess.Set(float64(time.Now().Unix()))
}

func (m *Metrics) pruneFailed() {
	if m == nil {
		return
	}
	m.pruneFailures.Inc()
}

func (m *Metrics) setArtifacts(n int) {
	if m == nil {
		return
	}
	m.artifacts.Set(float64(n))
}
