// Package metrics exposes Prometheus instrumentation for traces.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/selimozcann/WhereGoes/internal/trace"
)

// Metrics implements trace.Recorder.
type Metrics struct {
	hops        *prometheus.CounterVec
	hopDuration prometheus.Histogram
	traces      *prometheus.CounterVec
	chainLength prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wheregoes",
			Name:      "hops_total",
			Help:      "Resolved hops by status class.",
		}, []string{"class"}),
		hopDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wheregoes",
			Name:      "hop_duration_seconds",
			Help:      "Round-trip time of a single HEAD request.",
			Buckets:   prometheus.DefBuckets,
		}),
		traces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wheregoes",
			Name:      "traces_total",
			Help:      "Finished traces by terminal reason.",
		}, []string{"reason"}),
		chainLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wheregoes",
			Name:      "chain_length",
			Help:      "Number of hops recorded per trace.",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		}),
	}
	reg.MustRegister(m.hops, m.hopDuration, m.traces, m.chainLength)
	return m
}

// StatusClass maps 301 to "3xx" and anything unexpected to "other".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

func (m *Metrics) ObserveHop(status int, took time.Duration) {
	m.hops.WithLabelValues(StatusClass(status)).Inc()
	m.hopDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveTrace(reason trace.Reason, hops int) {
	m.traces.WithLabelValues(string(reason)).Inc()
	m.chainLength.Observe(float64(hops))
}
