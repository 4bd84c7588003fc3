package solverapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are registered on a registry owned by the Service so several
// services (tests) can coexist in one process.
type metrics struct {
	registry  *prometheus.Registry
	submitted prometheus.Counter
	rejected  *prometheus.CounterVec
	finished  *prometheus.CounterVec
	duration  prometheus.Histogram
	queued    prometheus.GaugeFunc
}

func newMetrics(queueDepth func() float64) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "turnstile",
			Name:      "tasks_submitted_total",
			Help:      "Solve tasks accepted into the queue.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnstile",
			Name:      "tasks_rejected_total",
			Help:      "Solve requests turned away, by reason.",
		}, []string{"reason"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnstile",
			Name:      "tasks_finished_total",
			Help:      "Finished solve tasks, by outcome (solved, exhausted, failed).",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "turnstile",
			Name:      "solve_elapsed_seconds",
			Help:      "Elapsed time reported by completed solves.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13},
		}),
		queued: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "turnstile",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker.",
		}, queueDepth),
	}
	m.registry.MustRegister(m.submitted, m.rejected, m.finished, m.duration, m.queued)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
