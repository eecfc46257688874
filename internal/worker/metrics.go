package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	tasksTotal        *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	activeTasks       prometheus.Gauge
	reconciledTotal   prometheus.Counter
	derivedBytesTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaforge_worker_tasks_total",
			Help: "Total worker tasks by type and final status.",
		}, []string{"type", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediaforge_worker_task_duration_seconds",
			Help:    "Total processing duration for each worker task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type", "status"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediaforge_worker_active_tasks",
			Help: "Current number of active tasks in the worker.",
		}),
		reconciledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaforge_worker_assets_reconciled_total",
			Help: "Total orphaned remote objects reconciled into the metadata store.",
		}),
		derivedBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaforge_worker_derived_bytes_total",
			Help: "Total bytes observed across probed derived renditions.",
		}),
	}

	registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.activeTasks,
		m.reconciledTotal,
		m.derivedBytesTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
