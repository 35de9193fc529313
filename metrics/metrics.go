// Package metrics exposes the controller's Prometheus instrumentation:
// topology stability, flow installation counts, path computation latency
// per policy, and port-statistics sample volume.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the controller reports. It wraps a private
// prometheus.Registerer so multiple Registry instances (e.g. in tests)
// don't collide on the global default registry.
type Registry struct {
	reg *prometheus.Registry

	GraphStable            prometheus.Gauge
	FlowsInstalledTotal     prometheus.Counter
	PathComputeDuration     *prometheus.HistogramVec
	PortStatsSamplesTotal   prometheus.Counter
}

// New creates a Registry with every metric registered against a fresh
// prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		GraphStable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sdnctl",
			Name:      "graph_stable",
			Help:      "1 when the discovered topology has been quiescent for the configured dwell time, 0 otherwise.",
		}),

		FlowsInstalledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sdnctl",
			Name:      "flows_installed_total",
			Help:      "Total number of bidirectional flow segments installed by the flow installer.",
		}),

		PathComputeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sdnctl",
			Name:      "path_compute_duration_seconds",
			Help:      "Time spent computing a path, partitioned by routing policy.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"policy"}),

		PortStatsSamplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sdnctl",
			Name:      "port_stats_samples_total",
			Help:      "Total number of per-port statistics samples ingested.",
		}),
	}
}

// Handler returns the HTTP handler that serves the registry in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SetGraphStable records the current stability state as 0/1.
func (r *Registry) SetGraphStable(stable bool) {
	if stable {
		r.GraphStable.Set(1)
	} else {
		r.GraphStable.Set(0)
	}
}
