package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PostsGauge           = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "veille_posts", Help: "Posts in the store by status"}, []string{"status"})
	StatusUpdates        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "veille_status_updates_total", Help: "Status updates applied by the publish server"}, []string{"status"})
	DuePostsGauge        = prometheus.NewGauge(prometheus.GaugeOpts{Name: "veille_due_posts", Help: "Posts due at the last tick"})
	ImageRequests        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "veille_image_requests_total", Help: "Image proxy requests by outcome"}, []string{"outcome"})
	PollCycles           = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "veille_poll_cycles_total", Help: "Coordinator poll cycles by outcome"}, []string{"outcome"})
	FlowResults          = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "veille_flow_results_total", Help: "Publish and schedule flows by action and outcome"}, []string{"action", "outcome"})
	FlowDuration         = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "veille_flow_duration_seconds", Help: "Duration of page automation flows", Buckets: []float64{1, 5, 10, 20, 30, 60, 120}}, []string{"action"})
	CoordinatorConnected = prometheus.NewGauge(prometheus.GaugeOpts{Name: "veille_coordinator_connected", Help: "1 when the last poll reached the publish server"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PostsGauge,
			StatusUpdates,
			DuePostsGauge,
			ImageRequests,
			PollCycles,
			FlowResults,
			FlowDuration,
			CoordinatorConnected,
		)
	})
	return promhttp.Handler()
}
