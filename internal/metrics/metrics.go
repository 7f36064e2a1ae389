// Package metrics exposes the coordinator's aggregate statistics as
// Prometheus gauges, polled on scrape rather than pushed, since every
// value already lives behind the coordinator's own locking and there is
// no benefit to duplicating it into a second set of counters here.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxvision/ingest/internal/coordinator"
)

// Metrics wraps a Prometheus registry whose gauges read straight through
// to a Coordinator's GlobalStats on every scrape.
type Metrics struct {
	registry *prometheus.Registry
}

// New builds and registers every gauge against coord. coord must outlive
// the returned Metrics.
func New(coord *coordinator.Coordinator) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerPrometheusMetrics(coord)
	return m
}

func (m *Metrics) registerPrometheusMetrics(coord *coordinator.Coordinator) {
	stats := func() coordinator.GlobalStats { return coord.GlobalStats() }

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_cameras_total",
			Help: "Total registered cameras.",
		},
		func() float64 { return float64(stats().TotalCameras) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_cameras_active",
			Help: "Cameras currently running and decoding.",
		},
		func() float64 { return float64(stats().ActiveCameras) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_cameras_error",
			Help: "Cameras currently in the error state.",
		},
		func() float64 { return float64(stats().ErrorCameras) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_cameras_reconnecting",
			Help: "Cameras currently attempting to reconnect.",
		},
		func() float64 { return float64(stats().ReconnectingCameras) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_average_fps",
			Help: "Average decode FPS across active cameras.",
		},
		func() float64 { return stats().AvgFPS },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_frames_dropped_total",
			Help: "Total packets dropped across all cameras due to a full queue.",
		},
		func() float64 { return float64(stats().TotalDroppedFrames) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_frames_decoded_total",
			Help: "Total frames successfully decoded across all cameras.",
		},
		func() float64 { return float64(stats().TotalDecodedFrames) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_gpu_memory_bytes",
			Help: "Current tracked GPU memory allocation in bytes.",
		},
		func() float64 { return float64(stats().GPU.TotalAllocatedBytes) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_gpu_memory_peak_bytes",
			Help: "High-water-mark GPU memory allocation in bytes.",
		},
		func() float64 { return float64(stats().GPU.PeakAllocatedBytes) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_gpu_memory_utilization_percent",
			Help: "GPU memory utilization as a percentage of the configured limit.",
		},
		func() float64 { return stats().GPU.UtilizationPercent },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "ingest_gpu_surfaces_total",
			Help: "Total decode surfaces currently allocated across all cameras.",
		},
		func() float64 { return float64(stats().GPU.TotalSurfaceCount) },
	))
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer builds an *http.Server serving /metrics on addr. The caller
// is responsible for calling Serve and Shutdown.
func NewServer(addr string, m *Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

// Serve starts server in a background goroutine.
func Serve(server *http.Server) {
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics: server failed", "addr", server.Addr, "error", err)
		}
	}()
}
