// Package health serves liveness and readiness checks derived from the
// coordinator's camera registry. The metrics endpoint lives in
// internal/metrics instead of here, since this package only reports
// service-level health, not the full Prometheus surface.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fluxvision/ingest/internal/coordinator"
)

// Status is the readiness response body.
type Status struct {
	Status              string  `json:"status"` // healthy, degraded, unhealthy
	UptimeSeconds       int64   `json:"uptime_seconds"`
	CamerasTotal        int     `json:"cameras_total"`
	CamerasActive       int     `json:"cameras_active"`
	CamerasError        int     `json:"cameras_error"`
	CamerasReconnecting int     `json:"cameras_reconnecting"`
	AvgFPS              float64 `json:"avg_fps"`
}

// Checker derives Status from a Coordinator's current camera registry.
type Checker struct {
	coord   *coordinator.Coordinator
	started time.Time
}

// New creates a Checker whose uptime is measured from the call to New.
func New(coord *coordinator.Coordinator) *Checker {
	return &Checker{coord: coord, started: time.Now()}
}

// Check computes the current health status. A camera count of zero is
// still "healthy": a freshly started process with no cameras configured
// yet is not degraded.
func (c *Checker) Check() Status {
	stats := c.coord.GlobalStats()

	status := Status{
		UptimeSeconds:       int64(time.Since(c.started).Seconds()),
		CamerasTotal:        stats.TotalCameras,
		CamerasActive:       stats.ActiveCameras,
		CamerasError:        stats.ErrorCameras,
		CamerasReconnecting: stats.ReconnectingCameras,
		AvgFPS:              stats.AvgFPS,
	}

	switch {
	case !c.coord.IsInitialized():
		status.Status = "unhealthy"
	case stats.TotalCameras > 0 && stats.ErrorCameras == stats.TotalCameras:
		status.Status = "unhealthy"
	case stats.ErrorCameras > 0 || stats.ReconnectingCameras > 0:
		status.Status = "degraded"
	default:
		status.Status = "healthy"
	}
	return status
}

// LivenessHandler reports whether the process itself is alive, independent
// of whether any camera is currently connected.
func (c *Checker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(c.started).Seconds()),
	})
}

// ReadinessHandler reports the detailed camera-registry-derived status.
// It returns 503 only when every configured camera is in the error state
// or the coordinator never finished initializing.
func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status := c.Check()

	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// NewServer builds an *http.Server serving /healthz and /readyz on addr.
// The caller is responsible for calling ListenAndServe (typically in its
// own goroutine) and Shutdown.
func NewServer(addr string, checker *Checker) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.LivenessHandler)
	mux.HandleFunc("/readyz", checker.ReadinessHandler)

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Serve starts server and logs an error-level message if it ever exits for a
// reason other than a graceful Shutdown.
func Serve(server *http.Server) {
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health: server failed", "addr", server.Addr, "error", err)
		}
	}()
}
