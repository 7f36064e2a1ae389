// Package gpuaccount tracks GPU memory consumption across all active
// camera decoders from one place and warns when utilization crosses its
// threshold. WouldExceedLimit and Available report headroom against the
// configured limit; the coordinator does not consult them before starting
// a camera. Actual allocation and freeing happens inside each decoder's own
// surface pool; this package only tallies what they report.
package gpuaccount

import (
	"log/slog"
	"sync"
)

// Config bounds the total VRAM this process is allowed to claim.
type Config struct {
	MaxGPUMemoryBytes uint64
	EnableWarnings    bool
}

// Stats is a snapshot of current GPU memory accounting.
type Stats struct {
	TotalAllocatedBytes   uint64
	PeakAllocatedBytes    uint64
	TotalSurfaceCount     int
	PerCameraMemoryBytes  map[string]uint64
	PerCameraSurfaceCount map[string]int
	UtilizationPercent    float64
}

// utilizationWarnThreshold is the fraction of MaxGPUMemoryBytes above which
// Update logs a warning once per crossing.
const utilizationWarnThreshold = 0.9

// Accountant is the process-wide GPU memory ledger. One instance is shared
// by every camera session's decoder.
type Accountant struct {
	cfg Config

	mu               sync.Mutex
	perCameraBytes   map[string]uint64
	perCameraSurface map[string]int
	total            uint64
	peak             uint64
	warned           bool
}

// New creates an Accountant bounded by cfg.MaxGPUMemoryBytes.
func New(cfg Config) *Accountant {
	return &Accountant{
		cfg:              cfg,
		perCameraBytes:   make(map[string]uint64),
		perCameraSurface: make(map[string]int),
	}
}

// Register records a camera's initial GPU allocation. Call once per camera
// when its decoder is created.
func (a *Accountant) Register(cameraID string, bytes uint64, surfaceCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(cameraID, bytes, surfaceCount)
}

// Update replaces a camera's GPU allocation, called when a quality change
// resizes its decoder's surface pool.
func (a *Accountant) Update(cameraID string, bytes uint64, surfaceCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(cameraID, bytes, surfaceCount)
}

func (a *Accountant) setLocked(cameraID string, bytes uint64, surfaceCount int) {
	a.total -= a.perCameraBytes[cameraID]
	a.total += bytes
	a.perCameraBytes[cameraID] = bytes
	a.perCameraSurface[cameraID] = surfaceCount

	if a.total > a.peak {
		a.peak = a.total
	}
	a.checkLimitsLocked()
}

// Unregister removes a camera's allocation entirely, called when its
// decoder is closed.
func (a *Accountant) Unregister(cameraID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total -= a.perCameraBytes[cameraID]
	delete(a.perCameraBytes, cameraID)
	delete(a.perCameraSurface, cameraID)
	if a.total <= uint64(float64(a.cfg.MaxGPUMemoryBytes)*utilizationWarnThreshold) {
		a.warned = false
	}
}

func (a *Accountant) checkLimitsLocked() {
	if !a.cfg.EnableWarnings || a.cfg.MaxGPUMemoryBytes == 0 {
		return
	}
	utilization := float64(a.total) / float64(a.cfg.MaxGPUMemoryBytes)
	if utilization >= utilizationWarnThreshold && !a.warned {
		a.warned = true
		slog.Warn("gpuaccount: GPU memory utilization above threshold",
			"utilization_percent", utilization*100,
			"total_bytes", a.total,
			"limit_bytes", a.cfg.MaxGPUMemoryBytes,
		)
	}
}

// WouldExceedLimit reports whether adding additionalBytes would push total
// usage past the configured limit. A zero limit means no cap.
func (a *Accountant) WouldExceedLimit(additionalBytes uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.MaxGPUMemoryBytes == 0 {
		return false
	}
	return a.total+additionalBytes > a.cfg.MaxGPUMemoryBytes
}

// Available returns the remaining byte budget before hitting the limit. A
// zero limit is reported as the max uint64 value (unbounded).
func (a *Accountant) Available() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.MaxGPUMemoryBytes == 0 {
		return ^uint64(0)
	}
	if a.total >= a.cfg.MaxGPUMemoryBytes {
		return 0
	}
	return a.cfg.MaxGPUMemoryBytes - a.total
}

// Stats returns a snapshot of current allocation across all cameras.
func (a *Accountant) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	perBytes := make(map[string]uint64, len(a.perCameraBytes))
	perSurfaces := make(map[string]int, len(a.perCameraSurface))
	surfaceTotal := 0
	for k, v := range a.perCameraBytes {
		perBytes[k] = v
	}
	for k, v := range a.perCameraSurface {
		perSurfaces[k] = v
		surfaceTotal += v
	}

	utilization := 0.0
	if a.cfg.MaxGPUMemoryBytes > 0 {
		utilization = float64(a.total) / float64(a.cfg.MaxGPUMemoryBytes) * 100
	}

	return Stats{
		TotalAllocatedBytes:   a.total,
		PeakAllocatedBytes:    a.peak,
		TotalSurfaceCount:     surfaceTotal,
		PerCameraMemoryBytes:  perBytes,
		PerCameraSurfaceCount: perSurfaces,
		UtilizationPercent:    utilization,
	}
}
