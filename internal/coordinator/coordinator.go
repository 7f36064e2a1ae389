// Package coordinator is the multi-camera entry point: it owns the
// network and decode worker pools, the GPU memory accountant, and the
// registry of camera sessions, and fans every decoded frame out through
// one process-wide callback. A failure in one camera's connection or
// decode path never propagates to another camera's entry in the
// registry.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fluxvision/ingest/internal/camerasession"
	"github.com/fluxvision/ingest/internal/decoder"
	"github.com/fluxvision/ingest/internal/gpuaccount"
	"github.com/fluxvision/ingest/internal/workerpool"
)

// FrameCallback receives every decoded frame across every camera.
type FrameCallback func(cameraID string, frame *decoder.Frame)

// Config sizes the worker pools and the GPU memory ledger shared by every
// camera this coordinator manages.
type Config struct {
	NetworkWorkers int
	DecodeWorkers  int
	GPUDeviceID    int
	GPU            gpuaccount.Config
	EnableAffinity bool
}

type cameraEntry struct {
	session *camerasession.Session
	cancel  context.CancelFunc
}

// Coordinator manages every active camera in the process.
type Coordinator struct {
	cfg         Config
	networkPool *workerpool.NetworkPool
	decodePool  *workerpool.DecodePool
	gpu         *gpuaccount.Accountant

	mu      sync.RWMutex
	cameras map[string]*cameraEntry

	callbackMu sync.Mutex
	onFrame    FrameCallback

	initialized bool
	running     bool
}

// GlobalStats aggregates every camera's health into one snapshot.
type GlobalStats struct {
	TotalCameras        int
	ActiveCameras       int
	ErrorCameras        int
	ReconnectingCameras int
	AvgFPS              float64
	TotalDroppedFrames  uint64
	TotalDecodedFrames  uint64
	GPU                 gpuaccount.Stats
}

// New builds worker pools and a GPU accountant sized by cfg, and marks
// the coordinator ready to accept cameras.
func New(cfg Config) *Coordinator {
	if cfg.NetworkWorkers <= 0 {
		cfg.NetworkWorkers = 8
	}
	if cfg.DecodeWorkers <= 0 {
		cfg.DecodeWorkers = 4
	}

	c := &Coordinator{
		cfg: cfg,
		networkPool: workerpool.NewNetworkPool(workerpool.Config{
			NumWorkers:     cfg.NetworkWorkers,
			Name:           "network",
			EnableAffinity: cfg.EnableAffinity,
		}),
		decodePool: workerpool.NewDecodePool(workerpool.DecodeConfig{
			Config: workerpool.Config{
				NumWorkers:     cfg.DecodeWorkers,
				Name:           "decode",
				EnableAffinity: cfg.EnableAffinity,
			},
			DeviceID: cfg.GPUDeviceID,
		}),
		gpu:         gpuaccount.New(cfg.GPU),
		cameras:     make(map[string]*cameraEntry),
		initialized: true,
		running:     true,
	}
	return c
}

// SetFrameCallback installs the single process-wide frame sink. It may be
// changed at any time; cameras already running simply start using the
// new callback on their next decoded frame.
func (c *Coordinator) SetFrameCallback(cb FrameCallback) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onFrame = cb
}

func (c *Coordinator) dispatchFrame(cameraID string, frame *decoder.Frame) {
	c.callbackMu.Lock()
	cb := c.onFrame
	c.callbackMu.Unlock()
	if cb != nil {
		cb(cameraID, frame)
	}
}

// AddCamera creates, starts, and registers a new camera session. It is an
// error to add a camera ID that is already registered.
func (c *Coordinator) AddCamera(ctx context.Context, cfg camerasession.Config) error {
	c.mu.Lock()
	if _, exists := c.cameras[cfg.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("coordinator: camera %q already exists", cfg.ID)
	}
	c.mu.Unlock()

	session, err := camerasession.New(cfg, c.dispatchFrame)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	// Reserve this camera's decode worker before building its decoder, so
	// the decoder's pipeline is constructed against the exact GPUContext
	// its decode loop will later run under, not a throwaway one.
	workerGPU := c.decodePool.ReserveWorker(cfg.ID)

	camCtx, cancel := context.WithCancel(ctx)
	if err := session.Start(camCtx, decoder.GPUContext{WorkerID: workerGPU.WorkerID, DeviceID: workerGPU.DeviceID}); err != nil {
		c.decodePool.Release(cfg.ID)
		cancel()
		return fmt.Errorf("coordinator: camera %q: %w", cfg.ID, err)
	}

	if err := c.networkPool.AssignCamera(camCtx, cfg.ID, session.Supervise); err != nil {
		c.decodePool.Release(cfg.ID)
		session.Stop()
		cancel()
		return fmt.Errorf("coordinator: camera %q: assign network worker: %w", cfg.ID, err)
	}
	if err := c.decodePool.AssignCamera(camCtx, cfg.ID, func(ctx context.Context, _ workerpool.GPUContext) {
		session.DecodeLoop(ctx)
	}); err != nil {
		c.networkPool.Release(cfg.ID)
		c.decodePool.Release(cfg.ID)
		session.Stop()
		cancel()
		return fmt.Errorf("coordinator: camera %q: assign decode worker: %w", cfg.ID, err)
	}

	if mem, ok := session.MemoryUsage(); ok {
		c.gpu.Register(cfg.ID, mem.GPUMemoryBytes, mem.SurfacePoolSize)
	}

	c.mu.Lock()
	c.cameras[cfg.ID] = &cameraEntry{session: session, cancel: cancel}
	c.mu.Unlock()

	slog.Info("coordinator: camera added", "camera", cfg.ID)
	return nil
}

// RemoveCamera stops and unregisters a camera. It is a no-op (returns an
// error) if the camera is not currently registered.
func (c *Coordinator) RemoveCamera(id string) error {
	c.mu.Lock()
	entry, ok := c.cameras[id]
	if ok {
		delete(c.cameras, id)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("coordinator: camera %q not found", id)
	}

	entry.cancel()
	entry.session.Stop()
	c.networkPool.Release(id)
	c.decodePool.Release(id)
	c.gpu.Unregister(id)

	slog.Info("coordinator: camera removed", "camera", id)
	return nil
}

// GetCamera returns the session for id, if registered.
func (c *Coordinator) GetCamera(id string) (*camerasession.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cameras[id]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// SetQuality changes one camera's decode quality. It is a no-op if the
// camera is not registered.
func (c *Coordinator) SetQuality(id string, q decoder.Quality) {
	c.mu.RLock()
	entry, ok := c.cameras[id]
	c.mu.RUnlock()
	if !ok {
		return
	}
	entry.session.SetQuality(q)
	if mem, ok := entry.session.MemoryUsage(); ok {
		c.gpu.Update(id, mem.GPUMemoryBytes, mem.SurfacePoolSize)
	}
}

// SetAllQuality applies q to every registered camera.
func (c *Coordinator) SetAllQuality(q decoder.Quality) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.cameras))
	for id := range c.cameras {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	for _, id := range ids {
		c.SetQuality(id, q)
	}
}

// StartAll restarts every camera currently in the Stopped state.
func (c *Coordinator) StartAll(ctx context.Context) {
	c.mu.RLock()
	entries := make([]*cameraEntry, 0, len(c.cameras))
	for _, e := range c.cameras {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		if e.session.GetState() != camerasession.StateStopped {
			continue
		}
		gpu := c.decodePool.ReserveWorker(e.session.ID())
		if err := e.session.Start(ctx, decoder.GPUContext{WorkerID: gpu.WorkerID, DeviceID: gpu.DeviceID}); err != nil {
			slog.Error("coordinator: StartAll failed to start camera", "camera", e.session.ID(), "error", err)
		}
	}
}

// StopAll stops every registered camera without removing it from the
// registry, so it can later be restarted with StartAll.
func (c *Coordinator) StopAll() {
	c.mu.RLock()
	entries := make([]*cameraEntry, 0, len(c.cameras))
	for _, e := range c.cameras {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		e.session.Stop()
	}
}

// ReconnectAll forces a reconnect attempt on every camera in the Error
// state, letting an operator trigger an immediate retry rather than
// waiting on Supervise's polling interval.
func (c *Coordinator) ReconnectAll(ctx context.Context) {
	c.mu.RLock()
	entries := make([]*cameraEntry, 0, len(c.cameras))
	for _, e := range c.cameras {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		if e.session.GetState() != camerasession.StateError {
			continue
		}
		if err := e.session.Reconnect(ctx); err != nil {
			slog.Error("coordinator: ReconnectAll failed", "camera", e.session.ID(), "error", err)
		}
	}
}

// GlobalStats aggregates every registered camera's stats, plus the GPU
// memory accountant's snapshot.
func (c *Coordinator) GlobalStats() GlobalStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := GlobalStats{TotalCameras: len(c.cameras)}
	var totalFPS float64

	for _, e := range c.cameras {
		camStats := e.session.GetStats()
		switch e.session.GetState() {
		case camerasession.StateRunning:
			stats.ActiveCameras++
			totalFPS += float64(camStats.CurrentFPS)
		case camerasession.StateError:
			stats.ErrorCameras++
		case camerasession.StateReconnecting:
			stats.ReconnectingCameras++
		}
		stats.TotalDroppedFrames += camStats.DroppedFrames
		stats.TotalDecodedFrames += camStats.DecodedFrames
	}

	if stats.ActiveCameras > 0 {
		stats.AvgFPS = totalFPS / float64(stats.ActiveCameras)
	}
	stats.GPU = c.gpu.Stats()
	return stats
}

// CameraIDs returns every registered camera ID.
func (c *Coordinator) CameraIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.cameras))
	for id := range c.cameras {
		ids = append(ids, id)
	}
	return ids
}

// CameraCount returns the number of registered cameras.
func (c *Coordinator) CameraCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cameras)
}

// IsInitialized reports whether New finished building the coordinator's
// pools and accountant.
func (c *Coordinator) IsInitialized() bool {
	return c.initialized
}

// Shutdown stops every camera, then the worker pools. Order matters:
// cameras must stop producing work before the pools that run that work
// are torn down.
func (c *Coordinator) Shutdown() {
	if !c.running {
		return
	}
	c.running = false

	c.mu.Lock()
	entries := make([]*cameraEntry, 0, len(c.cameras))
	for id, e := range c.cameras {
		entries = append(entries, e)
		delete(c.cameras, id)
	}
	c.mu.Unlock()

	for _, e := range entries {
		e.cancel()
		e.session.Stop()
	}

	c.networkPool.Shutdown(true)
	c.decodePool.Shutdown(true)

	slog.Info("coordinator: shutdown complete")
}
