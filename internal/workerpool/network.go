package workerpool

import (
	"context"
	"sync"
)

// NetworkPool is the fixed set of goroutines that own RTSP connection
// lifecycles. Each camera is assigned to exactly one worker round-robin,
// matching the original design's thread-per-camera-group receive model;
// each worker runs one task at a time on a goroutine locked to its own OS
// thread, whether or not affinity pinning is enabled.
type NetworkPool struct {
	pool *Pool

	mu         sync.Mutex
	assignment map[string]int
	next       int
}

// NewNetworkPool starts a pool of cfg.NumWorkers network workers.
func NewNetworkPool(cfg Config) *NetworkPool {
	if cfg.Name == "" {
		cfg.Name = "network"
	}
	return &NetworkPool{
		pool:       New(cfg),
		assignment: make(map[string]int),
	}
}

// AssignCamera pins cameraID to the next worker in round-robin order, or
// keeps the worker it is already pinned to, and runs fn on that worker
// until ctx is cancelled.
func (p *NetworkPool) AssignCamera(ctx context.Context, cameraID string, fn func(ctx context.Context)) error {
	p.mu.Lock()
	worker, ok := p.assignment[cameraID]
	if !ok {
		worker = p.next
		p.next = (p.next + 1) % p.pool.NumWorkers()
		p.assignment[cameraID] = worker
	}
	p.mu.Unlock()

	return p.pool.Submit(worker, runUntilCancel(ctx, fn))
}

// WorkerFor reports which worker index owns cameraID, or -1 if unassigned.
func (p *NetworkPool) WorkerFor(cameraID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.assignment[cameraID]; ok {
		return w
	}
	return -1
}

// Release forgets a camera's worker assignment. It does not cancel any
// in-flight task; the caller's ctx cancellation is what stops it.
func (p *NetworkPool) Release(cameraID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assignment, cameraID)
}

// Stats returns the underlying pool's throughput snapshot.
func (p *NetworkPool) Stats() Stats {
	return p.pool.Stats()
}

// Shutdown stops every network worker.
func (p *NetworkPool) Shutdown(waitForTasks bool) {
	p.pool.Shutdown(waitForTasks)
}
