package workerpool

import (
	"context"
	"sync"
)

// GPUContext is the handle a decode worker holds for its lifetime,
// standing in for a persistent hardware decode context (e.g. a VA-API
// display or CUDA context) that is expensive to create and is reused
// across every camera assigned to that worker, rather than created per
// decode call.
type GPUContext struct {
	WorkerID int
	DeviceID int
}

// DecodePool is the fixed set of decode workers. Unlike NetworkPool, each
// worker owns one GPUContext for its entire lifetime and every camera
// assigned to that worker decodes against the same context, so VA-API
// surface pools and device handles stay pinned to one goroutine.
type DecodePool struct {
	pool     *Pool
	contexts []GPUContext

	mu         sync.Mutex
	assignment map[string]int
	next       int
}

// DecodeConfig adds the GPU device a decode pool's workers should bind to.
type DecodeConfig struct {
	Config
	DeviceID int
}

// NewDecodePool starts cfg.NumWorkers decode workers, each pre-assigned a
// GPUContext bound to cfg.DeviceID.
func NewDecodePool(cfg DecodeConfig) *DecodePool {
	if cfg.Name == "" {
		cfg.Name = "decode"
	}
	pool := New(cfg.Config)
	p := &DecodePool{
		pool:       pool,
		contexts:   make([]GPUContext, pool.NumWorkers()),
		assignment: make(map[string]int),
	}
	if p.pool.NumWorkers() == 0 {
		return p
	}
	for i := range p.contexts {
		p.contexts[i] = GPUContext{WorkerID: i, DeviceID: cfg.DeviceID}
	}
	return p
}

// reserve pins cameraID to a worker round-robin, or returns its existing
// assignment if one was already made, and returns that worker's index and
// persistent GPUContext.
func (p *DecodePool) reserve(cameraID string) (int, GPUContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.assignment[cameraID]; ok {
		return w, p.contexts[w]
	}
	w := p.next
	p.next = (p.next + 1) % p.pool.NumWorkers()
	p.assignment[cameraID] = w
	return w, p.contexts[w]
}

// ReserveWorker pins cameraID to a worker round-robin (idempotent if
// already assigned) and returns that worker's persistent GPUContext,
// without submitting any task. Callers use this to build a camera's
// decoder against the exact GPUContext its decode loop will later run
// under, before that decode loop is ever assigned.
func (p *DecodePool) ReserveWorker(cameraID string) GPUContext {
	_, gpu := p.reserve(cameraID)
	return gpu
}

// AssignCamera runs fn on cameraID's assigned worker, passing that
// worker's persistent GPUContext, until ctx is cancelled. If cameraID was
// not already pinned via ReserveWorker, AssignCamera pins it now.
func (p *DecodePool) AssignCamera(ctx context.Context, cameraID string, fn func(ctx context.Context, gpu GPUContext)) error {
	worker, gpu := p.reserve(cameraID)

	return p.pool.Submit(worker, runUntilCancel(ctx, func(ctx context.Context) {
		fn(ctx, gpu)
	}))
}

// WorkerFor reports which worker index owns cameraID, or -1 if unassigned.
func (p *DecodePool) WorkerFor(cameraID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.assignment[cameraID]; ok {
		return w
	}
	return -1
}

// Release forgets a camera's worker assignment.
func (p *DecodePool) Release(cameraID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assignment, cameraID)
}

// Stats returns the underlying pool's throughput snapshot, where
// PerWorkerTaskCount doubles as each worker's decode task count.
func (p *DecodePool) Stats() Stats {
	return p.pool.Stats()
}

// Shutdown stops every decode worker.
func (p *DecodePool) Shutdown(waitForTasks bool) {
	p.pool.Shutdown(waitForTasks)
}
