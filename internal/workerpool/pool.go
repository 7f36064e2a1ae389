// Package workerpool provides fixed-size goroutine pools for the two
// CPU/GPU-bound stages of the ingest pipeline: receiving RTSP traffic and
// decoding bitstreams. Both pools give each camera a consistent worker
// assignment rather than load-balancing work across all workers, so a
// decode worker's persistent GPU context handle is always reused by the
// same set of cameras.
package workerpool

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of one pool's throughput.
type Stats struct {
	TasksSubmitted     uint64
	TasksCompleted     uint64
	TasksInQueue       int
	PerWorkerTaskCount []uint64
}

// workerQueue is one worker's private FIFO task queue, woken by
// sync.Cond.Signal the way a single-slot mailbox is, generalized here to
// hold more than one pending task since a camera assigned to a worker may
// submit faster than the worker drains.
type workerQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	processed atomic.Uint64
}

func newWorkerQueue() *workerQueue {
	q := &workerQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *workerQueue) push(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
}

func (q *workerQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *workerQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// run drains tasks until the queue is closed and empty. It is the body of
// one worker goroutine.
func (q *workerQueue) run(workerID int, affinity bool) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if affinity {
		applyAffinity(workerID)
	}

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
		q.processed.Add(1)
	}
}

// Pool is a fixed number of worker goroutines, each with its own task
// queue. Callers route work to a specific worker index rather than letting
// the pool load-balance, since both the network and decode pools need a
// camera pinned to the same worker for the lifetime of its connection.
type Pool struct {
	name    string
	workers []*workerQueue
	wg      sync.WaitGroup
	running atomic.Bool

	submitted atomic.Uint64
}

// Config describes a pool's size and whether workers should try to pin
// themselves to a CPU core.
type Config struct {
	NumWorkers     int
	Name           string
	EnableAffinity bool
}

// New starts cfg.NumWorkers worker goroutines immediately.
func New(cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	p := &Pool{
		name:    cfg.Name,
		workers: make([]*workerQueue, cfg.NumWorkers),
	}
	p.running.Store(true)

	if cfg.EnableAffinity && !affinitySupported() {
		slog.Warn("workerpool: CPU affinity requested but unsupported on this host", "pool", cfg.Name)
	}

	for i := range p.workers {
		p.workers[i] = newWorkerQueue()
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.workers[id].run(id, cfg.EnableAffinity)
		}(i)
	}
	return p
}

// NumWorkers returns the pool's fixed worker count.
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// Name returns the pool's configured name, used in log lines to tell the
// network pool and decode pool apart.
func (p *Pool) Name() string {
	return p.name
}

// Submit enqueues task on the given worker's queue. It returns an error if
// the pool has been shut down.
func (p *Pool) Submit(workerIndex int, task func()) error {
	if !p.running.Load() {
		return errPoolStopped
	}
	p.workers[workerIndex%len(p.workers)].push(task)
	p.submitted.Add(1)
	return nil
}

// Shutdown stops accepting new work and closes every worker queue. If
// waitForTasks is true it blocks until all queued tasks have drained;
// otherwise queued-but-not-started tasks are discarded.
func (p *Pool) Shutdown(waitForTasks bool) {
	p.running.Store(false)
	for _, w := range p.workers {
		if !waitForTasks {
			w.mu.Lock()
			w.tasks = nil
			w.mu.Unlock()
		}
		w.close()
	}
	p.wg.Wait()
}

// IsRunning reports whether the pool still accepts submissions.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Stats returns a snapshot of pool throughput.
func (p *Pool) Stats() Stats {
	perWorker := make([]uint64, len(p.workers))
	queued := 0
	var completed uint64
	for i, w := range p.workers {
		perWorker[i] = w.processed.Load()
		completed += perWorker[i]
		queued += w.len()
	}
	return Stats{
		TasksSubmitted:     p.submitted.Load(),
		TasksCompleted:     completed,
		TasksInQueue:       queued,
		PerWorkerTaskCount: perWorker,
	}
}

// runUntilCancel is a helper for long-lived per-camera loops submitted to
// a pool worker: it runs fn until ctx is cancelled, then returns, letting
// the worker pick up its next queued task.
func runUntilCancel(ctx context.Context, fn func(ctx context.Context)) func() {
	return func() { fn(ctx) }
}
