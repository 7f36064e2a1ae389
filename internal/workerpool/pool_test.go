package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTaskOnAssignedWorker(t *testing.T) {
	p := New(Config{NumWorkers: 2, Name: "test"})
	defer p.Shutdown(true)

	done := make(chan struct{})
	if err := p.Submit(0, func() { close(done) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestSubmitPreservesFIFOOrderPerWorker(t *testing.T) {
	p := New(Config{NumWorkers: 1, Name: "test"})
	defer p.Shutdown(true)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		p.Submit(0, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("got order %v, want strictly increasing", order)
		}
	}
}

func TestSubmitAfterShutdownReturnsError(t *testing.T) {
	p := New(Config{NumWorkers: 1, Name: "test"})
	p.Shutdown(true)

	if err := p.Submit(0, func() {}); err == nil {
		t.Error("expected error submitting to a shut-down pool")
	}
}

func TestShutdownWaitsForQueuedTasks(t *testing.T) {
	p := New(Config{NumWorkers: 1, Name: "test"})

	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		p.Submit(0, func() {
			time.Sleep(time.Millisecond)
			completed.Add(1)
		})
	}
	p.Shutdown(true)

	if got := completed.Load(); got != 10 {
		t.Errorf("got completed=%d, want all 10 tasks to finish before Shutdown(true) returns", got)
	}
}

func TestStatsReflectsSubmittedAndCompleted(t *testing.T) {
	p := New(Config{NumWorkers: 3, Name: "test"})

	var wg sync.WaitGroup
	wg.Add(6)
	for i := 0; i < 6; i++ {
		p.Submit(i%3, func() { wg.Done() })
	}
	wg.Wait()
	p.Shutdown(true)

	stats := p.Stats()
	if stats.TasksSubmitted != 6 {
		t.Errorf("got submitted=%d, want 6", stats.TasksSubmitted)
	}
	if stats.TasksCompleted != 6 {
		t.Errorf("got completed=%d, want 6", stats.TasksCompleted)
	}
	if len(stats.PerWorkerTaskCount) != 3 {
		t.Errorf("got %d per-worker entries, want 3", len(stats.PerWorkerTaskCount))
	}
}

func TestSubmitWorkerIndexWrapsModulo(t *testing.T) {
	p := New(Config{NumWorkers: 2, Name: "test"})
	defer p.Shutdown(true)

	done := make(chan struct{})
	if err := p.Submit(5, func() { close(done) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task submitted to out-of-range index (mod-wrapped) never ran")
	}
}
