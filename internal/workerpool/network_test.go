package workerpool

import (
	"context"
	"testing"
	"time"
)

func TestAssignCameraRoundRobinsAcrossWorkers(t *testing.T) {
	p := NewNetworkPool(Config{NumWorkers: 3, Name: "net-test"})
	defer p.Shutdown(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := map[int]bool{}
	for i := 0; i < 6; i++ {
		camID := string(rune('a' + i))
		p.AssignCamera(ctx, camID, func(ctx context.Context) { <-ctx.Done() })
		seen[p.WorkerFor(camID)] = true
	}

	if len(seen) != 3 {
		t.Errorf("got %d distinct workers used, want all 3 to appear in a 6-camera round robin", len(seen))
	}
}

func TestAssignCameraRunsUntilContextCancelled(t *testing.T) {
	p := NewNetworkPool(Config{NumWorkers: 1, Name: "net-test"})
	defer p.Shutdown(false)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	stopped := make(chan struct{})

	p.AssignCamera(ctx, "cam-1", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("assigned task never started")
	}

	select {
	case <-stopped:
		t.Fatal("task stopped before context was cancelled")
	case <-time.After(10 * time.Millisecond):
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("task did not stop after context cancellation")
	}
}

func TestReleaseForgetsAssignment(t *testing.T) {
	p := NewNetworkPool(Config{NumWorkers: 2, Name: "net-test"})
	defer p.Shutdown(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.AssignCamera(ctx, "cam-1", func(ctx context.Context) { <-ctx.Done() })
	p.Release("cam-1")

	if w := p.WorkerFor("cam-1"); w != -1 {
		t.Errorf("got worker=%d after Release, want -1", w)
	}
}
