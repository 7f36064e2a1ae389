package workerpool

import (
	"context"
	"testing"
	"time"
)

func TestAssignCameraGetsAssignedWorkersGPUContext(t *testing.T) {
	p := NewDecodePool(DecodeConfig{Config: Config{NumWorkers: 2, Name: "decode-test"}, DeviceID: 7})
	defer p.Shutdown(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gotGPU := make(chan GPUContext, 1)
	p.AssignCamera(ctx, "cam-1", func(ctx context.Context, gpu GPUContext) {
		gotGPU <- gpu
		<-ctx.Done()
	})

	select {
	case gpu := <-gotGPU:
		if gpu.DeviceID != 7 {
			t.Errorf("got DeviceID=%d, want 7", gpu.DeviceID)
		}
		if gpu.WorkerID != p.WorkerFor("cam-1") {
			t.Errorf("got GPUContext.WorkerID=%d, want match with assigned worker %d", gpu.WorkerID, p.WorkerFor("cam-1"))
		}
	case <-time.After(time.Second):
		t.Fatal("decode task never ran")
	}
}

func TestCamerasOnSameWorkerShareGPUContext(t *testing.T) {
	p := NewDecodePool(DecodeConfig{Config: Config{NumWorkers: 1, Name: "decode-test"}})
	defer p.Shutdown(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan GPUContext, 2)
	p.AssignCamera(ctx, "cam-1", func(ctx context.Context, gpu GPUContext) {
		results <- gpu
		<-ctx.Done()
	})
	p.AssignCamera(ctx, "cam-2", func(ctx context.Context, gpu GPUContext) {
		results <- gpu
		<-ctx.Done()
	})

	first := <-results
	second := <-results
	if first.WorkerID != second.WorkerID {
		t.Errorf("both cameras assigned to the only worker should share a GPUContext: got %d and %d", first.WorkerID, second.WorkerID)
	}
}

func TestNewDecodePoolWithZeroWorkersDoesNotPanic(t *testing.T) {
	p := NewDecodePool(DecodeConfig{Config: Config{NumWorkers: 0, Name: "decode-test"}})
	defer p.Shutdown(false)
	if p.pool.NumWorkers() == 0 {
		t.Error("expected NumWorkers default to kick in")
	}
}
