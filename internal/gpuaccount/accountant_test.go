package gpuaccount

import (
	"fmt"
	"testing"
)

func TestRegisterAndUnregisterConservesTotal(t *testing.T) {
	a := New(Config{MaxGPUMemoryBytes: 1 << 30, EnableWarnings: true})

	a.Register("cam-1", 100*1024*1024, 4)
	a.Register("cam-2", 200*1024*1024, 8)
	a.Register("cam-3", 50*1024*1024, 2)

	want := uint64(350 * 1024 * 1024)
	if got := a.Stats().TotalAllocatedBytes; got != want {
		t.Fatalf("got total=%d, want %d", got, want)
	}

	a.Unregister("cam-2")
	want -= 200 * 1024 * 1024
	if got := a.Stats().TotalAllocatedBytes; got != want {
		t.Fatalf("after unregister: got total=%d, want %d", got, want)
	}

	if _, ok := a.Stats().PerCameraMemoryBytes["cam-2"]; ok {
		t.Error("cam-2 should be gone from per-camera map after unregister")
	}
}

func TestUpdateReplacesNotAdds(t *testing.T) {
	a := New(Config{MaxGPUMemoryBytes: 1 << 30})
	a.Register("cam-1", 100*1024*1024, 4)
	a.Update("cam-1", 300*1024*1024, 12) // e.g. quality bumped to fullscreen

	stats := a.Stats()
	if stats.TotalAllocatedBytes != 300*1024*1024 {
		t.Errorf("got total=%d, want 300MB (replaced, not summed)", stats.TotalAllocatedBytes)
	}
	if stats.PerCameraSurfaceCount["cam-1"] != 12 {
		t.Errorf("got surface count=%d, want 12", stats.PerCameraSurfaceCount["cam-1"])
	}
}

func TestPeakTracksHighWaterMark(t *testing.T) {
	a := New(Config{MaxGPUMemoryBytes: 1 << 30})
	a.Register("cam-1", 500*1024*1024, 10)
	a.Unregister("cam-1")
	a.Register("cam-2", 100*1024*1024, 2)

	if got := a.Stats().PeakAllocatedBytes; got != 500*1024*1024 {
		t.Errorf("got peak=%d, want peak to remain at prior high water mark 500MB", got)
	}
	if got := a.Stats().TotalAllocatedBytes; got != 100*1024*1024 {
		t.Errorf("got total=%d, want 100MB after cam-1 left", got)
	}
}

func TestWouldExceedLimit(t *testing.T) {
	a := New(Config{MaxGPUMemoryBytes: 1000})
	a.Register("cam-1", 900, 1)

	if !a.WouldExceedLimit(200) {
		t.Error("900+200 > 1000, expected WouldExceedLimit=true")
	}
	if a.WouldExceedLimit(50) {
		t.Error("900+50 <= 1000, expected WouldExceedLimit=false")
	}
}

func TestAvailableUnboundedWhenNoLimit(t *testing.T) {
	a := New(Config{MaxGPUMemoryBytes: 0})
	a.Register("cam-1", 1<<40, 1)
	if a.Available() == 0 {
		t.Error("zero limit should mean unbounded availability")
	}
}

func TestAvailableNeverNegative(t *testing.T) {
	a := New(Config{MaxGPUMemoryBytes: 1000})
	a.Register("cam-1", 1500, 1) // over limit already (e.g. from a racing registration)
	if got := a.Available(); got != 0 {
		t.Errorf("got available=%d, want 0 when already over limit", got)
	}
}

func TestConservationAcrossManyRegistrations(t *testing.T) {
	a := New(Config{MaxGPUMemoryBytes: 1 << 40})
	var want uint64
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("cam-%d", i)
		bytes := uint64(i+1) * 1024 * 1024
		a.Register(id, bytes, i+1)
		want += bytes
	}
	if got := a.Stats().TotalAllocatedBytes; got != want {
		t.Errorf("got total=%d, want %d", got, want)
	}
	for i := 0; i < 50; i += 2 {
		a.Unregister(fmt.Sprintf("cam-%d", i))
		want -= uint64(i+1) * 1024 * 1024
	}
	if got := a.Stats().TotalAllocatedBytes; got != want {
		t.Errorf("after partial unregister: got total=%d, want %d", got, want)
	}
}
