//go:build linux

package workerpool

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

func affinitySupported() bool {
	return true
}

// applyAffinity pins the calling worker goroutine's OS thread to CPU
// workerID modulo the host's CPU count. The caller must already hold the
// OS thread via runtime.LockOSThread.
func applyAffinity(workerID int) {
	n := runtime.NumCPU()
	if n == 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(workerID % n)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		slog.Warn("workerpool: failed to set CPU affinity", "worker", workerID, "error", err)
	}
}
