package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
instance_id: host-01
cameras:
  - id: cam-1
    main_url: rtsp://cam1.local/main
    sub_url: rtsp://cam1.local/sub
    quality: focused
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Cameras) != 1 {
		t.Fatalf("got %d cameras, want 1", len(cfg.Cameras))
	}
	if cfg.Cameras[0].PacketQueueSize != 64 {
		t.Errorf("got queue size=%d, want default 64", cfg.Cameras[0].PacketQueueSize)
	}
	if cfg.Pools.NetworkWorkers != 8 || cfg.Pools.DecodeWorkers != 4 {
		t.Errorf("got pool defaults %d/%d, want 8/4", cfg.Pools.NetworkWorkers, cfg.Pools.DecodeWorkers)
	}
}

func TestLoadRejectsMissingInstanceID(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - id: cam-1
    main_url: rtsp://cam1.local/main
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing instance_id")
	}
}

func TestLoadRejectsDuplicateCameraIDs(t *testing.T) {
	path := writeTempConfig(t, `
instance_id: host-01
cameras:
  - id: cam-1
    main_url: rtsp://cam1.local/main
  - id: cam-1
    main_url: rtsp://cam2.local/main
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate camera id")
	}
}

func TestLoadRejectsUnknownCodec(t *testing.T) {
	path := writeTempConfig(t, `
instance_id: host-01
cameras:
  - id: cam-1
    main_url: rtsp://cam1.local/main
    codec: mpeg2
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported codec")
	}
}

func TestLoadAppliesDefaultQualityAndCodec(t *testing.T) {
	path := writeTempConfig(t, `
instance_id: host-01
cameras:
  - id: cam-1
    main_url: rtsp://cam1.local/main
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cameras[0].Quality != "grid_view" {
		t.Errorf("got quality=%q, want default grid_view", cfg.Cameras[0].Quality)
	}
	if cfg.Cameras[0].Codec != "h264" {
		t.Errorf("got codec=%q, want default h264", cfg.Cameras[0].Codec)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
