package config

import (
	"testing"

	"github.com/fluxvision/ingest/internal/decoder"
	"github.com/fluxvision/ingest/internal/nal"
)

func TestToSessionConfigConvertsQualityAndCodec(t *testing.T) {
	cam := CameraConfig{
		ID:              "cam-1",
		MainURL:         "rtsp://cam1/main",
		Quality:         "fullscreen",
		Codec:           "h265",
		PacketQueueSize: 32,
		MaxWidth:        1280,
		MaxHeight:       720,
	}

	sessionCfg, err := cam.ToSessionConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessionCfg.Quality != decoder.QualityFullscreen {
		t.Errorf("got quality=%v, want QualityFullscreen", sessionCfg.Quality)
	}
	if sessionCfg.Codec != nal.CodecH265 {
		t.Errorf("got codec=%v, want CodecH265", sessionCfg.Codec)
	}
	if sessionCfg.ID != "cam-1" || sessionCfg.MainURL != "rtsp://cam1/main" {
		t.Errorf("got ID/MainURL not carried through correctly: %+v", sessionCfg)
	}
}

func TestToSessionConfigRejectsUnknownQuality(t *testing.T) {
	cam := CameraConfig{ID: "cam-1", MainURL: "rtsp://cam1/main", Quality: "ultra-hd", Codec: "h264"}
	if _, err := cam.ToSessionConfig(); err == nil {
		t.Fatal("expected error for unknown quality")
	}
}

func TestToCoordinatorConfigConvertsGPUMegabytesToBytes(t *testing.T) {
	cfg := Config{GPU: GPUConfig{MaxMemoryMB: 512}}
	coordCfg := cfg.ToCoordinatorConfig()
	if coordCfg.GPU.MaxGPUMemoryBytes != 512*1024*1024 {
		t.Errorf("got %d bytes, want 512MiB in bytes", coordCfg.GPU.MaxGPUMemoryBytes)
	}
}
