package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fluxvision/ingest/internal/coordinator"
)

func TestCheckIsHealthyWithNoCameras(t *testing.T) {
	coord := coordinator.New(coordinator.Config{NetworkWorkers: 1, DecodeWorkers: 1})
	defer coord.Shutdown()

	c := New(coord)
	status := c.Check()
	if status.Status != "healthy" {
		t.Errorf("got status=%q, want healthy with zero cameras", status.Status)
	}
}

func TestLivenessHandlerAlwaysReturns200(t *testing.T) {
	coord := coordinator.New(coordinator.Config{NetworkWorkers: 1, DecodeWorkers: 1})
	defer coord.Shutdown()

	c := New(coord)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c.LivenessHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status=%d, want 200", rec.Code)
	}
}

func TestReadinessHandlerReturns200WhenHealthy(t *testing.T) {
	coord := coordinator.New(coordinator.Config{NetworkWorkers: 1, DecodeWorkers: 1})
	defer coord.Shutdown()

	c := New(coord)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	c.ReadinessHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status=%d, want 200", rec.Code)
	}
}

func TestNewServerRegistersBothEndpoints(t *testing.T) {
	coord := coordinator.New(coordinator.Config{NetworkWorkers: 1, DecodeWorkers: 1})
	defer coord.Shutdown()

	server := NewServer(":0", New(coord))
	if server.Addr != ":0" {
		t.Errorf("got addr=%q, want :0", server.Addr)
	}
	if server.Handler == nil {
		t.Fatal("expected a handler to be set")
	}
}
