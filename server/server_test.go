package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"refinery/metrics"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
	api := NewAPI(&fakePredicter{}, store, nil, nil, DefaultAPIConfig())
	return NewServer(DefaultServerConfig(), api, zap.NewNop())
}

func TestServer_HealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: %q", ct)
	}
}

func TestServer_RoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	paths := []string{"/api/predict", "/api/status", "/api/predictions", "/api/metrics", "/api/gpu"}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code == http.StatusNotFound && rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("route %s not registered", path)
		}
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: %d", rec.Code)
	}
}

func TestDefaultServerConfig(t *testing.T) {
	config := DefaultServerConfig()

	if config.Port != 5000 {
		t.Errorf("port: %d", config.Port)
	}
	if config.WriteTimeout < time.Minute {
		t.Errorf("write timeout too short for inference: %v", config.WriteTimeout)
	}
	if len(config.LogSkipPaths) == 0 {
		t.Error("expected default log skip paths")
	}
}

func TestServer_Addr(t *testing.T) {
	s := newTestServer(t)
	if s.Addr() != "localhost:5000" {
		t.Errorf("addr: %q", s.Addr())
	}
}
