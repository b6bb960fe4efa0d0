package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"media-cdn/internal/database"
	"media-cdn/internal/handlers"
	"media-cdn/internal/memory"
	"media-cdn/internal/metrics"
	"media-cdn/internal/middleware"
	"media-cdn/internal/objectstore"
	"media-cdn/internal/origin"
	"media-cdn/internal/pipeline"
	"media-cdn/internal/scheduler"
	"media-cdn/internal/startup"
	"media-cdn/internal/transcoder"
	"media-cdn/internal/workers"
)

type stubService struct {
	ready bool
}

func (s *stubService) Get(context.Context, pipeline.Request) (*pipeline.Result, error) {
	return nil, origin.ErrNotFound
}

func (s *stubService) Burst(context.Context, []string) (int, error) { return 0, nil }

func (s *stubService) ClearScratch() (int64, error) { return 0, nil }

func (s *stubService) Ready() bool { return s.ready }

func (s *stubService) GetStats() metrics.Stats { return metrics.Stats{} }

func TestRemoteTier(t *testing.T) {
	if tier := remoteTier(&startup.Config{}); tier != nil {
		t.Errorf("remoteTier() = %v, want nil interface when unconfigured", tier)
	}
	if bucket := remoteBucket(&startup.Config{}); bucket != "" {
		t.Errorf("remoteBucket() = %q, want empty", bucket)
	}

	config := &startup.Config{RemoteCache: objectstore.Config{
		Endpoint: "https://r2.example.com",
		Bucket:   "derivatives",
	}}
	if tier := remoteTier(config); tier == nil {
		t.Error("remoteTier() = nil, want R2 tier")
	}
	if bucket := remoteBucket(config); bucket != "derivatives" {
		t.Errorf("remoteBucket() = %q", bucket)
	}
}

func TestNewOrigins(t *testing.T) {
	t.Run("disabled without origin bucket", func(t *testing.T) {
		origins, fetcher, resolver := newOrigins(&startup.Config{}, nil)
		if resolver != nil {
			t.Error("expected no resolver")
		}
		if _, ok := origins.(origin.Disabled); !ok {
			t.Errorf("origins = %T, want origin.Disabled", origins)
		}
		if _, ok := fetcher.(origin.Disabled); !ok {
			t.Errorf("fetcher = %T, want origin.Disabled", fetcher)
		}
		if _, err := origins.Resolve(context.Background(), "photo1"); !errors.Is(err, origin.ErrUnavailable) {
			t.Errorf("Resolve = %v, want ErrUnavailable", err)
		}
	})

	t.Run("resolver with origin bucket", func(t *testing.T) {
		config := &startup.Config{
			Origin: objectstore.Config{
				Endpoint: "https://origin.example.com",
				Bucket:   "sources",
			},
			OriginMaxAge:          time.Minute,
			OriginRefreshInterval: time.Minute,
		}
		origins, fetcher, resolver := newOrigins(config, nil)
		if resolver == nil {
			t.Fatal("expected a resolver")
		}
		if origins != pipeline.Origins(resolver) {
			t.Error("origins should be the resolver")
		}
		if _, ok := fetcher.(*origin.Bucket); !ok {
			t.Errorf("fetcher = %T, want *origin.Bucket", fetcher)
		}
	})
}

func TestSelectEngineImaging(t *testing.T) {
	engine, fallback := selectEngine(startup.EngineImaging)
	if engine.Name() != "imaging" {
		t.Errorf("engine = %s, want imaging", engine.Name())
	}
	if fallback {
		t.Error("explicit imaging selection is not a fallback")
	}
}

func TestBuildHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		ready      bool
		wantStatus int
	}{
		{"liveness", http.MethodGet, "/livez", true, http.StatusOK},
		{"ready", http.MethodGet, "/readyz", true, http.StatusOK},
		{"not ready", http.MethodGet, "/readyz", false, http.StatusServiceUnavailable},
		{"burst wrong method", http.MethodGet, "/api/cache/burst", true, http.StatusMethodNotAllowed},
		{"unknown media", http.MethodGet, "/media/image/w_100/missing", true, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(handlers.New(&stubService{ready: tt.ready}))
			handler := buildHandler(router, false)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("expected a request id on every response")
			}
		})
	}
}

func TestAppShutdown(t *testing.T) {
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "media-cdn.db"))
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}

	a := &app{
		server:     &http.Server{Handler: http.NotFoundHandler()},
		scheduler:  scheduler.New(),
		pool:       workers.NewPool(1, 1),
		collector:  metrics.NewCollector(&stubService{}, time.Hour),
		monitor:    memory.NewMonitor(memory.DefaultConfig()),
		transcoder: transcoder.New(transcoder.NewExecRunner(), transcoder.Config{ScratchDir: t.TempDir()}),
		db:         db,
	}
	a.collector.Start()
	a.monitor.Start()

	done := make(chan struct{})
	go func() {
		a.shutdown(5 * time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}
