package handlers

import (
	"context"
	"time"

	"media-cdn/internal/metrics"
	"media-cdn/internal/pipeline"
	"media-cdn/internal/streaming"
)

// Service is the derivative pipeline as seen by the HTTP layer.
type Service interface {
	Get(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Burst(ctx context.Context, keys []string) (int, error)
	ClearScratch() (int64, error)
	Ready() bool
	GetStats() metrics.Stats
}

type Handlers struct {
	svc       Service
	stream    streaming.WriterConfig
	startTime time.Time
}

func New(svc Service) *Handlers {
	return &Handlers{
		svc:       svc,
		stream:    streaming.DefaultWriterConfig(),
		startTime: time.Now(),
	}
}
