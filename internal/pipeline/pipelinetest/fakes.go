// Package pipelinetest provides in-memory collaborators for pipeline.Service.
package pipelinetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"media-cdn/internal/media"
	"media-cdn/internal/origin"
	"media-cdn/internal/transcoder"
)

// PNG is a minimal payload that sniffs as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR fake image body")

// Origins is a fixed id to key mapping.
type Origins struct {
	mu       sync.Mutex
	Mapping  map[string]string
	Err      error
	Resolves atomic.Int32
}

// NewOrigins returns Origins serving m.
func NewOrigins(m map[string]string) *Origins {
	return &Origins{Mapping: m}
}

// Resolve implements pipeline.Origins.
func (o *Origins) Resolve(_ context.Context, id string) (string, error) {
	o.Resolves.Add(1)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return "", o.Err
	}
	key, ok := o.Mapping[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", origin.ErrNotFound, id)
	}
	return key, nil
}

// Ready implements pipeline.Origins.
func (o *Origins) Ready() bool { return o.Err == nil }

// Size implements pipeline.Origins.
func (o *Origins) Size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Mapping)
}

// Fetcher serves origin objects from memory.
type Fetcher struct {
	Objects   map[string][]byte
	Fetches   atomic.Int32
	Downloads atomic.Int32
}

// NewFetcher returns a Fetcher serving objects.
func NewFetcher(objects map[string][]byte) *Fetcher {
	return &Fetcher{Objects: objects}
}

// Fetch implements pipeline.Fetcher.
func (f *Fetcher) Fetch(_ context.Context, key string) ([]byte, error) {
	f.Fetches.Add(1)
	data, ok := f.Objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", origin.ErrNotFound, key)
	}
	return data, nil
}

// Download implements pipeline.Fetcher.
func (f *Fetcher) Download(_ context.Context, key, dest string) error {
	f.Downloads.Add(1)
	data, ok := f.Objects[key]
	if !ok {
		return fmt.Errorf("%w: %s", origin.ErrNotFound, key)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// Engine is a media.Engine that returns Output, optionally holding each call
// until Release is closed.
type Engine struct {
	Output  []byte
	Err     error
	Release chan struct{}
	Calls   atomic.Int32
}

// Name implements media.Engine.
func (e *Engine) Name() string { return "fake" }

// Transform implements media.Engine.
func (e *Engine) Transform(ctx context.Context, _ []byte, _ media.Options) ([]byte, error) {
	e.Calls.Add(1)
	if e.Release != nil {
		select {
		case <-e.Release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Output, nil
}

// Frames returns a fixed poster frame.
type Frames struct {
	Frame   []byte
	Offsets []time.Duration
	mu      sync.Mutex
}

// ExtractFrame implements pipeline.Frames.
func (f *Frames) ExtractFrame(_ context.Context, _ string, offset time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Offsets = append(f.Offsets, offset)
	return f.Frame, nil
}

// Transcoder writes Output to each job's output path without running ffmpeg,
// optionally holding each job until Release is closed.
type Transcoder struct {
	Dir     string
	Output  []byte
	Outcome transcoder.Outcome
	Err     error
	Release chan struct{}

	mu        sync.Mutex
	Jobs      []transcoder.Job
	AudioJobs []transcoder.AudioJob
}

// Transcode implements pipeline.Transcoder.
func (t *Transcoder) Transcode(ctx context.Context, job transcoder.Job) (transcoder.Outcome, error) {
	t.mu.Lock()
	t.Jobs = append(t.Jobs, job)
	t.mu.Unlock()
	return t.finish(ctx, job.Output)
}

// TranscodeAudio implements pipeline.Transcoder.
func (t *Transcoder) TranscodeAudio(ctx context.Context, job transcoder.AudioJob) (transcoder.Outcome, error) {
	t.mu.Lock()
	t.AudioJobs = append(t.AudioJobs, job)
	t.mu.Unlock()
	return t.finish(ctx, job.Output)
}

func (t *Transcoder) finish(ctx context.Context, output string) (transcoder.Outcome, error) {
	if t.Release != nil {
		select {
		case <-t.Release:
		case <-ctx.Done():
			return transcoder.Outcome{}, ctx.Err()
		}
	}
	if t.Err != nil {
		return transcoder.Outcome{}, t.Err
	}
	if t.Outcome.Status == transcoder.StatusRejected {
		return t.Outcome, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return transcoder.Outcome{}, err
	}
	if err := os.WriteFile(output, t.Output, 0o644); err != nil {
		return transcoder.Outcome{}, err
	}
	return transcoder.Outcome{Status: transcoder.StatusFulfilled, Preset: "fake"}, nil
}

// Calls returns the number of video and audio jobs run.
func (t *Transcoder) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Jobs) + len(t.AudioJobs)
}

// ScratchDir implements pipeline.Transcoder.
func (t *Transcoder) ScratchDir() string { return t.Dir }

// ClearCache implements pipeline.Transcoder.
func (t *Transcoder) ClearCache() (int64, error) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		return 0, nil
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(t.Dir, e.Name())); err != nil {
			return 0, err
		}
	}
	return int64(len(entries)), nil
}
