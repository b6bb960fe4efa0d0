package transcoder

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-cdn/internal/logging"
	"media-cdn/internal/metrics"
)

// Status is the outcome of one encoder run.
type Status string

// Outcome statuses.
const (
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

// Outcome describes a finished encode. A rejected outcome means this
// particular transcode failed (non-zero exit, frame count failure); it is not
// a fatal error for the process.
type Outcome struct {
	Status Status
	Preset string
	Reason string
}

// Err returns a *RejectedError for rejected outcomes and nil otherwise.
func (o Outcome) Err() error {
	if o.Status != StatusRejected {
		return nil
	}
	return &RejectedError{Preset: o.Preset, Reason: o.Reason}
}

// RejectedError carries the reason an encode was rejected.
type RejectedError struct {
	Preset string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transcode %s rejected: %s", e.Preset, e.Reason)
}

// Config holds transcoder settings.
type Config struct {
	// ScratchDir holds staged sources and encoder output.
	ScratchDir string
	// FFmpegPath and FFprobePath default to the binaries on PATH.
	FFmpegPath  string
	FFprobePath string
	// ProgressInterval is how often progress is sampled. Defaults to 1s.
	ProgressInterval time.Duration
}

// Transcoder runs ffmpeg encodes through a Runner.
type Transcoder struct {
	runner     Runner
	ffmpeg     string
	ffprobe    string
	scratchDir string
	interval   time.Duration

	observerMu sync.RWMutex
	observer   Observer
}

// New creates a Transcoder.
func New(runner Runner, cfg Config) *Transcoder {
	t := &Transcoder{
		runner:     runner,
		ffmpeg:     cfg.FFmpegPath,
		ffprobe:    cfg.FFprobePath,
		scratchDir: cfg.ScratchDir,
		interval:   cfg.ProgressInterval,
	}
	if t.ffmpeg == "" {
		t.ffmpeg = "ffmpeg"
	}
	if t.ffprobe == "" {
		t.ffprobe = "ffprobe"
	}
	if t.interval <= 0 {
		t.interval = time.Second
	}
	return t
}

// SetObserver installs a progress observer.
func (t *Transcoder) SetObserver(o Observer) {
	t.observerMu.Lock()
	defer t.observerMu.Unlock()
	t.observer = o
}

func (t *Transcoder) notify(p Progress) {
	t.observerMu.RLock()
	o := t.observer
	t.observerMu.RUnlock()
	if o != nil {
		o(p)
	}
}

// ScratchDir returns the scratch directory.
func (t *Transcoder) ScratchDir() string {
	return t.scratchDir
}

// Job is one video transcode.
type Job struct {
	Source string
	// Output's extension selects the container.
	Output string
	// Target is the output frame. Zero fields keep the source dimension,
	// one zero field follows the source aspect ratio.
	Target  Dimensions
	Codec   Codec
	Quality int
	Device  Device
}

// Transcode encodes job.Source into job.Output.
//
// An unsupported codec/device/container combination returns ErrUnsupported
// without starting any subprocess. A failure to probe the source is returned
// as an error. Everything after that, including a non-zero encoder exit,
// yields a rejected Outcome.
func (t *Transcoder) Transcode(ctx context.Context, job Job) (Outcome, error) {
	enc, err := LookupEncoder(job.Codec, job.Device)
	if err != nil {
		metrics.TranscodesTotal.WithLabelValues(string(job.Codec), string(job.Device), "unsupported").Inc()
		return Outcome{}, err
	}
	container := strings.TrimPrefix(strings.ToLower(filepath.Ext(job.Output)), ".")
	if !supportsContainer(enc, container) {
		metrics.TranscodesTotal.WithLabelValues(string(job.Codec), string(job.Device), "unsupported").Inc()
		return Outcome{}, fmt.Errorf("%w: %s cannot be muxed into %q", ErrUnsupported, job.Codec, container)
	}

	in, err := t.Probe(ctx, job.Source)
	if err != nil {
		return Outcome{}, err
	}
	out := targetDimensions(in, job.Target)
	preset := presetName(job.Codec, out)
	name := filepath.Base(job.Source)

	logging.Info("Conversion started %s to %s (%s, quality %d)", name, preset, job.Device, job.Quality)
	t.notify(Progress{Name: name, Status: "start-" + preset, ETA: math.Inf(1)})

	start := time.Now()
	outcome := t.encode(ctx, job, enc, in, out, preset, name)
	metrics.TranscodeDuration.WithLabelValues(string(job.Codec)).Observe(time.Since(start).Seconds())
	metrics.TranscodesTotal.WithLabelValues(string(job.Codec), string(job.Device), string(outcome.Status)).Inc()

	if outcome.Status == StatusRejected {
		logging.Error("Conversion rejected %s to %s: %s", name, preset, outcome.Reason)
		return outcome, nil
	}

	logging.Info("Conversion complete %s to %s in %v", name, preset, time.Since(start).Round(time.Millisecond))
	t.notify(Progress{Name: name, Status: "complete-" + preset, Completion: 100})
	return outcome, nil
}

func (t *Transcoder) encode(ctx context.Context, job Job, enc Encoder, in, out Dimensions, preset, name string) Outcome {
	reject := func(reason string) Outcome {
		return Outcome{Status: StatusRejected, Preset: preset, Reason: reason}
	}

	totalFrames, err := t.CountFrames(ctx, job.Source)
	if err != nil {
		return reject(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return reject(fmt.Sprintf("failed to create output directory: %v", err))
	}

	args := []string{"-y", "-nostats", "-progress", "pipe:1", "-i", job.Source}
	args = append(args, enc.Args(in, out, job.Quality)...)
	args = append(args, job.Output)

	progress := newProgressReader()
	stderr := &tailBuffer{max: 4096}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.sampleProgress(done, progress, totalFrames, name, preset, job.Codec)
	}()

	err = t.runner.Run(ctx, Command{Name: t.ffmpeg, Args: args, Stdout: progress, Stderr: stderr})
	close(done)
	wg.Wait()

	if err != nil {
		if rmErr := os.Remove(job.Output); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("failed to remove partial output %s: %v", job.Output, rmErr)
		}
		reason := err.Error()
		if msg := stderr.String(); msg != "" {
			reason += ": " + lastLine(msg)
		}
		return reject(reason)
	}
	return Outcome{Status: StatusFulfilled, Preset: preset}
}

func (t *Transcoder) sampleProgress(done <-chan struct{}, progress *progressReader, totalFrames int, name, preset string, codec Codec) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p, ok := progress.sample(totalFrames)
			if !ok {
				continue
			}
			p.Name = name
			p.Status = "process-" + preset
			metrics.TranscodeFPS.WithLabelValues(string(codec)).Set(p.FPS)
			logging.Debug("Transcode %s: %.2f%% at %.1f fps, eta %.0fs", preset, p.Completion, p.FPS, p.ETA)
			t.notify(p)
		}
	}
}

// targetDimensions resolves the requested frame against the source and
// forces even dimensions.
func targetDimensions(in, want Dimensions) Dimensions {
	w, h := want.Width, want.Height
	switch {
	case w <= 0 && h <= 0:
		w, h = in.Width, in.Height
	case w <= 0:
		w = in.Width * h / max(in.Height, 1)
	case h <= 0:
		h = in.Height * w / max(in.Width, 1)
	}
	return Dimensions{Width: even(w), Height: even(h)}
}

func even(n int) int {
	return max(2, n&^1)
}

func presetName(codec Codec, out Dimensions) string {
	orientation := "landscape"
	if out.Width < out.Height {
		orientation = "portrait"
	}
	return fmt.Sprintf("%s-%dp-%s", codec, out.Height, orientation)
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// Cleanup stops all active encoder processes when the runner tracks them.
func (t *Transcoder) Cleanup() {
	if c, ok := t.runner.(interface{ Cleanup() }); ok {
		c.Cleanup()
	}
}

// ClearCache removes all staged sources and encoder output and returns the
// number of bytes freed.
func (t *Transcoder) ClearCache() (int64, error) {
	if t.scratchDir == "" {
		return 0, nil
	}

	var freedBytes int64

	entries, err := os.ReadDir(t.scratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read transcode scratch directory: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(t.scratchDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logging.Warn("failed to get info for %s: %v", path, err)
			continue
		}

		if entry.IsDir() {
			dirSize, _ := getDirSize(path)
			if err := os.RemoveAll(path); err != nil {
				logging.Warn("failed to remove directory %s: %v", path, err)
				continue
			}
			freedBytes += dirSize
		} else {
			if err := os.Remove(path); err != nil {
				logging.Warn("failed to remove file %s: %v", path, err)
				continue
			}
			freedBytes += info.Size()
		}
	}

	logging.Info("Cleared transcode scratch: freed %d bytes", freedBytes)
	return freedBytes, nil
}

func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
