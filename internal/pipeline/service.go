package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"media-cdn/internal/cache"
	"media-cdn/internal/cachekey"
	"media-cdn/internal/logging"
	"media-cdn/internal/media"
	"media-cdn/internal/mediatypes"
	"media-cdn/internal/metrics"
	"media-cdn/internal/modifiers"
	"media-cdn/internal/scheduler"
	"media-cdn/internal/transcoder"
)

var (
	// ErrBadRequest covers malformed routes: unknown kind or missing id.
	ErrBadRequest = errors.New("bad request")
	// ErrSourceMismatch means the origin cannot produce the requested kind,
	// e.g. a video derivative of a still image.
	ErrSourceMismatch = errors.New("origin type does not match requested kind")
	// ErrScratchBusy means a job is using the scratch directory.
	ErrScratchBusy = errors.New("scratch directory in use")
)

// Cache is the tiered derivative cache.
type Cache interface {
	Lookup(ctx context.Context, key string) (*cache.Object, error)
	WriteThrough(entry *cache.Entry)
	Remove(ctx context.Context, key string) error
}

// Origins resolves media ids to origin keys.
type Origins interface {
	Resolve(ctx context.Context, id string) (string, error)
	Ready() bool
	Size() int
}

// Fetcher reads origin objects.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Download(ctx context.Context, key, dest string) error
}

// Frames extracts poster frames from video files.
type Frames interface {
	ExtractFrame(ctx context.Context, videoPath string, offset time.Duration) ([]byte, error)
}

// Transcoder encodes video and audio derivatives.
type Transcoder interface {
	Transcode(ctx context.Context, job transcoder.Job) (transcoder.Outcome, error)
	TranscodeAudio(ctx context.Context, job transcoder.AudioJob) (transcoder.Outcome, error)
	ScratchDir() string
	ClearCache() (int64, error)
}

// Pressure holds back new transforms under memory pressure.
// *memory.Monitor satisfies it.
type Pressure interface {
	Wait(ctx context.Context) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Cache      Cache
	Origins    Origins
	Fetcher    Fetcher
	Engine     media.Engine
	Frames     Frames
	Transcoder Transcoder
	Scheduler  *scheduler.Scheduler
	// Usage reports local tier usage for metrics; optional.
	Usage func() (int, int64, error)
	// Memory gates the start of each transform; optional.
	Memory Pressure
}

// Config tunes a Service.
type Config struct {
	ImageConcurrency int
	VideoConcurrency int
	AudioConcurrency int
	// DefaultDevice applies when a request has no device modifier.
	DefaultDevice transcoder.Device
	// VideoQuality and AudioQuality apply when a request has no quality modifier.
	VideoQuality int
	AudioQuality int
}

// DefaultConfig runs one transform per kind at a time on the CPU.
func DefaultConfig() Config {
	return Config{
		ImageConcurrency: 1,
		VideoConcurrency: 1,
		AudioConcurrency: 1,
		DefaultDevice:    transcoder.DeviceCPU,
		VideoQuality:     60,
		AudioQuality:     60,
	}
}

// Request is an inbound derivative request.
type Request struct {
	Kind    string
	Args    string
	MediaID string
	Accept  string
}

// Result is a derivative ready to serve. Callers must close Object.Body.
type Result struct {
	Object    *cache.Object
	Key       string
	Kind      mediatypes.Kind
	Modifiers modifiers.Set
}

// Service answers derivative requests from cache or by scheduling a
// transform.
type Service struct {
	deps    Deps
	config  Config
	staging singleflight.Group

	// Held shared from staging until the encoder output is collected;
	// ClearScratch needs it exclusively.
	scratch sync.RWMutex
}

// New creates a Service and registers its transform kinds on deps.Scheduler.
func New(deps Deps, config Config) *Service {
	if config.DefaultDevice == "" {
		config.DefaultDevice = transcoder.DeviceCPU
	}

	s := &Service{deps: deps, config: config}
	deps.Scheduler.Register(string(mediatypes.KindImage), config.ImageConcurrency, s.task(s.produceImage))
	deps.Scheduler.Register(string(mediatypes.KindVideo), config.VideoConcurrency, s.task(s.produceVideo))
	deps.Scheduler.Register(string(mediatypes.KindAudio), config.AudioConcurrency, s.task(s.produceAudio))
	return s
}

// Get returns the derivative for req, producing it on a cache miss.
func (s *Service) Get(ctx context.Context, req Request) (*Result, error) {
	kind, ok := mediatypes.ParseKind(req.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadRequest, req.Kind)
	}
	if strings.TrimSpace(req.MediaID) == "" {
		return nil, fmt.Errorf("%w: missing media id", ErrBadRequest)
	}

	set := modifiers.Parse(req.Args).Resolve(string(kind), req.Accept)
	if kind == mediatypes.KindVideo {
		if _, err := s.encoderFor(set); err != nil {
			return nil, err
		}
	}

	key := cachekey.ForRequest(kind, req.MediaID, set)
	result := &Result{Key: key, Kind: kind, Modifiers: set}

	if obj, err := s.deps.Cache.Lookup(ctx, key); err == nil {
		result.Object = obj
		return result, nil
	}

	originKey, err := s.deps.Origins.Resolve(ctx, req.MediaID)
	if err != nil {
		return nil, err
	}

	entry, err := s.deps.Scheduler.Run(ctx, string(kind), scheduler.Payload{
		CacheKey:  key,
		Origin:    originKey,
		Modifiers: set,
	})
	if err != nil {
		return nil, err
	}

	result.Object = entry.Open("fresh")
	return result, nil
}

// task wraps a producer so that only fully produced entries are written
// through, once per job rather than once per waiter.
func (s *Service) task(produce func(ctx context.Context, p scheduler.Payload, set modifiers.Set) (*cache.Entry, error)) scheduler.Task {
	return func(ctx context.Context, p scheduler.Payload) (*cache.Entry, error) {
		if s.deps.Memory != nil {
			if err := s.deps.Memory.Wait(ctx); err != nil {
				return nil, err
			}
		}
		entry, err := produce(ctx, p, modifiers.Set(p.Modifiers))
		if err != nil {
			return nil, err
		}
		entry.Key = p.CacheKey
		s.deps.Cache.WriteThrough(entry)
		return entry, nil
	}
}

func (s *Service) produceImage(ctx context.Context, p scheduler.Payload, set modifiers.Set) (*cache.Entry, error) {
	var (
		src []byte
		err error
	)

	switch mediatypes.GetFileType(filepath.Ext(p.Origin)) {
	case mediatypes.FileTypeVideo:
		src, err = s.posterFrame(ctx, p.Origin, set)
	case mediatypes.FileTypeAudio:
		return nil, fmt.Errorf("%w: %s is audio", ErrSourceMismatch, p.Origin)
	default:
		src, err = s.deps.Fetcher.Fetch(ctx, p.Origin)
	}
	if err != nil {
		return nil, err
	}

	res, err := media.Transform(ctx, s.deps.Engine, src, media.OptionsFromSet(set))
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", p.Origin, err)
	}
	return &cache.Entry{ContentType: res.ContentType, Data: res.Data}, nil
}

func (s *Service) posterFrame(ctx context.Context, originKey string, set modifiers.Set) ([]byte, error) {
	s.scratch.RLock()
	defer s.scratch.RUnlock()

	source, err := s.stage(ctx, originKey)
	if err != nil {
		return nil, err
	}
	offset := media.DefaultFrameOffset
	if d, ok := media.ParseOffset(set.Get(modifiers.Time)); ok {
		offset = d
	}
	return s.deps.Frames.ExtractFrame(ctx, source, offset)
}

func (s *Service) produceVideo(ctx context.Context, p scheduler.Payload, set modifiers.Set) (*cache.Entry, error) {
	if mediatypes.GetFileType(filepath.Ext(p.Origin)) != mediatypes.FileTypeVideo {
		return nil, fmt.Errorf("%w: %s is not a video", ErrSourceMismatch, p.Origin)
	}
	enc, err := s.encoderFor(set)
	if err != nil {
		return nil, err
	}

	s.scratch.RLock()
	defer s.scratch.RUnlock()

	source, err := s.stage(ctx, p.Origin)
	if err != nil {
		return nil, err
	}

	job := transcoder.Job{
		Source:  source,
		Output:  s.outputPath(p.CacheKey),
		Codec:   enc.Codec(),
		Device:  enc.Device(),
		Quality: s.quality(set, s.config.VideoQuality),
	}
	job.Target.Width, _ = set.Int(modifiers.Width)
	job.Target.Height, _ = set.Int(modifiers.Height)

	outcome, err := s.deps.Transcoder.Transcode(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := outcome.Err(); err != nil {
		return nil, err
	}

	data, err := s.collect(job.Output)
	if err != nil {
		return nil, err
	}
	contentType := mediatypes.VideoContentType(set.Get(modifiers.Format), string(enc.Codec()))
	return &cache.Entry{ContentType: contentType, Data: data}, nil
}

func (s *Service) produceAudio(ctx context.Context, p scheduler.Payload, set modifiers.Set) (*cache.Entry, error) {
	switch mediatypes.GetFileType(filepath.Ext(p.Origin)) {
	case mediatypes.FileTypeAudio, mediatypes.FileTypeVideo:
	default:
		return nil, fmt.Errorf("%w: %s has no audio", ErrSourceMismatch, p.Origin)
	}

	s.scratch.RLock()
	defer s.scratch.RUnlock()

	source, err := s.stage(ctx, p.Origin)
	if err != nil {
		return nil, err
	}

	job := transcoder.AudioJob{
		Source:  source,
		Output:  s.outputPath(p.CacheKey),
		Quality: s.quality(set, s.config.AudioQuality),
	}
	outcome, err := s.deps.Transcoder.TranscodeAudio(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := outcome.Err(); err != nil {
		return nil, err
	}

	data, err := s.collect(job.Output)
	if err != nil {
		return nil, err
	}
	return &cache.Entry{ContentType: mediatypes.AudioContentType(set.Get(modifiers.Format)), Data: data}, nil
}

// encoderFor validates the codec and device of a resolved video set. It runs
// before any origin access so unsupported combinations fail fast.
func (s *Service) encoderFor(set modifiers.Set) (transcoder.Encoder, error) {
	device := s.config.DefaultDevice
	if !set.IsAuto(modifiers.Device) {
		d, err := transcoder.ParseDevice(set.Get(modifiers.Device))
		if err != nil {
			return nil, err
		}
		device = d
	}
	return transcoder.LookupEncoder(transcoder.Codec(strings.ToLower(set.Get(modifiers.Codec))), device)
}

func (s *Service) quality(set modifiers.Set, fallback int) int {
	if q, ok := set.Int(modifiers.Quality); ok {
		return q
	}
	return fallback
}

// stage downloads an origin object into scratch/sources once. Concurrent
// jobs for the same source share a single download.
func (s *Service) stage(ctx context.Context, originKey string) (string, error) {
	dest := filepath.Join(s.deps.Transcoder.ScratchDir(), "sources", scratchName(originKey))

	_, err, _ := s.staging.Do(dest, func() (interface{}, error) {
		if _, err := os.Stat(dest); err == nil {
			logging.Debug("Reusing staged source %s", dest)
			return nil, nil
		}
		start := time.Now()
		if err := s.deps.Fetcher.Download(ctx, originKey, dest); err != nil {
			return nil, err
		}
		logging.Info("Staged source %s in %v", originKey, time.Since(start).Round(time.Millisecond))
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (s *Service) outputPath(key string) string {
	return filepath.Join(s.deps.Transcoder.ScratchDir(), "out", scratchName(key))
}

// collect reads encoder output into memory and removes the scratch file.
func (s *Service) collect(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read encoder output: %w", err)
	}
	if err := os.Remove(path); err != nil {
		logging.Warn("failed to remove encoder output %s: %v", path, err)
	}
	return data, nil
}

func scratchName(key string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
}

// Burst removes keys from every cache tier and returns how many were
// removed. Keys that are not valid cache keys are rejected before any
// removal happens.
func (s *Service) Burst(ctx context.Context, keys []string) (int, error) {
	for _, key := range keys {
		if err := cachekey.Validate(key); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}

	removed := 0
	var errs []error
	for _, key := range keys {
		if err := s.deps.Cache.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		logging.Info("Cache burst: %s", key)
		removed++
	}
	return removed, errors.Join(errs...)
}

// ClearScratch removes staged sources and leftover encoder output. It
// refuses with ErrScratchBusy while any job is staging or encoding.
func (s *Service) ClearScratch() (int64, error) {
	if !s.scratch.TryLock() {
		logging.Warn("Scratch clear skipped: jobs in progress")
		return 0, ErrScratchBusy
	}
	defer s.scratch.Unlock()
	return s.deps.Transcoder.ClearCache()
}

// Ready reports whether origin lookups can be answered.
func (s *Service) Ready() bool {
	return s.deps.Origins.Ready()
}

// GetStats implements metrics.StatsProvider.
func (s *Service) GetStats() metrics.Stats {
	stats := metrics.Stats{OriginMappings: s.deps.Origins.Size()}
	if s.deps.Usage != nil {
		entries, size, err := s.deps.Usage()
		if err != nil {
			logging.Warn("Failed to measure local cache: %v", err)
		}
		stats.LocalEntries = entries
		stats.LocalBytes = size
	}
	return stats
}
