package origin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"media-cdn/internal/logging"
	"media-cdn/internal/metrics"
)

var (
	// ErrNotFound means the media id is absent from the current mapping.
	ErrNotFound = errors.New("media not found")
	// ErrUnavailable means no mapping could be obtained from the origin.
	ErrUnavailable = errors.New("origin unavailable")
)

// Lister lists every key in the origin store.
type Lister interface {
	ListKeys(ctx context.Context) ([]string, error)
}

// Snapshots persists the mapping between restarts.
type Snapshots interface {
	SaveOriginMap(ctx context.Context, m map[string]string, refreshedAt time.Time) error
	LoadOriginMap(ctx context.Context) (map[string]string, time.Time, error)
}

// Config tunes the resolver.
type Config struct {
	// MaxAge is how long a mapping is fresh. Older mappings are still served
	// while a background refresh runs.
	MaxAge time.Duration
	// Schedule is a cron spec for periodic refreshes, e.g. "@every 7m".
	// Empty disables the schedule.
	Schedule string
	// RefreshTimeout bounds one listing.
	RefreshTimeout time.Duration
}

// DefaultConfig returns a ten minute max age refreshed every seven minutes.
func DefaultConfig() Config {
	return Config{
		MaxAge:         10 * time.Minute,
		Schedule:       "@every 7m",
		RefreshTimeout: 2 * time.Minute,
	}
}

// Resolver maps media ids to origin keys with stale-while-revalidate
// semantics: the last known mapping is always served, and requests only fail
// with ErrUnavailable if no mapping has ever been obtained.
type Resolver struct {
	lister    Lister
	snapshots Snapshots
	config    Config
	now       func() time.Time

	refresh      singleflight.Group
	revalidating atomic.Bool
	cron         *cron.Cron

	mu          sync.RWMutex
	mapping     map[string]string
	refreshedAt time.Time
	loaded      bool
}

// NewResolver creates a resolver. snapshots may be nil.
func NewResolver(lister Lister, snapshots Snapshots, config Config) *Resolver {
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultConfig().MaxAge
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = DefaultConfig().RefreshTimeout
	}
	return &Resolver{
		lister:    lister,
		snapshots: snapshots,
		config:    config,
		now:       time.Now,
	}
}

// Start restores the persisted snapshot, triggers a background refresh and
// starts the cron schedule.
func (r *Resolver) Start(ctx context.Context) error {
	if r.snapshots != nil {
		m, refreshedAt, err := r.snapshots.LoadOriginMap(ctx)
		switch {
		case err != nil:
			logging.Warn("Failed to load origin snapshot: %v", err)
		case len(m) > 0:
			r.swap(m, refreshedAt)
			logging.Info("Restored origin snapshot: %d mappings from %s", len(m), refreshedAt.Format(time.RFC3339))
		}
	}

	go r.refreshInBackground()

	if r.config.Schedule == "" {
		return nil
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.config.Schedule, r.refreshInBackground); err != nil {
		return fmt.Errorf("invalid origin refresh schedule %q: %w", r.config.Schedule, err)
	}
	r.cron.Start()
	logging.Info("Origin refresh scheduled: %s", r.config.Schedule)
	return nil
}

// Stop halts the cron schedule and waits for a running scheduled refresh.
func (r *Resolver) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// Resolve returns the origin key for id.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()

	if !loaded {
		if err := r.Refresh(ctx); err != nil {
			metrics.OriginResolutionsTotal.WithLabelValues("unavailable").Inc()
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	r.mu.RLock()
	key, ok := r.mapping[id]
	stale := r.now().Sub(r.refreshedAt) > r.config.MaxAge
	r.mu.RUnlock()

	if stale && r.revalidating.CompareAndSwap(false, true) {
		go func() {
			defer r.revalidating.Store(false)
			r.refreshInBackground()
		}()
	}

	if !ok {
		metrics.OriginResolutionsTotal.WithLabelValues("not_found").Inc()
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.OriginResolutionsTotal.WithLabelValues("found").Inc()
	return key, nil
}

// Refresh lists the origin and replaces the mapping. Concurrent calls share
// one listing.
func (r *Resolver) Refresh(ctx context.Context) error {
	ch := r.refresh.DoChan("refresh", func() (interface{}, error) {
		return nil, r.doRefresh()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Resolver) refreshInBackground() {
	if err := r.Refresh(context.Background()); err != nil {
		logging.Warn("Origin refresh failed, serving last known mapping: %v", err)
	}
}

func (r *Resolver) doRefresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.RefreshTimeout)
	defer cancel()

	logging.Debug("Syncing origin mapping")
	start := time.Now()
	keys, err := r.lister.ListKeys(ctx)
	metrics.OriginRefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OriginRefreshTotal.WithLabelValues("error").Inc()
		return err
	}

	m := BuildMap(keys)
	refreshedAt := r.now()
	r.swap(m, refreshedAt)

	metrics.OriginRefreshTotal.WithLabelValues("success").Inc()
	metrics.OriginLastRefreshTimestamp.Set(float64(refreshedAt.Unix()))
	logging.Info("Origin mapping refreshed: %d keys, %d media ids in %v", len(keys), len(m), time.Since(start))

	if r.snapshots != nil {
		if err := r.snapshots.SaveOriginMap(ctx, m, refreshedAt); err != nil {
			logging.Warn("Failed to persist origin snapshot: %v", err)
		}
	}
	return nil
}

func (r *Resolver) swap(m map[string]string, refreshedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapping = m
	r.refreshedAt = refreshedAt
	r.loaded = true
	metrics.OriginMappings.Set(float64(len(m)))
}

// Ready reports whether a mapping has been obtained.
func (r *Resolver) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Size returns the number of media ids in the current mapping.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mapping)
}
