package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"media-cdn/internal/logging"
	"media-cdn/internal/metrics"
	"media-cdn/internal/workers"
)

// Background runs detached work. *workers.Pool satisfies it.
type Background interface {
	Submit(name string, fn workers.TaskFunc) bool
}

// Store searches the local tier, then the remote tier. Remote hits are
// promoted into the local tier in the background. Writes to each tier are
// independent and never awaited by the caller.
type Store struct {
	local      Tier
	remote     Tier
	background Background
	timeout    time.Duration
}

// NewStore builds a tiered store. remote may be nil for a local-only setup.
func NewStore(local, remote Tier, background Background) *Store {
	return &Store{
		local:      local,
		remote:     remote,
		background: background,
		timeout:    5 * time.Minute,
	}
}

// Tiers returns the configured tiers, local first.
func (s *Store) Tiers() []Tier {
	if s.remote == nil {
		return []Tier{s.local}
	}
	return []Tier{s.local, s.remote}
}

// Lookup returns the first hit for key. Tier errors are logged and treated as
// misses. A full miss returns ErrNotFound.
func (s *Store) Lookup(ctx context.Context, key string) (*Object, error) {
	if obj := s.lookupTier(ctx, s.local, key); obj != nil {
		return obj, nil
	}
	if s.remote == nil {
		return nil, ErrNotFound
	}

	obj := s.lookupTier(ctx, s.remote, key)
	if obj == nil {
		return nil, ErrNotFound
	}

	data, err := obj.bytes()
	if err != nil {
		logging.Warn("Cache promotion skipped for %s: %v", key, err)
		return obj, nil
	}
	s.promote(&Entry{Key: key, ContentType: obj.ContentType, Data: data})
	return obj, nil
}

func (s *Store) lookupTier(ctx context.Context, tier Tier, key string) *Object {
	start := time.Now()
	obj, err := tier.Get(ctx, key)
	metrics.CacheLookupDuration.WithLabelValues(tier.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.CacheLookupsTotal.WithLabelValues(tier.Name(), "hit").Inc()
		logging.Debug("Cache %s HIT: %s (%d bytes)", tier.Name(), key, obj.Size)
		return obj
	case errors.Is(err, ErrNotFound):
		metrics.CacheLookupsTotal.WithLabelValues(tier.Name(), "miss").Inc()
		logging.Debug("Cache %s MISS: %s", tier.Name(), key)
	default:
		metrics.CacheLookupsTotal.WithLabelValues(tier.Name(), "error").Inc()
		logging.Warn("Cache %s lookup failed for %s: %v", tier.Name(), key, err)
	}
	return nil
}

func (s *Store) promote(entry *Entry) {
	s.background.Submit("promote "+entry.Key, func(ctx context.Context) error {
		if err := s.put(ctx, s.local, entry); err != nil {
			metrics.CachePromotionsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("promote %s: %w", entry.Key, err)
		}
		metrics.CachePromotionsTotal.WithLabelValues("success").Inc()
		return nil
	})
}

// WriteThrough schedules independent puts of entry to every tier and returns
// immediately.
func (s *Store) WriteThrough(entry *Entry) {
	for _, tier := range s.Tiers() {
		tier := tier
		s.background.Submit("write-through "+tier.Name()+" "+entry.Key, func(ctx context.Context) error {
			return s.put(ctx, tier, entry)
		})
	}
}

func (s *Store) put(ctx context.Context, tier Tier, entry *Entry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := tier.Put(ctx, entry); err != nil {
		metrics.CacheWritesTotal.WithLabelValues(tier.Name(), "error").Inc()
		return fmt.Errorf("%s put: %w", tier.Name(), err)
	}

	metrics.CacheWritesTotal.WithLabelValues(tier.Name(), "success").Inc()
	metrics.CacheWriteBytes.WithLabelValues(tier.Name()).Add(float64(entry.Size()))
	logging.Info("Saved to %s cache: %s (%d bytes)", tier.Name(), entry.Key, entry.Size())
	return nil
}

// Has reports whether any tier holds key.
func (s *Store) Has(ctx context.Context, key string) bool {
	for _, tier := range s.Tiers() {
		ok, err := tier.Has(ctx, key)
		if err != nil {
			logging.Warn("Cache %s has-check failed for %s: %v", tier.Name(), key, err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// Remove deletes key from every tier. All tiers are attempted; errors are joined.
func (s *Store) Remove(ctx context.Context, key string) error {
	var errs []error
	for _, tier := range s.Tiers() {
		if err := tier.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
			continue
		}
		metrics.CacheRemovalsTotal.WithLabelValues(tier.Name()).Inc()
	}
	return errors.Join(errs...)
}

// bytes returns the object's full content without an extra copy when it is
// already in memory. The read position is left at the start.
func (o *Object) bytes() ([]byte, error) {
	if o.data != nil {
		return o.data, nil
	}
	data, err := io.ReadAll(o.Body)
	if err != nil {
		return nil, err
	}
	if _, err := o.Body.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return data, nil
}
