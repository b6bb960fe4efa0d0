package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"media-cdn/internal/objectstore/objectstoretest"
	"media-cdn/internal/workers"
)

// memTier is an in-memory Tier with injectable failures.
type memTier struct {
	name string

	mu      sync.Mutex
	entries map[string]*Entry
	getErr  error
	putErr  error
	puts    int
}

func newMemTier(name string) *memTier {
	return &memTier{name: name, entries: make(map[string]*Entry)}
}

func (m *memTier) Name() string { return m.name }

func (m *memTier) Get(_ context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Open(m.name), nil
}

func (m *memTier) Put(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[entry.Key] = entry
	return nil
}

func (m *memTier) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok, nil
}

func (m *memTier) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memTier) has(key string) bool {
	ok, _ := m.Has(context.Background(), key)
	return ok
}

func newPool(t *testing.T) *workers.Pool {
	t.Helper()
	p := workers.NewPool(2, 16)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestStoreLocalHit(t *testing.T) {
	local, remote := newMemTier(TierLocal), newMemTier(TierRemote)
	_ = local.Put(context.Background(), &Entry{Key: "k", ContentType: "image/webp", Data: []byte("local")})
	s := NewStore(local, remote, newPool(t))

	obj, err := s.Lookup(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if obj.Tier != TierLocal || string(readObject(t, obj)) != "local" {
		t.Errorf("unexpected hit %+v", obj)
	}
}

func TestStoreRemoteHitPromotes(t *testing.T) {
	local := newMemTier(TierLocal)
	fake := objectstoretest.New()
	fake.Set("cache/image/k.webp", []byte("remote-bytes"), "image/webp")
	pool := newPool(t)
	s := NewStore(local, NewRemoteStore(fake, "media"), pool)

	obj, err := s.Lookup(context.Background(), "cache/image/k.webp")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if obj.Tier != TierRemote {
		t.Errorf("Tier = %q, want remote", obj.Tier)
	}
	if got := readObject(t, obj); string(got) != "remote-bytes" {
		t.Errorf("body = %q", got)
	}

	pool.Wait()
	promoted, err := local.Get(context.Background(), "cache/image/k.webp")
	if err != nil {
		t.Fatalf("entry not promoted: %v", err)
	}
	if promoted.ContentType != "image/webp" || string(readObject(t, promoted)) != "remote-bytes" {
		t.Errorf("promoted entry mismatch: %+v", promoted)
	}
}

func TestStorePromotionFailureDoesNotFailLookup(t *testing.T) {
	local, remote := newMemTier(TierLocal), newMemTier(TierRemote)
	local.putErr = errors.New("disk full")
	_ = remote.Put(context.Background(), &Entry{Key: "k", Data: []byte("r")})
	pool := newPool(t)
	s := NewStore(local, remote, pool)

	obj, err := s.Lookup(context.Background(), "k")
	if err != nil || obj.Tier != TierRemote {
		t.Fatalf("Lookup = %+v, %v", obj, err)
	}
	pool.Wait()
	if local.has("k") {
		t.Error("failed promotion should leave local tier empty")
	}
}

func TestStoreMiss(t *testing.T) {
	s := NewStore(newMemTier(TierLocal), newMemTier(TierRemote), newPool(t))
	if _, err := s.Lookup(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup = %v, want ErrNotFound", err)
	}

	localOnly := NewStore(newMemTier(TierLocal), nil, newPool(t))
	if _, err := localOnly.Lookup(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("local-only Lookup = %v, want ErrNotFound", err)
	}
	if len(localOnly.Tiers()) != 1 {
		t.Errorf("local-only store has %d tiers", len(localOnly.Tiers()))
	}
}

func TestStoreTierErrorIsTreatedAsMiss(t *testing.T) {
	local, remote := newMemTier(TierLocal), newMemTier(TierRemote)
	local.getErr = errors.New("io error")
	_ = remote.Put(context.Background(), &Entry{Key: "k", Data: []byte("r")})
	s := NewStore(local, remote, newPool(t))

	obj, err := s.Lookup(context.Background(), "k")
	if err != nil || obj.Tier != TierRemote {
		t.Fatalf("Lookup = %+v, %v", obj, err)
	}
}

func TestStoreWriteThroughIndependentTiers(t *testing.T) {
	local, remote := newMemTier(TierLocal), newMemTier(TierRemote)
	remote.putErr = errors.New("bucket unavailable")
	pool := newPool(t)
	s := NewStore(local, remote, pool)

	payload := []byte("produced")
	s.WriteThrough(&Entry{Key: "k", ContentType: "video/mp4", Data: payload})
	pool.Wait()

	if !local.has("k") {
		t.Error("local write should succeed despite remote failure")
	}
	if remote.puts != 1 {
		t.Errorf("remote puts = %d, want 1", remote.puts)
	}

	obj, err := s.Lookup(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(readObject(t, obj), payload) {
		t.Error("round trip through local tier mismatch")
	}
}

func TestStoreHasAndRemove(t *testing.T) {
	local, remote := newMemTier(TierLocal), newMemTier(TierRemote)
	_ = remote.Put(context.Background(), &Entry{Key: "k", Data: []byte("r")})
	s := NewStore(local, remote, newPool(t))
	ctx := context.Background()

	if !s.Has(ctx, "k") {
		t.Error("Has should see remote entry")
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Has(ctx, "k") {
		t.Error("entry still present after Remove")
	}
}
