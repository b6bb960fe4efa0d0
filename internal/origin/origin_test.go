package origin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-cdn/internal/objectstore/objectstoretest"
)

type fakeLister struct {
	mu    sync.Mutex
	keys  []string
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeLister) ListKeys(ctx context.Context) ([]string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.keys...), nil
}

func (f *fakeLister) set(keys []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys, f.err = keys, err
}

type memSnapshots struct {
	mu          sync.Mutex
	m           map[string]string
	refreshedAt time.Time
	saves       int
}

func (s *memSnapshots) SaveOriginMap(_ context.Context, m map[string]string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m, s.refreshedAt = m, at
	s.saves++
	return nil
}

func (s *memSnapshots) LoadOriginMap(context.Context) (map[string]string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m, s.refreshedAt, nil
}

func TestMediaID(t *testing.T) {
	tests := []struct {
		key  string
		id   string
		ok   bool
	}{
		{"u1_photo1.jpg", "photo1", true},
		{"u1_my_clip.final.mp4", "my_clip.final", true},
		{"folder/u2_song.mp3", "song", true},
		{"u1_photo1_thumb.jpg", "", false},
		{"u1_photo1_thumb", "", false},
		{"nounderscore.jpg", "", false},
		{"u1_.jpg", "", false},
	}

	for _, tt := range tests {
		id, ok := MediaID(tt.key)
		if id != tt.id || ok != tt.ok {
			t.Errorf("MediaID(%q) = (%q, %v), want (%q, %v)", tt.key, id, ok, tt.id, tt.ok)
		}
	}
}

func TestBuildMap(t *testing.T) {
	got := BuildMap([]string{"b_photo1.jpg", "a_photo1.png", "a_clip.mp4", "a_clip_thumb.jpg", "readme"})
	want := map[string]string{"photo1": "b_photo1.jpg", "clip": "a_clip.mp4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildMap = %v, want %v", got, want)
	}
}

func TestResolverFirstLookupRefreshes(t *testing.T) {
	lister := &fakeLister{keys: []string{"u_photo1.jpg"}}
	snaps := &memSnapshots{}
	r := NewResolver(lister, snaps, Config{MaxAge: time.Hour})

	key, err := r.Resolve(context.Background(), "photo1")
	if err != nil || key != "u_photo1.jpg" {
		t.Fatalf("Resolve = %q, %v", key, err)
	}
	if !r.Ready() || r.Size() != 1 {
		t.Errorf("Ready = %v, Size = %d", r.Ready(), r.Size())
	}
	if snaps.saves != 1 {
		t.Errorf("snapshot saves = %d, want 1", snaps.saves)
	}

	if _, err := r.Resolve(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) = %v, want ErrNotFound", err)
	}
	if lister.calls.Load() != 1 {
		t.Errorf("fresh mapping should not be relisted, calls = %d", lister.calls.Load())
	}
}

func TestResolverUnavailableWithoutMapping(t *testing.T) {
	lister := &fakeLister{err: errors.New("bucket offline")}
	r := NewResolver(lister, nil, Config{})

	if _, err := r.Resolve(context.Background(), "photo1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Resolve = %v, want ErrUnavailable", err)
	}
	if r.Ready() {
		t.Error("resolver should not be ready")
	}
}

func TestResolverServesStaleWhileRevalidating(t *testing.T) {
	lister := &fakeLister{keys: []string{"u_photo1.jpg"}}
	r := NewResolver(lister, nil, Config{MaxAge: time.Minute})

	now := time.Now()
	r.now = func() time.Time { return now }
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Age the mapping and make the origin fail: the old mapping keeps serving.
	lister.set(nil, errors.New("bucket offline"))
	r.mu.Lock()
	r.now = func() time.Time { return now.Add(2 * time.Minute) }
	r.mu.Unlock()

	key, err := r.Resolve(context.Background(), "photo1")
	if err != nil || key != "u_photo1.jpg" {
		t.Fatalf("stale Resolve = %q, %v", key, err)
	}

	deadline := time.Now().Add(time.Second)
	for lister.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if lister.calls.Load() < 2 {
		t.Error("stale lookup did not trigger a background refresh")
	}
}

func TestResolverConcurrentRefreshesShareListing(t *testing.T) {
	lister := &fakeLister{keys: []string{"u_a.jpg"}, gate: make(chan struct{})}
	r := NewResolver(lister, nil, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(context.Background(), "a")
		}()
	}

	deadline := time.Now().Add(time.Second)
	for lister.calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	close(lister.gate)
	wg.Wait()

	if got := lister.calls.Load(); got != 1 {
		t.Errorf("listing ran %d times, want 1", got)
	}
}

func TestResolverStartRestoresSnapshot(t *testing.T) {
	lister := &fakeLister{err: errors.New("bucket offline")}
	snaps := &memSnapshots{m: map[string]string{"photo1": "u_photo1.jpg"}, refreshedAt: time.Now()}
	r := NewResolver(lister, snaps, Config{Schedule: "@every 1h"})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	key, err := r.Resolve(context.Background(), "photo1")
	if err != nil || key != "u_photo1.jpg" {
		t.Errorf("Resolve from snapshot = %q, %v", key, err)
	}
}

func TestResolverStartRejectsBadSchedule(t *testing.T) {
	r := NewResolver(&fakeLister{}, nil, Config{Schedule: "not a schedule"})
	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestBucketListAndFetch(t *testing.T) {
	fake := objectstoretest.New()
	fake.PageSize = 2
	for _, k := range []string{"u_a.jpg", "u_b.jpg", "u_c.mp4", "u_d.mp3", "u_e.png"} {
		fake.Set(k, []byte("data-"+k), "")
	}
	b := NewBucket(fake, "origin", "")
	ctx := context.Background()

	keys, err := b.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 5 {
		t.Errorf("ListKeys returned %d keys, want 5: %v", len(keys), keys)
	}
	if fake.Lists != 3 {
		t.Errorf("expected 3 pages, got %d", fake.Lists)
	}

	data, err := b.Fetch(ctx, "u_a.jpg")
	if err != nil || string(data) != "data-u_a.jpg" {
		t.Errorf("Fetch = %q, %v", data, err)
	}
	if _, err := b.Fetch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch(missing) = %v, want ErrNotFound", err)
	}

	dest := filepath.Join(t.TempDir(), "sources", "u_c.mp4")
	if err := b.Download(ctx, "u_c.mp4", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "data-u_c.mp4" {
		t.Errorf("downloaded = %q, %v", got, err)
	}
}

func TestBucketFetchUnavailable(t *testing.T) {
	fake := objectstoretest.New()
	fake.ErrGet = errors.New("timeout")
	b := NewBucket(fake, "origin", "")

	if _, err := b.Fetch(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Fetch = %v, want ErrUnavailable", err)
	}
}

func TestDisabledFailsUnavailable(t *testing.T) {
	var d Disabled
	ctx := context.Background()

	if _, err := d.Resolve(ctx, "photo1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Resolve = %v, want ErrUnavailable", err)
	}
	if _, err := d.Fetch(ctx, "u_photo1.jpg"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Fetch = %v, want ErrUnavailable", err)
	}
	if err := d.Download(ctx, "u_photo1.jpg", filepath.Join(t.TempDir(), "x")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Download = %v, want ErrUnavailable", err)
	}
	if !d.Ready() || d.Size() != 0 {
		t.Errorf("Ready/Size = %v/%d, want true/0", d.Ready(), d.Size())
	}
}
