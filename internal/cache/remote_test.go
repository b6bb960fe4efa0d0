package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"media-cdn/internal/objectstore/objectstoretest"
)

func TestRemoteStoreRoundTrip(t *testing.T) {
	fake := objectstoretest.New()
	s := NewRemoteStore(fake, "media")
	ctx := context.Background()
	key := "cache/video/abc.mp4"
	payload := bytes.Repeat([]byte{1, 2, 3}, 100)

	if err := s.Put(ctx, &Entry{Key: key, ContentType: "video/mp4", Data: payload}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stored, ok := fake.Lookup(key)
	if !ok || stored.ContentType != "video/mp4" {
		t.Fatalf("stored object = %+v, %v", stored, ok)
	}

	ok, err := s.Has(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Has = %v, %v", ok, err)
	}

	obj, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj.Tier != TierRemote || obj.Size != int64(len(payload)) {
		t.Errorf("object = %+v", obj)
	}
	if got := readObject(t, obj); !bytes.Equal(got, payload) {
		t.Error("remote round trip mismatch")
	}

	if err := s.Remove(ctx, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := s.Has(ctx, key); ok {
		t.Error("object still present after Remove")
	}
}

func TestRemoteStoreNotFound(t *testing.T) {
	s := NewRemoteStore(objectstoretest.New(), "media")
	if _, err := s.Get(context.Background(), "cache/image/none.jpeg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestRemoteStoreErrors(t *testing.T) {
	fake := objectstoretest.New()
	fake.ErrGet = errors.New("connection reset")
	fake.ErrPut = errors.New("quota exceeded")
	s := NewRemoteStore(fake, "media")
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want transport error", err)
	}
	if err := s.Put(ctx, &Entry{Key: "k", Data: []byte("x")}); err == nil {
		t.Error("Put should fail")
	}
}
