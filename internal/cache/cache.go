package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// Tier names used in logs and metric labels.
const (
	TierLocal  = "local"
	TierRemote = "remote"
)

// ErrNotFound is returned when a tier has no entry for a key.
var ErrNotFound = errors.New("cache entry not found")

// Entry is a fully produced derivative ready to be stored. Data is treated as
// immutable once the entry is handed to a tier.
type Entry struct {
	Key         string
	ContentType string
	Data        []byte
}

// Size returns the entry length in bytes.
func (e *Entry) Size() int64 {
	return int64(len(e.Data))
}

// Open returns an independent reader over the entry's bytes.
func (e *Entry) Open(tier string) *Object {
	return &Object{
		Key:         e.Key,
		ContentType: e.ContentType,
		Size:        e.Size(),
		Tier:        tier,
		Body:        nopSeekCloser{bytes.NewReader(e.Data)},
		data:        e.Data,
	}
}

// Object is a readable cache hit. Callers must close Body.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Tier        string
	Body        io.ReadSeekCloser

	// data is set when Body reads from an in-memory buffer.
	data []byte
}

// Tier is one cache level addressed by cache key.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, entry *Entry) error
	Has(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

type nopSeekCloser struct {
	*bytes.Reader
}

func (nopSeekCloser) Close() error { return nil }
