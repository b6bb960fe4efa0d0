package origin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"media-cdn/internal/objectstore"
)

// Bucket reads origin objects from an S3-compatible bucket.
type Bucket struct {
	client objectstore.API
	bucket string
	prefix string
}

// NewBucket wraps client for bucket. Only keys under prefix are listed.
func NewBucket(client objectstore.API, bucket, prefix string) *Bucket {
	return &Bucket{client: client, bucket: bucket, prefix: prefix}
}

// ListKeys returns every object key under the prefix, following pagination.
func (b *Bucket) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	var token *string

	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(b.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.bucket, err)
		}

		for _, obj := range out.Contents {
			if key := aws.ToString(obj.Key); key != "" {
				keys = append(keys, key)
			}
		}

		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

// Fetch reads the whole object at key.
func (b *Bucket) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if objectstore.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, key, err)
	}
	return data, nil
}

// Download stores the object at key in dest, writing through a temp file so
// a partially downloaded file is never left at dest.
func (b *Bucket) Download(ctx context.Context, key, dest string) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if objectstore.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, out.Body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("download %s: %w", key, err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// BuildMap maps logical media ids to origin keys. A key named
// "<owner>_<name>.<ext>" maps <name> to the key; names ending in "_thumb"
// and keys without an owner segment are skipped. Later keys in lexical order
// win when two keys share a name.
func BuildMap(keys []string) map[string]string {
	m := make(map[string]string, len(keys))
	for _, key := range keys {
		id, ok := MediaID(key)
		if !ok {
			continue
		}
		if prev, exists := m[id]; exists && prev > key {
			continue
		}
		m[id] = key
	}
	return m
}

// MediaID extracts the logical id from an origin key.
func MediaID(key string) (string, bool) {
	base := key
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}

	_, rest, ok := strings.Cut(base, "_")
	if !ok || rest == "" {
		return "", false
	}

	name := strings.TrimSuffix(rest, filepath.Ext(rest))
	if name == "" {
		return "", false
	}

	parts := strings.Split(name, "_")
	if parts[len(parts)-1] == "thumb" {
		return "", false
	}
	return name, true
}
