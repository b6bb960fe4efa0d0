package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"media-cdn/internal/objectstore"
)

// RemoteStore is the durable tier backed by an S3-compatible bucket.
// Objects are read fully into memory; derivatives are bounded in size.
type RemoteStore struct {
	client objectstore.API
	bucket string
}

// NewRemoteStore wraps client for bucket.
func NewRemoteStore(client objectstore.API, bucket string) *RemoteStore {
	return &RemoteStore{client: client, bucket: bucket}
}

// Name implements Tier.
func (s *RemoteStore) Name() string { return TierRemote }

// Get downloads the object for key.
func (s *RemoteStore) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if objectstore.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	entry := &Entry{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Data:        data,
	}
	return entry.Open(TierRemote), nil
}

// Put uploads entry.
func (s *RemoteStore) Put(ctx context.Context, entry *Entry) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(entry.Key),
		Body:          bytes.NewReader(entry.Data),
		ContentLength: aws.Int64(entry.Size()),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	}
	if entry.ContentType != "" {
		in.ContentType = aws.String(entry.ContentType)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put %s: %w", entry.Key, err)
	}
	return nil
}

// Has issues a HEAD for key.
func (s *RemoteStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if objectstore.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", key, err)
	}
	return true, nil
}

// Remove deletes key. S3 delete is idempotent.
func (s *RemoteStore) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !objectstore.IsNotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
