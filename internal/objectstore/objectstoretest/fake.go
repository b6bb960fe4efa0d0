// Package objectstoretest provides an in-memory objectstore.API for tests.
package objectstoretest

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// Fake stores objects per bucket in memory. Set Err* fields to inject failures.
type Fake struct {
	mu      sync.Mutex
	objects map[string]Object

	ErrGet    error
	ErrPut    error
	ErrHead   error
	ErrDelete error
	ErrList   error

	// PageSize limits ListObjectsV2 pages; 0 means 1000.
	PageSize int

	Gets, Puts, Lists int
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{objects: make(map[string]Object)}
}

func notFound() error {
	return &smithy.GenericAPIError{Code: "NoSuchKey", Message: "not found"}
}

// Set stores an object directly.
func (f *Fake) Set(key string, data []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
}

// Lookup returns a stored object.
func (f *Fake) Lookup(key string) (Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[key]
	return o, ok
}

// Len returns the number of stored objects.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *Fake) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	if f.ErrGet != nil {
		return nil, f.ErrGet
	}
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, notFound()
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(o.Data)),
		ContentType:   aws.String(o.ContentType),
		ContentLength: aws.Int64(int64(len(o.Data))),
	}, nil
}

func (f *Fake) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Puts++
	if f.ErrPut != nil {
		return nil, f.ErrPut
	}
	f.objects[aws.ToString(in.Key)] = Object{Data: data, ContentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *Fake) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrHead != nil {
		return nil, f.ErrHead
	}
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(o.Data)))}, nil
}

func (f *Fake) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ErrDelete != nil {
		return nil, f.ErrDelete
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *Fake) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lists++
	if f.ErrList != nil {
		return nil, f.ErrList
	}

	prefix := aws.ToString(in.Prefix)
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		start = sort.SearchStrings(keys, token)
	}

	size := f.PageSize
	if size <= 0 {
		size = 1000
	}
	end := start + size
	truncated := end < len(keys)
	if !truncated {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(truncated)}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k].Data))),
		})
	}
	if truncated {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}
