package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"media-cdn/internal/filesystem"
	"media-cdn/internal/mediatypes"
)

// typeSuffix names the sidecar file holding an entry's content type.
const typeSuffix = ".type"

// LocalStore is the fast tier: one file per key under a base directory.
// Writes go to a temp file and are renamed into place, so readers never see a
// partial entry.
type LocalStore struct {
	basePath string
	retry    filesystem.RetryConfig

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocalStore creates the local tier rooted at basePath.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		return nil, errors.New("cache path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache path: %w", err)
	}

	return &LocalStore{
		basePath: abs,
		retry:    filesystem.DefaultRetryConfig(),
		locks:    make(map[string]*entryLock),
	}, nil
}

// Name implements Tier.
func (s *LocalStore) Name() string { return TierLocal }

// BasePath returns the absolute cache root.
func (s *LocalStore) BasePath() string { return s.basePath }

// Get opens the entry for key.
func (s *LocalStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := filesystem.OpenWithRetry(filePath, s.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	return &Object{
		Key:         key,
		ContentType: s.contentType(filePath),
		Size:        info.Size(),
		Tier:        TierLocal,
		Body:        f,
	}, nil
}

// Put writes entry atomically, replacing any previous value.
func (s *LocalStore) Put(ctx context.Context, entry *Entry) error {
	unlock := s.lockEntry(entry.Key)
	defer unlock()

	filePath, err := s.path(entry.Key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	if entry.ContentType != "" {
		if err := s.writeAtomic(ctx, filePath+typeSuffix, []byte(entry.ContentType)); err != nil {
			return fmt.Errorf("write content type: %w", err)
		}
	}
	return s.writeAtomic(ctx, filePath, entry.Data)
}

// Has reports whether key exists.
func (s *LocalStore) Has(_ context.Context, key string) (bool, error) {
	filePath, err := s.path(key)
	if err != nil {
		return false, err
	}

	info, err := filesystem.StatWithRetry(filePath, s.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *LocalStore) Remove(_ context.Context, key string) error {
	unlock := s.lockEntry(key)
	defer unlock()

	filePath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := filesystem.RemoveWithRetry(filePath, s.retry); err != nil {
		return err
	}
	return filesystem.RemoveWithRetry(filePath+typeSuffix, s.retry)
}

// Usage walks the tier and reports entry count and total bytes.
func (s *LocalStore) Usage() (int, int64, error) {
	var entries int
	var total int64

	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || isInternalFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries++
		total += info.Size()
		return nil
	})
	return entries, total, err
}

func isInternalFile(name string) bool {
	return strings.HasSuffix(name, typeSuffix) || strings.HasPrefix(name, ".cache-")
}

func (s *LocalStore) writeAtomic(ctx context.Context, filePath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := filesystem.RenameWithRetry(tempName, filePath, s.retry); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *LocalStore) contentType(filePath string) string {
	if data, err := os.ReadFile(filePath + typeSuffix); err == nil && len(data) > 0 {
		return string(data)
	}
	return mediatypes.ContentTypeForExtension(filepath.Ext(filePath))
}

func (s *LocalStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *LocalStore) path(key string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+key), "/")
	if rel == "" || strings.HasSuffix(rel, typeSuffix) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filePath, nil
}
