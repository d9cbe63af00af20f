package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/pgzip"
)

// Store persists raw cache documents by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// FileStore keeps one file per key under a cache directory. Keys ending in
// ".gz" are stored gzip-compressed.
type FileStore struct {
	cacheDir string
	mu       sync.RWMutex
}

// NewFileStore creates a file store rooted at cacheDir
func NewFileStore(cacheDir string) *FileStore {
	if cacheDir == "" {
		cacheDir = "_cache"
	}
	return &FileStore{cacheDir: cacheDir}
}

// Dir returns the cache directory
func (s *FileStore) Dir() string {
	return s.cacheDir
}

// Path returns the file backing key
func (s *FileStore) Path(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.cacheDir, key)
}

// Get reads the document stored under key
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if isCompressed(key) {
		zr, err := pgzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, false, fmt.Errorf("failed to open compressed cache %s: %w", key, err)
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return nil, false, fmt.Errorf("failed to decompress cache %s: %w", key, err)
		}
	}
	return data, true, nil
}

// Set writes the document under key, creating the containing directory.
// Files carry no expiry; ttl is ignored.
func (s *FileStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	if isCompressed(key) {
		var buf bytes.Buffer
		zw := pgzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("failed to compress cache %s: %w", key, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress cache %s: %w", key, err)
		}
		data = buf.Bytes()
	}

	return os.WriteFile(path, data, 0644)
}

// Delete removes the document under key
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes all cache entries
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return os.RemoveAll(s.cacheDir)
}

func isCompressed(key string) bool {
	return strings.HasSuffix(key, ".gz")
}
