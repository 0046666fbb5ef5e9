// Package fsblob is the filesystem-backed reference implementation of the
// Blob Store port, using the same write-to-temp + rename discipline as the
// Index Repository (internal/adapters/fsindex).
package fsblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is the filesystem-backed Blob Store.
type Store struct {
	baseDir string
}

// New constructs a Store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

// Put writes the full contents of r under key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	path := s.path(key)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-blob-*")
	if err != nil {
		return fmt.Errorf("create temp blob file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("write temp blob file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("sync temp blob file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("close temp blob file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("rename temp blob file: %w", err)
	}

	return nil
}

// Get opens key for reading.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}

	return f, nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}

	return nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("stat blob: %w", err)
	}

	return true, nil
}

// Move renames srcKey to dstKey, creating dstKey's parent directory if
// necessary. Used to promote a temporary upload key to its final
// content-addressed key.
func (s *Store) Move(ctx context.Context, srcKey, dstKey string) error {
	dstPath := s.path(dstKey)

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}

	if err := os.Rename(s.path(srcKey), dstPath); err != nil {
		return fmt.Errorf("move blob: %w", err)
	}

	return nil
}
