// Package fsindex is the filesystem-backed reference implementation of the
// Index Repository port: a git-style tree of per-crate
// newline-delimited-JSON files, written with write-to-temp + rename so
// readers never observe a partial file, serialized per crate name via
// keyedmutex.
package fsindex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/domain/indexentry"
	"github.com/cratery/cratery/internal/platform/keyedmutex"
)

// Repository is the filesystem-backed Index Repository.
type Repository struct {
	baseDir string
	locks   *keyedmutex.Map
}

// New constructs a Repository rooted at baseDir.
func New(baseDir string) *Repository {
	return &Repository{baseDir: baseDir, locks: keyedmutex.New()}
}

// ShardPath mirrors the public-registry shard convention: 1 and 2-letter
// names get their own top-level bucket, 3-letter names are nested one level
// under their first character, and everything else shards on its first four
// characters two-and-two.
func (r *Repository) ShardPath(crateName string) string {
	name := crate.NormalizeName(crateName)

	switch len(name) {
	case 0:
		return filepath.Join("1", name)
	case 1:
		return filepath.Join("1", name)
	case 2:
		return filepath.Join("2", name)
	case 3:
		return filepath.Join("3", name[:1], name)
	default:
		return filepath.Join(name[:2], name[2:4], name)
	}
}

func (r *Repository) filePath(crateName string) string {
	return filepath.Join(r.baseDir, r.ShardPath(crateName))
}

// Read returns the current entries for crateName, or an empty slice if no
// index file exists yet.
func (r *Repository) Read(ctx context.Context, crateName string) ([]indexentry.Entry, error) {
	path := r.filePath(crateName)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []indexentry.Entry{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var entries []indexentry.Entry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var e indexentry.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode index line: %w", err)
		}

		entries = append(entries, e)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan index file: %w", err)
	}

	return entries, nil
}

// Append adds a new line for entry to crateName's index file.
func (r *Repository) Append(ctx context.Context, crateName string, newEntry indexentry.Entry) error {
	unlock := r.locks.Lock(crate.NormalizeName(crateName))
	defer unlock()

	entries, err := r.readLocked(crateName)
	if err != nil {
		return err
	}

	entries = append(entries, newEntry)

	return r.writeLocked(crateName, entries)
}

// Rewrite replaces crateName's entire index file with entries, in order.
func (r *Repository) Rewrite(ctx context.Context, crateName string, entries []indexentry.Entry) error {
	unlock := r.locks.Lock(crate.NormalizeName(crateName))
	defer unlock()

	return r.writeLocked(crateName, entries)
}

func (r *Repository) readLocked(crateName string) ([]indexentry.Entry, error) {
	path := r.filePath(crateName)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var entries []indexentry.Entry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var e indexentry.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode index line: %w", err)
		}

		entries = append(entries, e)
	}

	return entries, scanner.Err()
}

func (r *Repository) writeLocked(crateName string, entries []indexentry.Entry) error {
	path := r.filePath(crateName)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create shard directory: %w", err)
	}

	var buf bytes.Buffer

	for _, e := range entries {
		line, err := e.MarshalLine()
		if err != nil {
			return fmt.Errorf("marshal index entry: %w", err)
		}

		buf.Write(line)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-index-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("write temp index file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("sync temp index file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("close temp index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("rename temp index file: %w", err)
	}

	return nil
}
