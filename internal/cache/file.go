package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"contentweaver/internal/core"
)

// FileStore implements Store using the filesystem.
//
// Structure:
//
//	{Dir}/
//	  {key[0:2]}/
//	    {key}/
//	      entry.json
type FileStore struct {
	// Dir is the root directory for cache storage.
	Dir string

	// commits serializes same-key Puts within the process, striped by the
	// last key byte.
	commits [256]sync.Mutex
}

// NewFileStore creates a new filesystem-based store.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Get retrieves a document set by key.
func (s *FileStore) Get(ctx context.Context, key Key) ([]*core.Document, bool, error) {
	if err := key.Validate(); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(filepath.Join(s.entryPath(key), "entry.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	docs, err := decodeEntry(key, data)
	if err != nil {
		return nil, false, err
	}
	return docs, true, nil
}

// Put stores a document set.
func (s *FileStore) Put(ctx context.Context, key Key, docs []*core.Document) error {
	if err := key.Validate(); err != nil {
		return err
	}
	data, err := encodeEntry(ctx, key, docs)
	if err != nil {
		return err
	}

	entryDir := s.entryPath(key)
	parentDir := filepath.Dir(entryDir)

	// Ensure parent exists so temp dir is created on the same filesystem.
	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Write into a temp entry dir, then rename into place so a crash never
	// leaves a partial entry.json at the canonical path.
	tmpDir, err := os.MkdirTemp(parentDir, "tmp-entry-"+string(key)+"-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = os.RemoveAll(tmpDir)
	}()

	if err := writeFileAtomic(filepath.Join(tmpDir, "entry.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	mu := &s.commits[keyStripe(key)]
	mu.Lock()
	defer mu.Unlock()

	// A crash between remove and rename yields a miss, not corruption.
	_ = os.RemoveAll(entryDir)
	if err := os.Rename(tmpDir, entryDir); err != nil {
		// Another process committed the same key first.
		if _, statErr := os.Stat(filepath.Join(entryDir, "entry.json")); statErr == nil {
			return nil
		}
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func keyStripe(key Key) uint8 {
	b, _ := strconv.ParseUint(string(key[len(key)-2:]), 16, 8)
	return uint8(b)
}

// entryPath shards entries by the first two key characters.
func (s *FileStore) entryPath(key Key) string {
	k := string(key)
	return filepath.Join(s.Dir, k[:2], k)
}
