package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DiskStore implements Store on top of a directory. Keys are slash-separated paths
// relative to the base directory.
type DiskStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDiskStore returns a store rooted at baseDir, creating the directory if needed.
func NewDiskStore(baseDir string) (*DiskStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &DiskStore{baseDir: baseDir, locks: make(map[string]*sync.Mutex)}, nil
}

// BaseDir returns the directory the store writes to.
func (s *DiskStore) BaseDir() string {
	return s.baseDir
}

// Path returns the file path backing key.
func (s *DiskStore) Path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *DiskStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Exists reports whether key has been written.
func (s *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get returns the content of key or ErrNotFound.
func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// GetRecords returns one raw JSON message per non-blank line of key.
func (s *DiskStore) GetRecords(ctx context.Context, key string) ([]json.RawMessage, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return SplitRecords(data)
}

// GetObject decodes the JSON object stored under key into v.
func (s *DiskStore) GetObject(ctx context.Context, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Put atomically replaces key with content.
func (s *DiskStore) Put(ctx context.Context, key string, content []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Append writes content to the end of key.
func (s *DiskStore) Append(ctx context.Context, key string, content []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", key, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", key, err)
	}
	return f.Close()
}

// SplitRecords splits line-delimited JSON into records, skipping blank lines.
func SplitRecords(data []byte) ([]json.RawMessage, error) {
	records := make([]json.RawMessage, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		if !json.Valid(b) {
			return nil, fmt.Errorf("line %d: invalid JSON record", line)
		}
		rec := make(json.RawMessage, len(b))
		copy(rec, b)
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed). Missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	}
	return total, nil
}
