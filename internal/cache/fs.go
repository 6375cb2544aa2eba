package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FS stores each range as <key>.md inside a single directory. Writes
// go through a same-directory temp file and rename, so readers never
// observe partial content.
type FS struct {
	dir string
}

// NewFS creates the cache directory if needed.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FS{dir: dir}, nil
}

func (f *FS) path(key Key) string {
	return filepath.Join(f.dir, key.String()+".md")
}

func (f *FS) Get(_ context.Context, key Key) (string, bool, error) {
	b, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(b) == 0 {
		// Treated as a miss: an empty file means a write never completed.
		return "", false, nil
	}
	return string(b), true, nil
}

func (f *FS) Put(_ context.Context, key Key, content string) error {
	tmp, err := os.CreateTemp(f.dir, key.String()+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (f *FS) Delete(_ context.Context, key Key) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) Keys(_ context.Context) ([]Key, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var keys []Key
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		if name == e.Name() {
			continue
		}
		key, err := ParseKey(name)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Start < keys[j].Start })
	return keys, nil
}

func (f *FS) Close() error { return nil }
