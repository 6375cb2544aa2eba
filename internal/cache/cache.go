// Package cache stores reviewed batch text keyed by page range, so an
// interrupted conversion can resume without repeating review calls.
package cache

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// Key identifies a contiguous, inclusive page range.
type Key struct {
	Start int
	End   int
}

// String returns the canonical range key, also used for on-disk naming.
func (k Key) String() string {
	return fmt.Sprintf("pages_%04d-%04d", k.Start, k.End)
}

// Len returns the number of pages covered by the range.
func (k Key) Len() int {
	return k.End - k.Start + 1
}

var keyPattern = regexp.MustCompile(`^pages_(\d+)-(\d+)$`)

// ParseKey parses a canonical range key produced by Key.String.
func ParseKey(s string) (Key, error) {
	m := keyPattern.FindStringSubmatch(s)
	if m == nil {
		return Key{}, fmt.Errorf("invalid range key %q", s)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if start < 1 || end < start {
		return Key{}, fmt.Errorf("invalid range key %q: bad bounds", s)
	}
	return Key{Start: start, End: end}, nil
}

// Store is a durable range-keyed text store. A Get hit requires the
// entry to exist and be non-empty; empty entries are reported as
// misses so truncated writes force recomputation.
type Store interface {
	Get(ctx context.Context, key Key) (content string, ok bool, err error)
	Put(ctx context.Context, key Key, content string) error
	Delete(ctx context.Context, key Key) error
	Keys(ctx context.Context) ([]Key, error)
	Close() error
}
