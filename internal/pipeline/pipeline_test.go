package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/christian-oudard/pdf-conversion/internal/cache"
	"github.com/christian-oudard/pdf-conversion/internal/page"
	"github.com/christian-oudard/pdf-conversion/internal/review"
)

// memStore is an in-memory cache.Store for tests.
type memStore struct {
	mu sync.Mutex
	m  map[cache.Key]string
}

func newMemStore() *memStore { return &memStore{m: make(map[cache.Key]string)} }

func (s *memStore) Get(_ context.Context, k cache.Key) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[k]
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (s *memStore) Put(_ context.Context, k cache.Key, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = content
	return nil
}

func (s *memStore) Delete(_ context.Context, k cache.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
	return nil
}

func (s *memStore) Keys(_ context.Context) ([]cache.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]cache.Key, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Start < keys[j].Start })
	return keys, nil
}

func (s *memStore) Close() error { return nil }

// fakeReviewer labels each batch by its first and last OCR text and
// tracks call concurrency.
type fakeReviewer struct {
	mu          sync.Mutex
	calls       int
	inFlight    int
	maxInFlight int
	delay       time.Duration
	refuse      func(texts []string) bool
	fail        func(texts []string) error
}

func (f *fakeReviewer) Review(_ context.Context, _ [][]byte, texts []string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		if err := f.fail(texts); err != nil {
			return "", err
		}
	}
	if f.refuse != nil && f.refuse(texts) {
		return "", &review.RefusalError{Reason: "blocked"}
	}
	return fmt.Sprintf("R:%s-%s", texts[0], texts[len(texts)-1]), nil
}

func (f *fakeReviewer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func makePages(start, end int) []page.Page {
	var ps []page.Page
	for n := start; n <= end; n++ {
		ps = append(ps, page.Page{
			Number:  n,
			Image:   []byte(fmt.Sprintf("img%d", n)),
			OCRText: fmt.Sprintf("p%d", n),
		})
	}
	return ps
}

func TestRunResumesFromCachedRange(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	if err := store.Put(ctx, cache.Key{Start: 6, End: 10}, "CACHED-TEXT"); err != nil {
		t.Fatal(err)
	}
	rev := &fakeReviewer{}

	res, err := Run(ctx, makePages(1, 12), Config{
		BatchSize: 5,
		Parallel:  2,
		Reviewer:  rev,
		Store:     store,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := rev.callCount(); got != 2 {
		t.Errorf("review calls = %d, want 2", got)
	}
	want := "R:p1-p5\n\nCACHED-TEXT\n\nR:p11-p12"
	if res.Document != want {
		t.Errorf("document = %q, want %q", res.Document, want)
	}
	if res.Batches != 3 || res.Reviewed != 2 || res.Cached != 1 || res.FellBack != 0 {
		t.Errorf("counts = %+v", res)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pages := makePages(1, 7)

	rev := &fakeReviewer{}
	first, err := Run(ctx, pages, Config{BatchSize: 3, Reviewer: rev, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if rev.callCount() != 3 {
		t.Fatalf("first run review calls = %d, want 3", rev.callCount())
	}

	rev2 := &fakeReviewer{}
	second, err := Run(ctx, pages, Config{BatchSize: 3, Reviewer: rev2, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if rev2.callCount() != 0 {
		t.Errorf("second run review calls = %d, want 0", rev2.callCount())
	}
	if second.Document != first.Document {
		t.Errorf("documents differ:\n%q\n%q", second.Document, first.Document)
	}
	if second.Cached != second.Batches {
		t.Errorf("second run cached = %d, want %d", second.Cached, second.Batches)
	}
}

func TestRunForceReview(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	pages := makePages(1, 6)

	if _, err := Run(ctx, pages, Config{BatchSize: 3, Reviewer: &fakeReviewer{}, Store: store}); err != nil {
		t.Fatal(err)
	}

	rev := &fakeReviewer{}
	if _, err := Run(ctx, pages, Config{BatchSize: 3, Reviewer: rev, Store: store, ForceReview: true}); err != nil {
		t.Fatal(err)
	}
	if rev.callCount() != 2 {
		t.Errorf("review calls = %d, want 2 after force", rev.callCount())
	}
}

func TestRunRefusalFallsBack(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rev := &fakeReviewer{
		refuse: func(texts []string) bool { return texts[0] == "p4" },
	}

	res, err := Run(ctx, makePages(1, 6), Config{BatchSize: 3, Reviewer: rev, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if res.FellBack != 1 || res.Reviewed != 1 {
		t.Errorf("counts = %+v, want 1 fell back, 1 reviewed", res)
	}
	want := "R:p1-p3\n\np4\n\np5\n\np6"
	if res.Document != want {
		t.Errorf("document = %q, want %q", res.Document, want)
	}
	// Fallback text is cached like reviewed text, so the refusal is
	// not retried.
	if got, ok, _ := store.Get(ctx, cache.Key{Start: 4, End: 6}); !ok || got != "p4\n\np5\n\np6" {
		t.Errorf("cached fallback = %q, %v", got, ok)
	}
}

func TestRunFatalAborts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rev := &fakeReviewer{
		fail: func(texts []string) error {
			if texts[0] == "p4" {
				return fmt.Errorf("quota exhausted")
			}
			return nil
		},
	}

	_, err := Run(ctx, makePages(1, 9), Config{BatchSize: 3, Parallel: 1, Reviewer: rev, Store: store})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "pages_0004-0006") {
		t.Errorf("error %q should name the failed range", err)
	}
	// Work completed before the failure survives for the next run.
	if _, ok, _ := store.Get(ctx, cache.Key{Start: 1, End: 3}); !ok {
		t.Error("first batch should be cached despite the abort")
	}
	// No submissions after the failure.
	if got := rev.callCount(); got != 2 {
		t.Errorf("review calls = %d, want 2", got)
	}
}
