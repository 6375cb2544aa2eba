package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/christian-oudard/pdf-conversion/internal/cache"
)

func planBatches(t *testing.T, n, batchSize int) []Batch {
	t.Helper()
	batches, err := Plan(context.Background(), makePages(1, n), batchSize, false, newMemStore(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return batches
}

func TestSchedulerCacheHitSkipsReview(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	if err := store.Put(ctx, cache.Key{Start: 1, End: 3}, "warm"); err != nil {
		t.Fatal(err)
	}
	rev := &fakeReviewer{}
	sched := &Scheduler{Reviewer: rev, Store: store}

	results := sched.Run(ctx, planBatches(t, 3, 3))
	if rev.callCount() != 0 {
		t.Errorf("review calls = %d, want 0", rev.callCount())
	}
	r := results[0]
	if r.State != StateCached || r.Text != "warm" {
		t.Errorf("result = %+v, want cached %q", r, "warm")
	}
}

func TestSchedulerBoundsParallelism(t *testing.T) {
	for _, parallel := range []int{1, 2} {
		rev := &fakeReviewer{delay: 30 * time.Millisecond}
		sched := &Scheduler{Reviewer: rev, Store: newMemStore(), Parallel: parallel}
		sched.Run(context.Background(), planBatches(t, 8, 2))

		if rev.callCount() != 4 {
			t.Errorf("parallel=%d: review calls = %d, want 4", parallel, rev.callCount())
		}
		if rev.maxInFlight > parallel {
			t.Errorf("parallel=%d: max in flight = %d", parallel, rev.maxInFlight)
		}
	}
}

func TestSchedulerStopsSubmittingAfterFatal(t *testing.T) {
	rev := &fakeReviewer{
		fail: func([]string) error { return errors.New("boom") },
	}
	sched := &Scheduler{Reviewer: rev, Store: newMemStore(), Parallel: 1}

	results := sched.Run(context.Background(), planBatches(t, 9, 3))
	if rev.callCount() != 1 {
		t.Errorf("review calls = %d, want 1", rev.callCount())
	}
	if results[0].State != StateFailed {
		t.Errorf("results[0].State = %s, want failed", results[0].State)
	}
	for i := 1; i < 3; i++ {
		if _, ok := results[i]; ok {
			t.Errorf("batch %d should not have been submitted", i)
		}
	}
}

func TestSchedulerInFlightFinishesAfterFatal(t *testing.T) {
	// With two workers, the batch in flight when another fails must
	// still complete and be recorded.
	var once sync.Once
	rev := &fakeReviewer{
		delay: 20 * time.Millisecond,
		fail: func(texts []string) error {
			var err error
			once.Do(func() { err = errors.New("boom") })
			return err
		},
	}
	store := newMemStore()
	sched := &Scheduler{Reviewer: rev, Store: store, Parallel: 2}

	results := sched.Run(context.Background(), planBatches(t, 4, 2))
	var failed, reviewed int
	for _, r := range results {
		switch r.State {
		case StateFailed:
			failed++
		case StateReviewed:
			reviewed++
		}
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if failed+reviewed != len(results) {
		t.Errorf("results = %d failed, %d reviewed of %d", failed, reviewed, len(results))
	}
}
