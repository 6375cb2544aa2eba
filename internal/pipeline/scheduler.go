package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/christian-oudard/pdf-conversion/internal/cache"
	"github.com/christian-oudard/pdf-conversion/internal/review"
)

// Progress receives batch lifecycle events. Implementations must be
// safe for concurrent use.
type Progress interface {
	BatchStart(b Batch)
	BatchDone(b Batch, state State, err error)
}

// NopProgress discards all events.
type NopProgress struct{}

func (NopProgress) BatchStart(Batch)              {}
func (NopProgress) BatchDone(Batch, State, error) {}

// Scheduler runs batches through the reviewer with at most Parallel
// calls in flight. A fatal batch failure stops further submissions;
// batches already in flight run to completion and their results are
// kept.
type Scheduler struct {
	Reviewer review.Reviewer
	Store    cache.Store
	Parallel int
	Progress Progress
	Logger   *zap.Logger
}

// Run processes all batches and returns results keyed by batch index.
// Batches never submitted because of an earlier fatal failure are
// absent from the map.
func (s *Scheduler) Run(ctx context.Context, batches []Batch) map[int]Result {
	workers := s.Parallel
	if workers < 1 {
		workers = 1
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progress := s.Progress
	if progress == nil {
		progress = NopProgress{}
	}

	results := make(map[int]Result, len(batches))
	var mu sync.Mutex
	record := func(r Result) {
		mu.Lock()
		results[r.Batch.Index] = r
		mu.Unlock()
		progress.BatchDone(r.Batch, r.State, r.Err)
	}

	stop := make(chan struct{})
	var stopOnce sync.Once
	fatal := func() { stopOnce.Do(func() { close(stop) }) }

	in := make(chan Batch)
	go func() {
		defer close(in)
		for _, b := range batches {
			select {
			case in <- b:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range in {
				s.process(ctx, b, logger, progress, record, fatal)
			}
		}()
	}
	wg.Wait()
	return results
}

func (s *Scheduler) process(ctx context.Context, b Batch, logger *zap.Logger, progress Progress, record func(Result), fatal func()) {
	rng := zap.String("range", b.Key.String())

	if text, ok, err := s.Store.Get(ctx, b.Key); err != nil {
		logger.Warn("cache read failed, re-reviewing", rng, zap.Error(err))
	} else if ok {
		logger.Info("batch cached, skipping review", rng)
		record(Result{Batch: b, State: StateCached, Text: text})
		return
	}

	progress.BatchStart(b)
	logger.Info("reviewing batch", rng, zap.Int("pages", len(b.Pages)))

	images, texts := b.inputs()
	text, err := s.Reviewer.Review(ctx, images, texts)
	switch {
	case err == nil:
		s.put(ctx, b.Key, text, logger)
		record(Result{Batch: b, State: StateReviewed, Text: text})
	case review.IsRefusal(err):
		logger.Warn("review refused, falling back to ocr text", rng, zap.Error(err))
		text = Fallback(b)
		s.put(ctx, b.Key, text, logger)
		record(Result{Batch: b, State: StateFellBack, Text: text})
	default:
		logger.Error("batch review failed", rng, zap.Error(err))
		record(Result{Batch: b, State: StateFailed, Err: err})
		fatal()
	}
}

// put stores completed batch text. A cache write failure degrades
// resumability but not the current run, so it is only logged.
func (s *Scheduler) put(ctx context.Context, k cache.Key, text string, logger *zap.Logger) {
	if err := s.Store.Put(ctx, k, text); err != nil {
		logger.Warn("cache write failed", zap.String("range", k.String()), zap.Error(err))
	}
}
