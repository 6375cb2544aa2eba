package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/christian-oudard/pdf-conversion/internal/cache"
	"github.com/christian-oudard/pdf-conversion/internal/page"
	"github.com/christian-oudard/pdf-conversion/internal/review"
)

const DefaultBatchSize = 100

type Config struct {
	// BatchSize is the nominal pages per batch; cached ranges and page
	// gaps may produce shorter or longer batches.
	BatchSize int
	// Parallel is the maximum review calls in flight.
	Parallel int
	// Paired rounds BatchSize up to even so split spread halves stay in
	// the same batch.
	Paired bool
	// ForceReview drops cached entries overlapping the selection before
	// allocation, so every batch is reviewed afresh.
	ForceReview bool

	Reviewer review.Reviewer
	Store    cache.Store
	Progress Progress
	Logger   *zap.Logger
}

// RunResult summarizes one conversion run.
type RunResult struct {
	Document string
	Batches  int
	Reviewed int
	Cached   int
	FellBack int
}

// Run converts the given pages: allocate batches, review them with
// bounded parallelism, and reassemble the completed text. A fatal
// batch failure aborts the run; completed batches stay cached, so a
// rerun resumes where this one stopped.
func Run(ctx context.Context, pages []page.Page, cfg Config) (RunResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}

	if cfg.ForceReview {
		if err := dropOverlapping(ctx, cfg.Store, pages, logger); err != nil {
			return RunResult{}, err
		}
	}

	batches, err := Plan(ctx, pages, cfg.BatchSize, cfg.Paired, cfg.Store, logger)
	if err != nil {
		return RunResult{}, fmt.Errorf("allocate batches: %w", err)
	}
	logger.Info("batches allocated",
		zap.Int("batches", len(batches)),
		zap.Int("pages", len(pages)))

	sched := &Scheduler{
		Reviewer: cfg.Reviewer,
		Store:    cfg.Store,
		Parallel: cfg.Parallel,
		Progress: cfg.Progress,
		Logger:   logger,
	}
	results := sched.Run(ctx, batches)

	res := RunResult{Batches: len(batches)}
	for _, b := range batches {
		r, ok := results[b.Index]
		if !ok {
			return res, fmt.Errorf("batch %s not processed, run aborted", b.Key)
		}
		switch r.State {
		case StateReviewed:
			res.Reviewed++
		case StateCached:
			res.Cached++
		case StateFellBack:
			res.FellBack++
		case StateFailed:
			return res, fmt.Errorf("batch %s: %w", b.Key, r.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	doc, err := Reassemble(results)
	if err != nil {
		return res, err
	}
	res.Document = doc
	return res, nil
}

// dropOverlapping removes cached entries whose range intersects the
// selected pages.
func dropOverlapping(ctx context.Context, store cache.Store, pages []page.Page, logger *zap.Logger) error {
	if store == nil || len(pages) == 0 {
		return nil
	}
	first, last := pages[0].Number, pages[len(pages)-1].Number
	keys, err := store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list cache entries: %w", err)
	}
	for _, k := range keys {
		if k.End < first || k.Start > last {
			continue
		}
		if err := store.Delete(ctx, k); err != nil {
			return fmt.Errorf("drop cache entry %s: %w", k, err)
		}
		logger.Info("dropped cached batch", zap.String("range", k.String()))
	}
	return nil
}
