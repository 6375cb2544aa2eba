package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/christian-oudard/pdf-conversion/internal/cache"
	"github.com/christian-oudard/pdf-conversion/internal/page"
)

// Plan partitions the ordered page list into batches of nominally
// batchSize pages. A valid cached range starting exactly at the next
// unprocessed page is reused as-is, whatever its length, so completed
// work from earlier runs keeps its boundaries. Gaps in the page
// numbering terminate the current batch and are logged; they are
// never folded into a range.
func Plan(ctx context.Context, pages []page.Page, batchSize int, paired bool, store cache.Store, logger *zap.Logger) ([]Batch, error) {
	if len(pages) == 0 {
		return nil, errors.New("no pages to allocate")
	}
	if batchSize < 1 {
		batchSize = 1
	}
	if paired && batchSize%2 != 0 {
		// Paired pages (split spreads) must not straddle batches.
		batchSize++
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byStart := make(map[int]cache.Key)
	if store != nil {
		keys, err := store.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			byStart[k.Start] = k
		}
	}

	var batches []Batch
	i := 0
	for i < len(pages) {
		start := pages[i].Number
		if i > 0 && start != pages[i-1].Number+1 {
			logger.Warn("gap in page sequence",
				zap.Int("after", pages[i-1].Number),
				zap.Int("next", start))
		}

		if k, ok := byStart[start]; ok && coversContiguous(pages, i, k) && validEntry(ctx, store, k) {
			batches = append(batches, Batch{
				Index: len(batches),
				Key:   k,
				Pages: pages[i : i+k.Len()],
			})
			i += k.Len()
			continue
		}

		// New batch: up to batchSize pages, cut at any numbering gap.
		j := i
		for j+1 < len(pages) && j-i+1 < batchSize && pages[j+1].Number == pages[j].Number+1 {
			j++
		}
		batches = append(batches, Batch{
			Index: len(batches),
			Key:   cache.Key{Start: start, End: pages[j].Number},
			Pages: pages[i : j+1],
		})
		i = j + 1
	}
	return batches, nil
}

// coversContiguous reports whether pages[i:] starts a contiguous run
// matching the cached range exactly.
func coversContiguous(pages []page.Page, i int, k cache.Key) bool {
	last := i + k.Len() - 1
	if last >= len(pages) {
		return false
	}
	for j := i; j <= last; j++ {
		if pages[j].Number != k.Start+(j-i) {
			return false
		}
	}
	return true
}

func validEntry(ctx context.Context, store cache.Store, k cache.Key) bool {
	if store == nil {
		return false
	}
	_, ok, err := store.Get(ctx, k)
	return err == nil && ok
}
