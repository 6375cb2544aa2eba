// Package pipeline is the batch conversion core: it partitions pages
// into ranges, schedules review calls with bounded parallelism,
// degrades refused batches to raw OCR text, and reassembles the
// completed batches into one document.
package pipeline

import (
	"github.com/christian-oudard/pdf-conversion/internal/cache"
	"github.com/christian-oudard/pdf-conversion/internal/page"
)

// State is the per-batch processing state.
type State int

const (
	StatePending State = iota
	StateInReview
	// StateReviewed: the review service returned corrected text.
	StateReviewed
	// StateCached: text reused from a previous run, no review call made.
	StateCached
	// StateFellBack: review refused; raw OCR text used instead.
	StateFellBack
	// StateFailed: fatal error, aborts the run.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInReview:
		return "in-review"
	case StateReviewed:
		return "reviewed"
	case StateCached:
		return "cached"
	case StateFellBack:
		return "fell-back"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Completed reports whether the state carries usable batch text.
func (s State) Completed() bool {
	return s == StateReviewed || s == StateCached || s == StateFellBack
}

// Batch is a contiguous page range processed as one review unit.
type Batch struct {
	Index int
	Key   cache.Key
	Pages []page.Page
}

func (b Batch) inputs() (images [][]byte, texts []string) {
	images = make([][]byte, len(b.Pages))
	texts = make([]string, len(b.Pages))
	for i, p := range b.Pages {
		images[i] = p.Image
		texts[i] = p.OCRText
	}
	return images, texts
}

// Result is the terminal outcome of one batch.
type Result struct {
	Batch Batch
	State State
	Text  string
	Err   error
}
