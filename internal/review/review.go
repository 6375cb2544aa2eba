// Package review calls the external review service that checks a
// batch of OCR text against the original page images and returns
// corrected text.
package review

import (
	"context"
	"errors"
	"fmt"
)

// BlankToken marks a blank page in review output. It is stripped when
// the final document is assembled.
const BlankToken = "<BLANK>"

// Reviewer reviews one batch: page images plus the raw OCR text for
// those pages, in page order. A content-policy refusal is reported as
// *RefusalError; every other error is fatal for the batch.
type Reviewer interface {
	Review(ctx context.Context, images [][]byte, ocrTexts []string) (string, error)
}

// RefusalError is the classified failure returned when the review
// service declines to process the content. Callers degrade to raw OCR
// text instead of failing the run.
type RefusalError struct {
	Reason string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("review refused by content policy: %s", e.Reason)
}

// IsRefusal reports whether err is (or wraps) a content-policy refusal.
func IsRefusal(err error) bool {
	var r *RefusalError
	return errors.As(err, &r)
}

// Noop returns the OCR text unreviewed. Used when no review service
// is configured.
type Noop struct{}

func (Noop) Review(_ context.Context, _ [][]byte, ocrTexts []string) (string, error) {
	return joinPages(ocrTexts), nil
}

func joinPages(texts []string) string {
	out := ""
	for i, t := range texts {
		if i > 0 {
			out += "\n\n"
		}
		out += t
	}
	return out
}
