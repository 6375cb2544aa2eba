package pipeline

import "strings"

// Fallback produces the degraded text for a refused batch: the raw OCR
// text of its pages, in page order, joined by blank lines. The result
// is cached like reviewed text, so a refused batch is not retried on
// later runs.
func Fallback(b Batch) string {
	texts := make([]string, len(b.Pages))
	for i, p := range b.Pages {
		texts[i] = p.OCRText
	}
	return strings.Join(texts, "\n\n")
}
