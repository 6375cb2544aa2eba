package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/christian-oudard/pdf-conversion/internal/ocr"
	"github.com/christian-oudard/pdf-conversion/internal/review"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Reassemble joins completed batch texts into the final document,
// ordered by starting page regardless of completion order. Page
// markers, separators, and blank-page tokens are stripped and runs of
// blank lines collapsed.
func Reassemble(results map[int]Result) (string, error) {
	completed := make([]Result, 0, len(results))
	for _, r := range results {
		if !r.State.Completed() {
			return "", fmt.Errorf("batch %s not completed (%s)", r.Batch.Key, r.State)
		}
		completed = append(completed, r)
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].Batch.Key.Start < completed[j].Batch.Key.Start
	})

	parts := make([]string, len(completed))
	for i, r := range completed {
		parts[i] = r.Text
	}
	doc := strings.Join(parts, "\n\n")

	doc = ocr.StripMarkers(doc)
	doc = strings.ReplaceAll(doc, review.BlankToken, "")
	doc = excessNewlines.ReplaceAllString(doc, "\n\n")
	return strings.TrimSpace(doc), nil
}
