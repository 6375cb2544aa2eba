// Package ocr wraps the text-extraction engine and owns the paginated
// output format: multi-page extractions carry a page marker between
// logical pages so downstream stages can split, realign, and finally
// strip them.
package ocr

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// PageSeparator is the fixed-length token emitted between pages in
// paginated extraction output. It never appears in the final document.
const PageSeparator = "------------------------------------------------"

// Page markers look like {7}------...------ where 7 is the 0-based page id.
var pageMarkerPattern = regexp.MustCompile(`\{(\d+)\}` + regexp.QuoteMeta(PageSeparator))

// Engine extracts text from a single page image.
type Engine interface {
	ExtractPage(ctx context.Context, png []byte) (string, error)
}

// JoinPages renders per-page text as one paginated document, with a
// page marker preceding each page.
func JoinPages(pages []string) string {
	var b strings.Builder
	for i, p := range pages {
		fmt.Fprintf(&b, "{%d}%s\n", i, PageSeparator)
		b.WriteString(strings.TrimSpace(p))
		b.WriteString("\n\n")
	}
	return b.String()
}

// SplitPages splits a paginated document back into per-page text,
// indexed by the page ids embedded in the markers. Text before the
// first marker (or a document with no markers at all) is returned as a
// single page.
func SplitPages(doc string) []string {
	matches := pageMarkerPattern.FindAllStringSubmatchIndex(doc, -1)
	if len(matches) == 0 {
		return []string{strings.TrimSpace(doc)}
	}
	var pages []string
	for i, m := range matches {
		id := 0
		fmt.Sscanf(doc[m[2]:m[3]], "%d", &id)
		start := m[1]
		end := len(doc)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		for len(pages) <= id {
			pages = append(pages, "")
		}
		pages[id] = strings.TrimSpace(doc[start:end])
	}
	return pages
}

// Align forces the per-page slice to exactly n entries. Extraction can
// come back with fewer or more segments than the page count; padding
// with empty text keeps page numbering aligned instead of silently
// shifting content onto the wrong pages.
func Align(pages []string, n int, logger *zap.Logger) []string {
	if len(pages) == n {
		return pages
	}
	if logger != nil {
		logger.Warn("ocr page count mismatch",
			zap.Int("extracted", len(pages)),
			zap.Int("expected", n))
	}
	if len(pages) > n {
		return pages[:n]
	}
	out := make([]string, n)
	copy(out, pages)
	return out
}

// StripMarkers removes page markers and bare separator tokens from
// assembled text.
func StripMarkers(s string) string {
	s = pageMarkerPattern.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, PageSeparator, "")
}
