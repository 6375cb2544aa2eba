// Package page assembles the immutable per-page inputs for a
// conversion run: page number, normalized image, and raw OCR text.
package page

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	rpdf "rsc.io/pdf"
)

// Page is one unit of input. Pages are built once per run and never
// mutated afterwards.
type Page struct {
	Number  int
	Image   []byte
	OCRText string
}

// Selection is an inclusive page range.
type Selection struct {
	Start int
	End   int
}

// ParseRange parses a page selector: "5" for a single page, "1-10"
// for a range, "5-" for page 5 through the end. An empty selector
// means the whole document.
func ParseRange(s string, maxPages int) (Selection, error) {
	if maxPages < 1 {
		return Selection{}, fmt.Errorf("document has no pages")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Selection{Start: 1, End: maxPages}, nil
	}
	if i := strings.Index(s, "-"); i >= 0 {
		start, err := strconv.Atoi(s[:i])
		if err != nil {
			return Selection{}, fmt.Errorf("invalid page range %q", s)
		}
		end := maxPages
		if rest := s[i+1:]; rest != "" {
			end, err = strconv.Atoi(rest)
			if err != nil {
				return Selection{}, fmt.Errorf("invalid page range %q", s)
			}
		}
		if end > maxPages {
			end = maxPages
		}
		if start < 1 || start > end {
			return Selection{}, fmt.Errorf("invalid page range %q", s)
		}
		return Selection{Start: start, End: end}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxPages {
		return Selection{}, fmt.Errorf("invalid page %q", s)
	}
	return Selection{Start: n, End: n}, nil
}

// PDFPageCount reads the page count from a PDF file.
func PDFPageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	doc, err := rpdf.NewReader(f, st.Size())
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return doc.NumPage(), nil
}
