// Package output renders the assembled document and writes it to disk.
package output

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// Render produces the output bytes for the given format. Markdown is
// passed through untouched; HTML wraps the converted body in a minimal
// standalone page.
func Render(format, title, doc string) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(doc + "\n"), nil
	case FormatHTML:
		var body bytes.Buffer
		if err := md.Convert([]byte(doc), &body); err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		var page bytes.Buffer
		fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(title))
		page.Write(body.Bytes())
		page.WriteString("</body>\n</html>\n")
		return page.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// Write stores data at path atomically: a temp file in the same
// directory is renamed over the target, so readers never observe a
// partial document.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".out-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
