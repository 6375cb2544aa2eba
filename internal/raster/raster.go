// Package raster serves page images for review. Pages are rendered by
// an external rasterizer into a directory of PNGs; this package
// normalizes them: always grayscale, downsampled when the scan
// resolution is excessive, and optionally split into left/right
// halves for double-page spreads.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

// ErrPageMissing reports that no rendered image exists for a page.
var ErrPageMissing = errors.New("page image missing")

type Options struct {
	// TargetDPI is the resolution pages are normalized to. Zero means 200.
	TargetDPI int
	// MaxDPI is the threshold above which pages are downsampled to
	// TargetDPI. Zero means 300.
	MaxDPI int
	// PageWidthPt is the physical page width in PostScript points used
	// to estimate scan DPI. Zero means 612 (US letter).
	PageWidthPt float64
	// Split treats each rendered image as a two-page spread; book page
	// 2n-1 is the left half of source page n, 2n the right half.
	Split bool
}

func (o Options) withDefaults() Options {
	if o.TargetDPI <= 0 {
		o.TargetDPI = 200
	}
	if o.MaxDPI <= 0 {
		o.MaxDPI = 300
	}
	if o.PageWidthPt <= 0 {
		o.PageWidthPt = 612
	}
	return o
}

// Renderer provides the image for a book page. Deterministic for a
// given source and page number.
type Renderer interface {
	RenderPage(ctx context.Context, page int) ([]byte, error)
	PageCount() (int, error)
}

// Dir is a Renderer over a directory of page_NNN.png files.
type Dir struct {
	dir    string
	opts   Options
	logger *zap.Logger
}

func NewDir(dir string, opts Options, logger *zap.Logger) *Dir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dir{dir: dir, opts: opts.withDefaults(), logger: logger}
}

// NameWidth returns the zero-pad width for page file names: at least
// three digits, wider for long documents.
func NameWidth(maxPage int) int {
	w := len(fmt.Sprintf("%d", maxPage))
	if w < 3 {
		w = 3
	}
	return w
}

// PageName returns the file name for a rendered page.
func PageName(page, width int) string {
	return fmt.Sprintf("page_%0*d.png", width, page)
}

func (d *Dir) sourceFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.dir, "page_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (d *Dir) PageCount() (int, error) {
	files, err := d.sourceFiles()
	if err != nil {
		return 0, err
	}
	n := len(files)
	if d.opts.Split {
		n *= 2
	}
	return n, nil
}

func (d *Dir) RenderPage(ctx context.Context, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := page
	if d.opts.Split {
		src = (page + 1) / 2
	}
	files, err := d.sourceFiles()
	if err != nil {
		return nil, err
	}
	if src < 1 || src > len(files) {
		return nil, fmt.Errorf("%w: page %d", ErrPageMissing, page)
	}
	b, err := os.ReadFile(files[src-1])
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: page %d", ErrPageMissing, page)
	}
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	if d.opts.Split {
		left, right := SplitSpread(img)
		if page%2 == 1 {
			img = left
		} else {
			img = right
		}
	}
	return d.normalize(img, page)
}

// normalize converts to grayscale and downsamples scans whose
// effective DPI exceeds the threshold.
func (d *Dir) normalize(img image.Image, page int) ([]byte, error) {
	gray := Grayscale(img)
	dpi := float64(gray.Bounds().Dx()) / (d.opts.PageWidthPt / 72)
	if d.opts.Split {
		// A spread half covers half the physical page width.
		dpi *= 2
	}
	if dpi > float64(d.opts.MaxDPI) {
		scale := float64(d.opts.TargetDPI) / dpi
		d.logger.Debug("downsampling page",
			zap.Int("page", page),
			zap.Float64("dpi", dpi),
			zap.Int("target_dpi", d.opts.TargetDPI))
		gray = Downsample(gray, scale)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Grayscale converts any image to 8-bit grayscale.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Downsample resizes by scale using Catmull-Rom interpolation.
func Downsample(img *image.Gray, scale float64) *image.Gray {
	b := img.Bounds()
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// SplitSpread cuts an image in half vertically.
func SplitSpread(img image.Image) (left, right image.Image) {
	b := img.Bounds()
	mid := b.Min.X + b.Dx()/2
	l := image.NewGray(image.Rect(0, 0, mid-b.Min.X, b.Dy()))
	draw.Draw(l, l.Bounds(), img, b.Min, draw.Src)
	r := image.NewGray(image.Rect(0, 0, b.Max.X-mid, b.Dy()))
	draw.Draw(r, r.Bounds(), img, image.Pt(mid, b.Min.Y), draw.Src)
	return l, r
}
