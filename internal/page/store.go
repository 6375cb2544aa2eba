package page

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/christian-oudard/pdf-conversion/internal/ocr"
	"github.com/christian-oudard/pdf-conversion/internal/raster"
)

// Store holds the pages of one run. Page numbers are ascending; a
// missing source image leaves a numbering gap, which is reported as a
// warning at load time and again by the allocator.
type Store struct {
	pages []Page
}

func (s *Store) Pages() []Page { return s.pages }
func (s *Store) Count() int    { return len(s.pages) }

type LoadConfig struct {
	Renderer raster.Renderer
	Engine   ocr.Engine
	// OCRCachePath holds the paginated full-document OCR output, reused
	// across runs. Empty disables caching.
	OCRCachePath string
	ForceOCR     bool
	Logger       *zap.Logger
}

// Load renders and OCRs the selected pages. The OCR pass covers the
// whole document once and is cached; the per-page images are kept only
// for the selection.
func Load(ctx context.Context, sel Selection, cfg LoadConfig) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	total, err := cfg.Renderer.PageCount()
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if total < 1 {
		return nil, errors.New("no rendered pages found")
	}

	texts, err := loadOCR(ctx, total, cfg, logger)
	if err != nil {
		return nil, err
	}
	texts = ocr.Align(texts, total, logger)

	var pages []Page
	for n := sel.Start; n <= sel.End && n <= total; n++ {
		img, err := cfg.Renderer.RenderPage(ctx, n)
		if errors.Is(err, raster.ErrPageMissing) {
			logger.Warn("page image missing, skipping", zap.Int("page", n))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n, err)
		}
		pages = append(pages, Page{Number: n, Image: img, OCRText: texts[n-1]})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages in selection %d-%d", sel.Start, sel.End)
	}
	return &Store{pages: pages}, nil
}

func loadOCR(ctx context.Context, total int, cfg LoadConfig, logger *zap.Logger) ([]string, error) {
	if cfg.OCRCachePath != "" && !cfg.ForceOCR {
		if b, err := os.ReadFile(cfg.OCRCachePath); err == nil && len(b) > 0 {
			logger.Info("using cached ocr output", zap.String("path", cfg.OCRCachePath))
			return ocr.SplitPages(string(b)), nil
		}
	}

	logger.Info("running ocr", zap.Int("pages", total))
	texts := make([]string, total)
	for n := 1; n <= total; n++ {
		img, err := cfg.Renderer.RenderPage(ctx, n)
		if errors.Is(err, raster.ErrPageMissing) {
			logger.Warn("page image missing, ocr skipped", zap.Int("page", n))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n, err)
		}
		text, err := cfg.Engine.ExtractPage(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("ocr page %d: %w", n, err)
		}
		texts[n-1] = text
	}
	if cfg.OCRCachePath != "" {
		if err := os.WriteFile(cfg.OCRCachePath, []byte(ocr.JoinPages(texts)), 0o644); err != nil {
			logger.Warn("failed to cache ocr output", zap.Error(err))
		}
	}
	return texts, nil
}
