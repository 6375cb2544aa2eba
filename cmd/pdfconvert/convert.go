package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/christian-oudard/pdf-conversion/internal/cache"
	"github.com/christian-oudard/pdf-conversion/internal/ocr"
	"github.com/christian-oudard/pdf-conversion/internal/output"
	"github.com/christian-oudard/pdf-conversion/internal/page"
	"github.com/christian-oudard/pdf-conversion/internal/pipeline"
	"github.com/christian-oudard/pdf-conversion/internal/raster"
	"github.com/christian-oudard/pdf-conversion/internal/review"
)

func convertCmd() *cobra.Command {
	var (
		workDir    string
		out        string
		format     string
		pages      string
		batchSize  int
		parallel   int
		split      bool
		redoOCR    bool
		redoReview bool
		cacheKind  string
		reviewer   string
		model      string
		ocrLangs   string
	)

	cmd := &cobra.Command{
		Use:   "convert <pdf>",
		Short: "OCR, review, and reassemble a scanned PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			pdfPath := args[0]
			stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
			if workDir == "" {
				workDir = stem + "_work"
			}
			pngDir := filepath.Join(workDir, "png")
			if err := os.MkdirAll(pngDir, 0o755); err != nil {
				return err
			}

			renderer := raster.NewDir(pngDir, raster.Options{Split: split}, logger)
			total, err := renderer.PageCount()
			if err != nil {
				return err
			}
			if total == 0 {
				expected, err := page.PDFPageCount(pdfPath)
				if err != nil {
					return fmt.Errorf("no page images in %s and cannot read %s: %w", pngDir, pdfPath, err)
				}
				width := raster.NameWidth(expected)
				return fmt.Errorf("no page images found: render the %d pages of %s into %s as %s first",
					expected, pdfPath, pngDir, raster.PageName(1, width))
			}

			sel, err := page.ParseRange(pages, total)
			if err != nil {
				return err
			}

			store, err := openStore(cacheKind, workDir)
			if err != nil {
				return err
			}
			defer store.Close()

			rev, err := openReviewer(cmd, reviewer, model)
			if err != nil {
				return err
			}

			st, err := page.Load(ctx, sel, page.LoadConfig{
				Renderer:     renderer,
				Engine:       ocr.NewTesseract(strings.Split(ocrLangs, ",")...),
				OCRCachePath: filepath.Join(workDir, "ocr_full.md"),
				ForceOCR:     redoOCR,
				Logger:       logger,
			})
			if err != nil {
				return err
			}

			res, err := pipeline.Run(ctx, st.Pages(), pipeline.Config{
				BatchSize:   batchSize,
				Parallel:    parallel,
				Paired:      split,
				ForceReview: redoReview,
				Reviewer:    rev,
				Store:       store,
				Progress:    &consoleProgress{w: cmd.ErrOrStderr()},
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			if out == "" {
				out = filepath.Join(workDir, stem+"."+format)
			}
			data, err := output.Render(format, stem, res.Document)
			if err != nil {
				return err
			}
			if err := output.Write(out, data); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out)
			fmt.Fprintf(cmd.ErrOrStderr(), "batches: %d (reviewed %d, cached %d, fell back %d)\n",
				res.Batches, res.Reviewed, res.Cached, res.FellBack)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workDir, "workdir", "w", "", "working directory for images, OCR text, and the batch cache (default: <pdf>_work)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: <workdir>/<pdf>.<format>)")
	cmd.Flags().StringVarP(&format, "format", "f", output.FormatMarkdown, "output format: md|html")
	cmd.Flags().StringVarP(&pages, "pages", "p", "", "page selection: N, N-M, or N- (default: all pages)")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", pipeline.DefaultBatchSize, "pages per review batch")
	cmd.Flags().IntVarP(&parallel, "parallel", "j", 1, "maximum review calls in flight")
	cmd.Flags().BoolVar(&split, "split", false, "treat each scan as a two-page spread and split it")
	cmd.Flags().BoolVar(&redoOCR, "redo-ocr", false, "ignore cached OCR output and re-run OCR")
	cmd.Flags().BoolVar(&redoReview, "redo-review", false, "drop cached batch text for the selection and re-review")
	cmd.Flags().StringVar(&cacheKind, "cache", "fs", "batch cache backend: fs|sqlite")
	cmd.Flags().StringVar(&reviewer, "review", "gemini", "review provider: off|gemini")
	cmd.Flags().StringVar(&model, "model", "", "review model name (default: provider default)")
	cmd.Flags().StringVar(&ocrLangs, "ocr-langs", "eng", "comma-separated tesseract languages")
	return cmd
}

func openStore(kind, workDir string) (cache.Store, error) {
	switch kind {
	case "fs":
		return cache.NewFS(filepath.Join(workDir, "batches"))
	case "sqlite":
		return cache.OpenSQLite(filepath.Join(workDir, "cache.db"))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", kind)
	}
}

func openReviewer(cmd *cobra.Command, provider, model string) (review.Reviewer, error) {
	switch provider {
	case "off":
		return review.Noop{}, nil
	case "gemini":
		return review.NewGemini(cmd.Context(), os.Getenv("GOOGLE_API_KEY"), model)
	default:
		return nil, fmt.Errorf("unknown review provider %q", provider)
	}
}
