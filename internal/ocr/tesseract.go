package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs local OCR through gosseract. Each call uses a fresh
// client because gosseract clients are not safe for concurrent reuse.
type Tesseract struct {
	Languages []string
}

func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{Languages: languages}
}

func (t *Tesseract) ExtractPage(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.Languages...); err != nil {
		return "", fmt.Errorf("set ocr language: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("load ocr image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}
