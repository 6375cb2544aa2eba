package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

const systemPrompt = `You are a document conversion assistant. Convert scanned book pages to markdown.

Omit print artifacts:
- Page numbers at top/bottom of page
- Running headers/footers (book title, chapter title repeated on every page)

Markdown format:
- # for headers
- **text** for bold, *text* for italic
- $...$ for inline math, $$...$$ for display math

Ensure that formulas are transcribed correctly, with valid mathematical logic. Take care with variable names, superscript, and subscript.

For blank pages, output only: <BLANK>

No code fences, no greetings, no explanations. Output ONLY the raw markdown content.`

// Gemini reviews batches with a multimodal model call: the page images
// are attached inline alongside the combined OCR text.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY")
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: c, model: model}, nil
}

func (g *Gemini) Review(ctx context.Context, images [][]byte, ocrTexts []string) (string, error) {
	prompt := fmt.Sprintf(`Here is OCR output from %d consecutive scanned book pages.
Review against the original images and correct any errors in the text or formulas.

OCR OUTPUT:
%s`, len(ocrTexts), strings.Join(ocrTexts, "\n\n"))

	parts := make([]*genai.Part, 0, len(images)+1)
	parts = append(parts, &genai.Part{Text: prompt})
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: "image/png", Data: img},
		})
	}
	content := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, content, cfg)
	if err != nil {
		return "", fmt.Errorf("review call failed: %w", err)
	}
	if reason, refused := classifyRefusal(res); refused {
		return "", &RefusalError{Reason: reason}
	}
	text := stripCodeFences(res.Text())
	if text == "" {
		return "", errors.New("review returned empty response")
	}
	return text, nil
}

// classifyRefusal distinguishes content-policy blocks from every other
// outcome. Only a blocked prompt or a safety-terminated candidate
// counts; anything else surfaces as a normal error upstream.
func classifyRefusal(res *genai.GenerateContentResponse) (string, bool) {
	if res.PromptFeedback != nil && res.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return string(res.PromptFeedback.BlockReason), true
	}
	for _, c := range res.Candidates {
		switch c.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
			return string(c.FinishReason), true
		}
	}
	return "", false
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i != -1 {
			s = s[i+1:]
		}
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
