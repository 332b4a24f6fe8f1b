package casepaper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opd-hims/casepaper/internal/platform/ai"
)

// ErrEmptyExtraction is returned when OCR succeeds but yields no text. An
// empty transcript cannot feed later stages, so it is a stage failure.
var ErrEmptyExtraction = errors.New("no text extracted from image")

// ChatCompleter is the slice of the AI client the stages need. Each stage
// takes it as an injected dependency so tests can substitute a fake.
type ChatCompleter interface {
	Complete(ctx context.Context, req ai.ChatRequest) (string, error)
}

const ocrSystemPrompt = `You are an OCR engine for clinical documents.
Transcribe ALL text visible in the image exactly as written, including handwritten text.
Preserve line breaks, numbers, units and abbreviations exactly.
Do not interpret, summarize, translate or correct anything.
If the image contains no readable text, return an empty response.`

// OCRStage turns image bytes into raw unstructured text via the vision model.
type OCRStage struct {
	client ChatCompleter
}

func NewOCRStage(client ChatCompleter) *OCRStage {
	return &OCRStage{client: client}
}

func (s *OCRStage) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	out, err := s.client.Complete(ctx, ai.ChatRequest{
		System:    ocrSystemPrompt,
		User:      "Transcribe every piece of text in this document image.",
		ImageData: image,
		ImageMIME: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("ocr call: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyExtraction
	}
	return out, nil
}
