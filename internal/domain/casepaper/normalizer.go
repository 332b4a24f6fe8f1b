package casepaper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opd-hims/casepaper/internal/platform/ai"
)

// ErrNormalizationFailed is returned when the normalizer call fails or
// produces no output at all.
var ErrNormalizationFailed = errors.New("normalization produced no output")

// NoMedicalContentSentinel is what the normalizer returns when nothing
// clinical remains after filtering. It flows through the pipeline as a valid,
// non-empty normalized text.
const NoMedicalContentSentinel = "No medical content detected"

const normalizerSystemPrompt = `You clean up OCR transcripts of clinical case papers.
Your job is strictly subtractive. You remove noise, you never add, infer or rephrase.

Remove:
- clinic/hospital names, logos, letterhead and slogans
- addresses, phone numbers, email addresses, websites
- registration numbers, billing and payment details
- signatures, stamps, page footers

Keep VERBATIM, with no paraphrasing and no unit conversion:
- symptoms, complaints and history
- vital signs with their values and units exactly as written
- diagnoses
- medicines with dosages, frequencies and durations exactly as written
- tests ordered and advice given

Return only the cleaned text. If nothing clinical remains, return exactly:
` + NoMedicalContentSentinel

// NormalizerStage strips non-clinical content from the raw OCR text.
type NormalizerStage struct {
	client ChatCompleter
}

func NewNormalizerStage(client ChatCompleter) *NormalizerStage {
	return &NormalizerStage{client: client}
}

func (s *NormalizerStage) Normalize(ctx context.Context, rawText string) (string, error) {
	out, err := s.client.Complete(ctx, ai.ChatRequest{
		System: normalizerSystemPrompt,
		User:   rawText,
	})
	if err != nil {
		return "", fmt.Errorf("normalize call: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrNormalizationFailed
	}
	return out, nil
}
