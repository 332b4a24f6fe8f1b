package casepaper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opd-hims/casepaper/internal/platform/ai"
)

const validatorSystemPrompt = `You review structured clinical extractions against their source text.
For each field, check the extracted value actually appears in the source and is plausibly formatted.
Correct values the extractor clearly mis-parsed (e.g. a blood pressure split across fields).
Do not add information that is absent from the source text.
Return ONLY a JSON object of the form:
{"data": <the corrected structured data, same shape as the input>,
 "notes": [{"field": "...", "original": "...", "corrected": "...", "reason": "..."}]}
If nothing needs correcting, return the data unchanged with an empty notes array.`

// ValidatorStage cross-checks extracted fields against the source texts and
// emits a report of what it changed. The orchestrator treats its failure as
// non-fatal.
type ValidatorStage struct {
	client ChatCompleter
}

func NewValidatorStage(client ChatCompleter) *ValidatorStage {
	return &ValidatorStage{client: client}
}

func (s *ValidatorStage) Refine(ctx context.Context, data StructuredData, rawText, normalizedText string) (StructuredData, *ValidationReport, error) {
	user := fmt.Sprintf("Extracted data:\n%s\n\nOriginal OCR text:\n%s\n\nNormalized clinical text:\n%s",
		mustJSON(data), rawText, normalizedText)

	out, err := s.client.Complete(ctx, ai.ChatRequest{
		System:   validatorSystemPrompt,
		User:     user,
		JSONMode: true,
	})
	if err != nil {
		return StructuredData{}, nil, fmt.Errorf("validate call: %w", err)
	}

	var parsed struct {
		Data  StructuredData   `json:"data"`
		Notes []ValidationNote `json:"notes"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return StructuredData{}, nil, fmt.Errorf("unmarshal validation: %w", err)
	}

	parsed.Data.EnsureInit()
	if parsed.Notes == nil {
		parsed.Notes = []ValidationNote{}
	}
	return parsed.Data, &ValidationReport{Notes: parsed.Notes}, nil
}
