package casepaper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opd-hims/casepaper/internal/platform/ai"
)

const extractorSystemPrompt = `You parse normalized clinical text into structured encounter data.
Return ONLY JSON that matches the JSON Schema provided.
Copy values exactly as written in the text; do not invent, infer or convert units.
A field with no mentions gets an empty array. Never output null.`

// ExtractorStage decomposes normalized clinical text into StructuredData.
// Empty fields are valid outcomes; only transport, decode and schema failures
// are errors.
type ExtractorStage struct {
	client ChatCompleter
}

func NewExtractorStage(client ChatCompleter) *ExtractorStage {
	return &ExtractorStage{client: client}
}

func (s *ExtractorStage) Extract(ctx context.Context, normalizedText string) (StructuredData, error) {
	schema := BuildEncounterJSONSchema()

	out, err := s.client.Complete(ctx, ai.ChatRequest{
		System:   extractorSystemPrompt + "\n\nJSON Schema:\n" + mustJSON(schema),
		User:     normalizedText,
		JSONMode: true,
	})
	if err != nil {
		return StructuredData{}, fmt.Errorf("extract call: %w", err)
	}

	raw := []byte(out)
	if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
		return StructuredData{}, fmt.Errorf("extraction schema validation: %w", err)
	}

	var data StructuredData
	if err := json.Unmarshal(raw, &data); err != nil {
		return StructuredData{}, fmt.Errorf("unmarshal extraction: %w", err)
	}
	data.EnsureInit()
	return data, nil
}
