package casepaper

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildEncounterJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map describing StructuredData. It is passed to the model as an
// output constraint and used locally to validate what comes back.
func BuildEncounterJSONSchema() map[string]any {
	stringArray := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"symptoms": stringArray,
			"vitals": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"temperature":   map[string]any{"type": "string"},
					"bloodPressure": map[string]any{"type": "string"},
					"pulse":         map[string]any{"type": "string"},
					"weight":        map[string]any{"type": "string"},
					"height":        map[string]any{"type": "string"},
				},
			},
			"diagnoses": stringArray,
			"prescriptions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"medicine":     map[string]any{"type": "string", "minLength": 1},
						"dosage":       map[string]any{"type": "string"},
						"frequency":    map[string]any{"type": "string"},
						"duration":     map[string]any{"type": "string"},
						"instructions": map[string]any{"type": "string"},
					},
					"required": []string{"medicine"},
				},
			},
			"testsOrdered": stringArray,
			"advice":       stringArray,
		},
		"required": []string{"symptoms", "vitals", "diagnoses", "prescriptions", "testsOrdered", "advice"},
	}
}

// ValidateJSONAgainstSchema validates data against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
