package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildSheetJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is embedded in the instruction as the output-shape
// constraint and used locally as an advisory check after decoding.
func BuildSheetJSONSchema() map[string]any {
	scoreProp := map[string]any{"type": []string{"number", "null"}, "minimum": 0.0, "maximum": 10.0}

	movement := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"number":      map[string]any{"type": "integer", "minimum": 1},
			"description": map[string]any{"type": "string"},
			"scores": map[string]any{
				"type":                 "object",
				"additionalProperties": scoreProp,
			},
			"remark": map[string]any{"type": "string"},
		},
		"required": []string{"number"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"document_type": map[string]any{"type": "string", "enum": []string{"dressage_test", "other"}},
			"horse_name":    map[string]any{"type": "string"},
			"rider_name":    map[string]any{"type": "string"},
			"event_name":    map[string]any{"type": "string"},
			"test_date":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"test_level":    map[string]any{"type": "string"},
			"discipline":    map[string]any{"type": "string"},
			"percentage":    map[string]any{"type": []string{"number", "null"}, "minimum": 0.0, "maximum": 100.0},
			"total_points":  map[string]any{"type": []string{"number", "null"}},
			"movements":     map[string]any{"type": "array", "items": movement},
			"notes":         map[string]any{"type": "string"},
		},
		"additionalProperties": false,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
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
