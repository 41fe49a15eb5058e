package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionSchema constrains types only; range checks happen while mapping
// so one bad optional field does not throw away the others.
var extractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"provider":   map[string]any{"type": []string{"string", "null"}},
		"amount":     map[string]any{"type": []string{"number", "string", "null"}},
		"date":       map[string]any{"type": []string{"string", "null"}},
		"currency":   map[string]any{"type": []string{"string", "null"}},
		"confidence": map[string]any{"type": []string{"number", "null"}},
	},
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(extractionSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("extraction.json")
	})
	return compiledSchema, compileErr
}

// validateExtraction checks a model reply against extractionSchema
func validateExtraction(doc []byte) error {
	schema, err := compiled()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
