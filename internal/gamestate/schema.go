package gamestate

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks incoming state records against the published JSON
// schema before they are persisted. Decode is more forgiving than the
// schema; the validator exists so the ingest boundary rejects garbage
// early with a usable message.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator(schemaPath string) (*Validator, error) {
	s, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", schemaPath, err)
	}
	return &Validator{schema: s}, nil
}

func (v *Validator) ValidateRecord(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}
