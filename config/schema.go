package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/pyscout/core/schema"
)

// GenerateSchema generates the JSON Schema for the pyscout configuration.
// It reflects the Config struct from types.go; the Extensions field is
// excluded (extensions carry their own schemas) and additional properties
// stay allowed so extension sections validate.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		// Extension sections are arbitrary top-level keys.
		AllowAdditionalProperties: true,
		// Expand struct references instead of using $ref for a cleaner schema.
		ExpandedStruct: true,
		// Use YAML field names for property names
		FieldNameTag: "yaml",
	}

	out := r.Reflect(&Config{})
	out.Title = "Pyscout Configuration"
	out.Description = "Schema for pyscout.yml properties."
	out.Version = "http://json-schema.org/draft-07/schema#"

	return json.MarshalIndent(out, "", "  ")
}

// NewSchemaValidator returns a validator backed by the embedded schema.
func NewSchemaValidator() (*schema.Validator, error) {
	return schema.NewValidator()
}
