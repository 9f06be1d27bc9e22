package catalogs

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const buildingsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["buildings"],
  "properties": {
    "buildings": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type", "name", "specialty", "capacity"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "specialty": {"enum": ["miner", "factory", "utility", "storage", "power-plant"]},
          "inputs": {"$ref": "#/$defs/stacks"},
          "outputs": {"$ref": "#/$defs/stacks"},
          "cost": {"$ref": "#/$defs/stacks"},
          "accepts_any": {"type": "boolean"},
          "any_quantity": {"type": "integer", "minimum": 0},
          "output_ports": {"type": "array", "items": {"type": "integer", "minimum": 0}, "maxItems": 64},
          "capacity": {"type": "integer", "minimum": 1},
          "energy_consumption": {"type": "integer", "minimum": 0}
        },
        "additionalProperties": false
      }
    }
  }
}`

const stacksDefs = `{
  "stacks": {
    "type": "array",
    "items": {
      "type": "object",
      "required": ["kind", "count"],
      "properties": {
        "kind": {"enum": ["iron-ore", "coal", "stone", "copper-ore", "iron-plate", "copper-plate", "steel-plate", "iron-gear", "steel-gear", "energy"]},
        "count": {"type": "integer", "minimum": 1}
      },
      "additionalProperties": false
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func buildingsSchemaDoc() string {
	// Splice $defs into the root object.
	return buildingsSchema[:len(buildingsSchema)-1] + `,
  "$defs": ` + stacksDefs + "\n}"
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("buildings.schema.json", buildingsSchemaDoc())
	})
	return schema, schemaErr
}

func validateBuildingsJSON(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}
