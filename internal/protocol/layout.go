package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/layout.schema.json
var layoutSchemaJSON string

var (
	layoutOnce   sync.Once
	layoutSchema *jsonschema.Schema
	layoutErr    error
)

func compiledLayoutSchema() (*jsonschema.Schema, error) {
	layoutOnce.Do(func() {
		layoutSchema, layoutErr = jsonschema.CompileString("layout.schema.json", layoutSchemaJSON)
	})
	return layoutSchema, layoutErr
}

// ValidateLayout checks a raw LAYOUT message against the embedded schema.
func ValidateLayout(raw []byte) error {
	s, err := compiledLayoutSchema()
	if err != nil {
		return fmt.Errorf("compile layout schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode layout: %w", err)
	}
	return s.Validate(doc)
}

// DecodeLayout validates and decodes a LAYOUT message.
func DecodeLayout(raw []byte) (LayoutMsg, error) {
	var m LayoutMsg
	if err := ValidateLayout(raw); err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("decode layout: %w", err)
	}
	if m.ProtocolVersion != Version {
		return m, fmt.Errorf("protocol_version %q, want %q", m.ProtocolVersion, Version)
	}
	return m, nil
}
