// Package schema compiles and validates the disclosure sub-schemas (§6.3)
// used by the Gateway's rule 7 (schema_violation). Compilation happens
// once at startup via a Registry; validation is a pure read afterwards,
// giving `github.com/santhosh-tekuri/jsonschema/v5` its first real job in
// this codebase.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// disclosureSchemas holds the literal JSON Schema document for each
// disclosure message_type in §6.3. Severity is constrained to the
// canonical low/med/high enum.
var disclosureSchemas = map[string]string{
	"ack": `{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"]
	}`,
	"clarifying_question": `{
		"type": "object",
		"properties": {"question": {"type": "string"}},
		"required": ["question"]
	}`,
	"progress": `{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"]
	}`,
	"finding": `{
		"type": "object",
		"properties": {
			"bullets": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["bullets"]
	}`,
	"risk": `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"severity": {"type": "string", "enum": ["low", "med", "high"]},
			"mitigation": {"type": "string"}
		},
		"required": ["text", "severity"]
	}`,
	"result": `{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"]
	}`,
	"artifact_link": `{
		"type": "object",
		"properties": {
			"label": {"type": "string"},
			"url": {"type": "string"}
		},
		"required": ["label", "url"]
	}`,
}

// Registry holds one compiled JSON Schema per disclosure message_type.
type Registry struct {
	compiled map[string]*jsonschema.Schema
}

// NewRegistry compiles every disclosure schema in §6.3. It fails fast at
// startup rather than at the first candidate if any schema is malformed.
func NewRegistry() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	r := &Registry{compiled: make(map[string]*jsonschema.Schema, len(disclosureSchemas))}

	for messageType, doc := range disclosureSchemas {
		url := "mem://" + messageType + ".json"
		if err := compiler.AddResource(url, bytes.NewReader([]byte(doc))); err != nil {
			return nil, fmt.Errorf("schema: add resource %s: %w", messageType, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s: %w", messageType, err)
		}
		r.compiled[messageType] = sch
	}
	return r, nil
}

// Validate checks content (raw JSON bytes) against the schema registered
// for messageType. An unknown messageType is itself a validation failure
// — the Gateway's rule 5 (disallowed_message_type) should already have
// filtered these out, but Validate does not assume that ordering.
func (r *Registry) Validate(messageType string, content []byte) error {
	sch, ok := r.compiled[messageType]
	if !ok {
		return fmt.Errorf("schema: no schema registered for message_type %q", messageType)
	}
	var v interface{}
	if err := json.Unmarshal(content, &v); err != nil {
		return fmt.Errorf("schema: content is not valid JSON: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// KnownMessageTypes returns the disclosure message_type vocabulary (§6.3)
// in a stable order, used by the Facilitator to populate a mic_grant's
// default allowed_message_types.
func KnownMessageTypes() []string {
	return []string{"ack", "clarifying_question", "progress", "finding", "risk", "result", "artifact_link"}
}
