package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// trailSchemaJSON is the JSON Schema for serialized trail documents.
// Embedded as a constant to avoid filesystem dependencies.
const trailSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://repforce.dev/schemas/trail.json",
  "type": "object",
  "required": ["name", "trigger_type", "nodes"],
  "properties": {
    "id": { "type": "string" },
    "tenant_id": { "type": "string" },
    "name": {
      "type": "string",
      "minLength": 1
    },
    "trigger_type": {
      "type": "string",
      "enum": ["MANUAL", "WEBHOOK", "DB_EVENT", "SCHEDULER"]
    },
    "trigger_config": { "$ref": "#/$defs/trigger_config" },
    "nodes": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": { "$ref": "#/$defs/node" }
    },
    "is_active": { "type": "boolean" },
    "created_at": { "type": "string" },
    "updated_at": { "type": "string" }
  },
  "additionalProperties": false,
  "$defs": {
    "trigger_config": {
      "type": "object",
      "properties": {
        "context": { "type": "string" },
        "entity_id": { "type": "string" },
        "event": {
          "type": "string",
          "enum": ["created", "updated", "deleted"]
        },
        "filter": { "type": "string" },
        "guard": { "type": "string" },
        "body_schema": {},
        "extract": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "cron": { "type": "string" }
      },
      "additionalProperties": false
    },
    "node": {
      "type": "object",
      "required": ["id", "name", "kind"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "name": {
          "type": "string",
          "minLength": 1
        },
        "kind": {
          "type": "string",
          "enum": ["trigger", "action", "decision"]
        },
        "action": { "$ref": "#/$defs/action" },
        "decision": { "$ref": "#/$defs/decision" },
        "next": { "type": "string" }
      },
      "additionalProperties": false,
      "allOf": [
        {
          "if": { "properties": { "kind": { "const": "action" } } },
          "then": { "required": ["action"] }
        },
        {
          "if": { "properties": { "kind": { "const": "decision" } } },
          "then": { "required": ["decision"] }
        }
      ]
    },
    "action": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": { "type": "string" },
        "config": { "type": "object" },
        "next": { "type": "string" }
      },
      "additionalProperties": false
    },
    "decision": {
      "type": "object",
      "required": ["condition", "next_true", "next_false"],
      "properties": {
        "condition": {
          "type": "string",
          "minLength": 1
        },
        "next_true": { "type": "string" },
        "next_false": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// DocumentValidator validates serialized trail documents and webhook bodies
// against JSON Schema Draft 2020-12. It is safe for concurrent use.
type DocumentValidator struct {
	trailSchema *jsonschema.Schema

	// mu guards the cache for dynamically compiled webhook body schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewDocumentValidator creates a DocumentValidator with the trail schema
// pre-compiled.
func NewDocumentValidator() (*DocumentValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(trailSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal trail schema: %w", err)
	}
	if err := c.AddResource("https://repforce.dev/schemas/trail.json", doc); err != nil {
		return nil, fmt.Errorf("add trail schema resource: %w", err)
	}

	compiled, err := c.Compile("https://repforce.dev/schemas/trail.json")
	if err != nil {
		return nil, fmt.Errorf("compile trail schema: %w", err)
	}

	return &DocumentValidator{
		trailSchema: compiled,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateDocument validates a trail against the trail JSON Schema. This
// catches shape defects (missing branch labels, unknown keys) before the
// structural validator walks the graph.
func (v *DocumentValidator) ValidateDocument(trail *schema.Trail) error {
	if trail == nil {
		return schema.NewError(schema.ErrCodeValidation, "trail is nil")
	}

	doc, err := toJSONValue(trail)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize trail").WithCause(err)
	}

	if err := v.trailSchema.Validate(doc); err != nil {
		return toTrailError(err)
	}
	return nil
}

// ValidateDocumentBytes validates a raw trail document before it is
// deserialized. This is the entry point for external input (API bodies,
// files loaded by the CLI), where defects such as absent branch labels are
// still visible.
func (v *DocumentValidator) ValidateDocumentBytes(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "trail document is not valid JSON").WithCause(err)
	}
	if err := v.trailSchema.Validate(doc); err != nil {
		return toTrailError(err)
	}
	return nil
}

// ValidateBody validates a webhook body against a JSON Schema provided as
// raw bytes. The schema is compiled and cached for subsequent calls.
func (v *DocumentValidator) ValidateBody(body map[string]any, bodySchema []byte) error {
	if len(bodySchema) == 0 {
		return nil // no schema means no validation needed
	}

	compiled, err := v.getOrCompile(bodySchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid body schema").WithCause(err)
	}

	// Round-trip so numbers become json.Number, as the library requires.
	doc, err := toJSONValue(body)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize body").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toTrailError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *DocumentValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid collisions.
	url := fmt.Sprintf("repforce://body-schema/%d", len(v.cache))

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toTrailError converts a jsonschema.ValidationError into a TrailError with
// one message per leaf violation.
func toTrailError(err error) *schema.TrailError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("trail document failed validation with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
