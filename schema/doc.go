// Package schema provides JSON Schema generation and structural validation
// for capability inputs.
//
// A tool's input schema is the single source of truth for required and
// optional fields and their types. Schemas are generated automatically
// from Go struct types when a typed handler is registered:
//
//	type AddInput struct {
//	    A int `json:"a" jsonschema:"required"`
//	    B int `json:"b" jsonschema:"required"`
//	}
//
// Supported jsonschema tag directives: required, description=, minimum=,
// maximum=, enum=a|b|c.
//
// # Validation
//
// Validate checks a JSON document against the schema before the handler
// runs: required fields must be present, declared types must match, and
// fields outside the declared properties are rejected unless the schema
// sets AdditionalProperties to true. Failures carry the path of the
// offending field:
//
//	err := s.Validate(json.RawMessage(`{"a":"x","b":3}`))
//	// err: a: expected integer, got string
//
// Validation failures are application-level input errors, reported to the
// caller as InvalidParams. They are never treated as protocol parse errors
// and never reach the handler.
package schema
