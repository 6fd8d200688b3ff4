// Package schema provides JSON Schema generation and validation for
// capability inputs.
package schema

import (
	"reflect"
	"strconv"
	"strings"
)

// Schema represents a JSON Schema subset describing a capability's input.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Description string             `json:"description,omitempty"`
	Default     any                `json:"default,omitempty"`
	Enum        []any              `json:"enum,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`

	// AdditionalProperties controls whether object fields not named in
	// Properties are accepted. Objects generated from structs reject
	// unknown fields unless this is set to true.
	AdditionalProperties *bool `json:"additionalProperties,omitempty"`
}

// Generate creates a JSON Schema from a Go value.
func Generate(v any) (*Schema, error) {
	return generateFromType(reflect.TypeOf(v))
}

// GenerateFromType creates a JSON Schema from a reflect.Type.
func GenerateFromType(t reflect.Type) (*Schema, error) {
	return generateFromType(t)
}

// Bool returns a pointer to a bool, for AdditionalProperties.
func Bool(v bool) *bool {
	return &v
}

func generateFromType(t reflect.Type) (*Schema, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return generateStructSchema(t)
	case reflect.String:
		return &Schema{Type: "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}, nil
	case reflect.Bool:
		return &Schema{Type: "boolean"}, nil
	case reflect.Slice, reflect.Array:
		return generateArraySchema(t)
	case reflect.Map:
		// Maps accept arbitrary keys.
		return &Schema{Type: "object", AdditionalProperties: Bool(true)}, nil
	default:
		return &Schema{}, nil
	}
}

func generateStructSchema(t reflect.Type) (*Schema, error) {
	schema := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				fieldName = parts[0]
			}
		}

		fieldSchema, err := generateFromType(field.Type)
		if err != nil {
			return nil, err
		}

		parseJSONSchemaTag(field.Tag.Get("jsonschema"), fieldSchema, &schema.Required, fieldName)

		schema.Properties[fieldName] = fieldSchema
	}

	return schema, nil
}

func generateArraySchema(t reflect.Type) (*Schema, error) {
	itemSchema, err := generateFromType(t.Elem())
	if err != nil {
		return nil, err
	}

	return &Schema{
		Type:  "array",
		Items: itemSchema,
	}, nil
}

func parseJSONSchemaTag(tag string, schema *Schema, required *[]string, fieldName string) {
	if tag == "" {
		return
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)

		switch {
		case part == "required":
			*required = append(*required, fieldName)
		case strings.HasPrefix(part, "description="):
			schema.Description = strings.TrimPrefix(part, "description=")
		case strings.HasPrefix(part, "minimum="):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(part, "minimum="), 64); err == nil {
				schema.Minimum = &v
			}
		case strings.HasPrefix(part, "maximum="):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(part, "maximum="), 64); err == nil {
				schema.Maximum = &v
			}
		case strings.HasPrefix(part, "enum="):
			for _, e := range strings.Split(strings.TrimPrefix(part, "enum="), "|") {
				schema.Enum = append(schema.Enum, e)
			}
		}
	}
}
