// Package schema validates JSON payloads returned by upstream providers
// before the rest of the gateway trusts their shape.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ChatReply describes the deepenglish chat endpoint's response.
const ChatReply = `{
	"type": "object",
	"required": ["success"],
	"properties": {
		"success": {"type": "boolean"},
		"message": {"type": "string"}
	},
	"if": {"properties": {"success": {"const": true}}},
	"then": {"required": ["message"]}
}`

// ImageReply describes the image endpoint's response. Only the first image
// URL is required.
const ImageReply = `{
	"type": "object",
	"required": ["data"],
	"properties": {
		"data": {
			"type": "object",
			"required": ["images"],
			"properties": {
				"images": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"required": ["url"],
						"properties": {"url": {"type": "string", "minLength": 1}}
					}
				}
			}
		}
	}
}`

// ValidationError lists every way a document failed its schema.
type ValidationError struct {
	Name   string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid document: %s", e.Name, strings.Join(e.Errors, "; "))
}

// Schema is a compiled JSON schema. It is safe for concurrent use.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// Compile parses a JSON schema document.
func Compile(name, source string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompile is like Compile but panics on error. It is meant for the
// package-level schemas above.
func MustCompile(name, source string) *Schema {
	s, err := Compile(name, source)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the name the schema was compiled with.
func (s *Schema) Name() string {
	return s.name
}

// ValidateBytes checks a raw JSON document. Malformed JSON is reported as a
// plain error; schema violations as *ValidationError.
func (s *Schema) ValidateBytes(raw []byte) error {
	return s.validate(gojsonschema.NewBytesLoader(raw))
}

// Validate checks an already decoded Go value.
func (s *Schema) Validate(v any) error {
	return s.validate(gojsonschema.NewGoLoader(v))
}

func (s *Schema) validate(doc gojsonschema.JSONLoader) error {
	result, err := s.schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("%s: schema validation failed: %w", s.name, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return &ValidationError{Name: s.name, Errors: msgs}
	}

	return nil
}
