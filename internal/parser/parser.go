// Package parser defines the document-understanding interface the gateway
// proxies to: given a file and a response schema, a Parser returns
// structured JSON.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Schema types, mirroring the generative API's type vocabulary.
const (
	TypeString = "STRING"
	TypeNumber = "NUMBER"
	TypeArray  = "ARRAY"
	TypeObject = "OBJECT"
)

// TypeFromName maps user-supplied field type names to schema types. Dates
// travel as YYYY-MM-DD strings.
func TypeFromName(name string) string {
	switch strings.ToLower(name) {
	case "number":
		return TypeNumber
	case "array_string":
		return TypeArray
	case "object":
		return TypeObject
	default: // "string", "date", unknown
		return TypeString
	}
}

// Schema constrains the structured output of a parse call.
type Schema struct {
	Type       string             `json:"type"`
	Required   []string           `json:"required,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
}

// SchemaFromFields builds a flat object schema from (field name -> type
// name) pairs supplied by the caller.
func SchemaFromFields(fields map[string]string) *Schema {
	props := make(map[string]*Schema, len(fields))
	for field, typeName := range fields {
		t := TypeFromName(typeName)
		s := &Schema{Type: t}
		if t == TypeArray {
			s.Items = &Schema{Type: TypeString}
		}
		props[field] = s
	}
	return &Schema{Type: TypeObject, Properties: props}
}

// Document is an uploaded file handed to the parser.
type Document struct {
	MIMEType string
	Data     []byte
}

type Parser interface {
	// ParseDocument extracts structured data from a file according to the
	// schema.
	ParseDocument(ctx context.Context, prompt string, doc *Document, schema *Schema) (map[string]any, error)
	// GenerateJSON runs a text-only prompt expected to yield a JSON object.
	GenerateJSON(ctx context.Context, prompt string) (map[string]any, error)
	// Chat runs a free-form text prompt.
	Chat(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ExtractJSON pulls the first JSON object out of a model response that may
// be wrapped in prose.
func ExtractJSON(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from response: %w", err)
	}
	return out, nil
}
