package scai

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type responseSchema struct {
	schema *gojsonschema.Schema
}

func mustSchema(doc string) *responseSchema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("compile response schema: %v", err))
	}
	return &responseSchema{schema: s}
}

func (s *responseSchema) validate(body []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(msgs, "; "))
}

var questionSchema = mustSchema(`{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status":   {"type": "string"},
    "question": {"type": "array", "items": {"type": "string"}},
    "response": {"type": ["array", "null"], "items": {"type": "string"}},
    "id":       {"type": ["string", "integer"]},
    "goal":     {"type": ["string", "null"]},
    "point":    {"type": ["string", "null"]}
  }
}`)

var answerSchema = mustSchema(`{
  "type": "object",
  "required": ["explanation"],
  "properties": {
    "explanation": {"type": "array", "items": {"type": "string"}}
  }
}`)

var explainSchema = mustSchema(`{
  "type": "object",
  "required": ["explain"],
  "properties": {
    "explain": {
      "oneOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}}
      ]
    }
  }
}`)
