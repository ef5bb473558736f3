package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates a model's JSON output before it is decoded into a Go value.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

func CompileSchema(name string, raw string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := compiler.AddResource(resource, strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

func MustCompileSchema(name string, raw string) *Schema {
	s, err := CompileSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode validates content against the schema and unmarshals it into out.
// Any failure wraps ErrMalformedOutput.
func (s *Schema) Decode(content string, out any) error {
	body := StripFences(content)
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fmt.Errorf("%s: not json: %v: %w", s.name, err, ErrMalformedOutput)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("%s: schema validation failed: %v: %w", s.name, err, ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%s: unmarshal: %v: %w", s.name, err, ErrMalformedOutput)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
