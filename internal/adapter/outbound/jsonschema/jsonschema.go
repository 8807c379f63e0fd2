// Package jsonschema validates raw JSON payloads against a JSON Schema.
package jsonschema

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// Validator holds a compiled schema. It implements pipeline.SchemaValidator
// and is safe for concurrent use.
type Validator struct {
	location string
	schema   *gojsonschema.Schema
}

// Load compiles the schema at location, which is either a local file path
// or a file://, http:// or https:// URL. A missing or malformed schema is
// an error.
func Load(location string) (*Validator, error) {
	ref, err := reference(location)
	if err != nil {
		return nil, err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", location, err)
	}
	return &Validator{location: location, schema: schema}, nil
}

// FromBytes compiles an inline schema document.
func FromBytes(doc []byte) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return &Validator{location: "inline", schema: schema}, nil
}

// Location returns where the schema was loaded from.
func (v *Validator) Location() string { return v.location }

// Validate implements pipeline.SchemaValidator. Every violation is reported;
// err is set only when the payload is not valid JSON.
func (v *Validator) Validate(payload []byte) ([]pipeline.Issue, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}

	issues := make([]pipeline.Issue, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		issues = append(issues, pipeline.Issue{
			Path:    pointer(re.Field()),
			Message: re.Description(),
		})
	}
	return issues, nil
}

func reference(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("schema location is empty")
	}
	if u, err := url.Parse(location); err == nil {
		switch u.Scheme {
		case "http", "https", "file":
			return location, nil
		}
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("failed to resolve schema path %s: %w", location, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// pointer turns a gojsonschema field ("(root)", "address.city") into a JSON
// pointer fragment ("#", "#/address/city").
func pointer(field string) string {
	field = strings.TrimPrefix(field, "(root)")
	field = strings.TrimPrefix(field, ".")
	if field == "" {
		return "#"
	}
	return "#/" + strings.ReplaceAll(field, ".", "/")
}
