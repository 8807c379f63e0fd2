package pipeline

import (
	"context"
	"fmt"
)

// SchemaValidator checks raw JSON against a compiled schema. It returns every
// violation found; err is non-nil only when the payload could not be parsed.
type SchemaValidator interface {
	Validate(payload []byte) ([]Issue, error)
}

// PayloadMapper deserializes raw JSON into a typed structure. Content
// problems are reported as *Error with KindMalformedPayload; any other error
// is fatal.
type PayloadMapper interface {
	Map(payload []byte) (any, error)
}

// StructureChecker applies field constraints to a typed structure and
// returns every violated constraint.
type StructureChecker interface {
	Check(v any) ([]Issue, error)
}

// SchemaStage validates the payload against a JSON schema.
type SchemaStage struct {
	validator SchemaValidator
}

// NewSchemaStage creates a SchemaStage.
func NewSchemaStage(v SchemaValidator) *SchemaStage {
	return &SchemaStage{validator: v}
}

// Name implements Stage.
func (s *SchemaStage) Name() string { return "schema" }

// Reaches implements Stage.
func (s *SchemaStage) Reaches() State { return StateSchemaChecked }

// Apply implements Stage.
func (s *SchemaStage) Apply(_ context.Context, env *Envelope) (*Envelope, error) {
	issues, err := s.validator.Validate(env.Payload())
	if err != nil {
		return nil, MalformedPayload(err)
	}
	if len(issues) > 0 {
		return nil, SchemaViolation(issues)
	}
	return env, nil
}

// MapperStage deserializes the payload into the configured structure type.
type MapperStage struct {
	mapper PayloadMapper
}

// NewMapperStage creates a MapperStage.
func NewMapperStage(m PayloadMapper) *MapperStage {
	return &MapperStage{mapper: m}
}

// Name implements Stage.
func (s *MapperStage) Name() string { return "mapper" }

// Reaches implements Stage.
func (s *MapperStage) Reaches() State { return StateDeserialized }

// Apply implements Stage.
func (s *MapperStage) Apply(_ context.Context, env *Envelope) (*Envelope, error) {
	v, err := s.mapper.Map(env.Payload())
	if err != nil {
		if _, ok := AsError(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("map payload: %w", err)
	}
	if err := env.SetTyped(v); err != nil {
		return nil, err
	}
	return env, nil
}

// StructureStage validates the typed structure produced by MapperStage.
type StructureStage struct {
	checker StructureChecker
}

// NewStructureStage creates a StructureStage.
func NewStructureStage(c StructureChecker) *StructureStage {
	return &StructureStage{checker: c}
}

// Name implements Stage.
func (s *StructureStage) Name() string { return "structure" }

// Reaches implements Stage.
func (s *StructureStage) Reaches() State { return StateStructureChecked }

// Apply implements Stage. Without a typed value there is nothing to check.
func (s *StructureStage) Apply(_ context.Context, env *Envelope) (*Envelope, error) {
	v, ok := env.Typed()
	if !ok {
		return env, nil
	}
	issues, err := s.checker.Check(v)
	if err != nil {
		return nil, fmt.Errorf("check structure: %w", err)
	}
	if len(issues) > 0 {
		return nil, StructuralViolation(issues)
	}
	return env, nil
}
