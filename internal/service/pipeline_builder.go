package service

import (
	"fmt"
	"log/slog"

	"github.com/streamkit/http-source/internal/adapter/outbound/cel"
	"github.com/streamkit/http-source/internal/adapter/outbound/jsonpath"
	"github.com/streamkit/http-source/internal/adapter/outbound/jsonschema"
	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/domain/structure"
)

// StageConfig selects the active pipeline stages. It is resolved once at
// startup; every empty field omits its stage.
type StageConfig struct {
	// SchemaLocation is a file path or URL of a JSON Schema.
	SchemaLocation string

	// JSONKeyExpression is a JSON path evaluated against the raw payload.
	// It has precedence over StructureKeyExpression.
	JSONKeyExpression string

	// StructureType names a registered structure type.
	StructureType string

	// StructureKeyExpression is a CEL expression over the typed structure.
	StructureKeyExpression string

	// MappedHeaderPatterns are globs selecting inbound headers to keep.
	// Empty means the standard request headers.
	MappedHeaderPatterns []string
}

// BuildPipeline compiles every configured stage and assembles them in the
// fixed order schema, mapper, structure, key, headers. Any compile failure
// (missing schema, bad expression, unknown structure type) is returned.
func BuildPipeline(cfg StageConfig, reg *structure.Registry, logger *slog.Logger, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stages []pipeline.Stage

	if cfg.SchemaLocation != "" {
		v, err := jsonschema.Load(cfg.SchemaLocation)
		if err != nil {
			return nil, err
		}
		stages = append(stages, pipeline.NewSchemaStage(v))
	}

	var typ *structure.Type
	if cfg.StructureType != "" {
		t, err := reg.Lookup(cfg.StructureType)
		if err != nil {
			return nil, err
		}
		checker, err := t.Checker()
		if err != nil {
			return nil, fmt.Errorf("structure %s: %w", t.Name, err)
		}
		typ = t
		stages = append(stages,
			pipeline.NewMapperStage(t.Mapper()),
			pipeline.NewStructureStage(checker),
		)
	}

	keyEval, err := buildKeyEvaluator(cfg, typ)
	if err != nil {
		return nil, err
	}
	if keyEval != nil {
		stages = append(stages, pipeline.NewKeyStage(keyEval, logger))
	}

	patterns := cfg.MappedHeaderPatterns
	if len(patterns) == 0 {
		patterns = []string{pipeline.StandardRequestHeaders}
	}
	matcher, err := pipeline.NewHeaderMatcher(patterns)
	if err != nil {
		return nil, err
	}
	stages = append(stages, pipeline.NewHeaderStage(matcher))

	opts = append([]pipeline.Option{pipeline.WithLogger(logger)}, opts...)
	return pipeline.New(stages, opts...), nil
}

// buildKeyEvaluator compiles both key expressions, so a broken one fails
// startup even when precedence means it will never run.
func buildKeyEvaluator(cfg StageConfig, typ *structure.Type) (pipeline.KeyEvaluator, error) {
	var jsonKey, structKey pipeline.KeyEvaluator

	if cfg.JSONKeyExpression != "" {
		k, err := jsonpath.New(cfg.JSONKeyExpression)
		if err != nil {
			return nil, err
		}
		jsonKey = k
	}
	if cfg.StructureKeyExpression != "" {
		k, err := cel.NewKeyExpression(cfg.StructureKeyExpression, typ)
		if err != nil {
			return nil, fmt.Errorf("structure key expression: %w", err)
		}
		structKey = k
	}

	return pipeline.SelectKeyEvaluator(jsonKey, structKey), nil
}
