package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/domain/structure"
)

// KeyExpression extracts a routing key from the typed structure of an
// envelope. It implements pipeline.KeyEvaluator.
type KeyExpression struct {
	expr string
	eval *Evaluator
	prg  cel.Program
}

// NewKeyExpression compiles expr against the fields of t. When t is nil the
// expression is only parsed: there will never be a typed value to evaluate
// it against, so every evaluation yields no key.
func NewKeyExpression(expr string, t *structure.Type) (*KeyExpression, error) {
	if t == nil {
		if err := checkLimits(expr); err != nil {
			return nil, err
		}
		env, err := cel.NewEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to create environment: %w", err)
		}
		if _, issues := env.Parse(expr); issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("invalid CEL expression: %w", issues.Err())
		}
		return &KeyExpression{expr: expr}, nil
	}

	eval, err := NewEvaluator(t.Fields())
	if err != nil {
		return nil, err
	}
	if err := eval.ValidateExpression(expr); err != nil {
		return nil, fmt.Errorf("structure %s: %w", t.Name, err)
	}
	prg, err := eval.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &KeyExpression{expr: expr, eval: eval, prg: prg}, nil
}

// Expression implements pipeline.KeyEvaluator.
func (k *KeyExpression) Expression() string { return k.expr }

// Evaluate implements pipeline.KeyEvaluator.
func (k *KeyExpression) Evaluate(ctx context.Context, env *pipeline.Envelope) (any, error) {
	typed, ok := env.Typed()
	if !ok || k.prg == nil {
		return nil, nil
	}
	return k.eval.Evaluate(ctx, k.prg, typed)
}
