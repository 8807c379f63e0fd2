package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// KeyEvaluator resolves a routing key value from an envelope.
//
// Evaluate returns (nil, nil) when the expression correctly evaluates to null
// and an error when the expression targets something that does not exist.
type KeyEvaluator interface {
	Expression() string
	Evaluate(ctx context.Context, env *Envelope) (any, error)
}

// SelectKeyEvaluator applies the key precedence rule: a JSON path expression,
// when configured, always wins over a structure expression. Either argument
// may be nil; nil is returned when neither is configured.
func SelectKeyEvaluator(jsonPath, structure KeyEvaluator) KeyEvaluator {
	if jsonPath != nil {
		return jsonPath
	}
	return structure
}

// KeyStage extracts the routing key with a single evaluator.
type KeyStage struct {
	evaluator KeyEvaluator
	logger    *slog.Logger
}

// NewKeyStage creates a KeyStage.
func NewKeyStage(e KeyEvaluator, logger *slog.Logger) *KeyStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyStage{evaluator: e, logger: logger}
}

// Name implements Stage.
func (s *KeyStage) Name() string { return "key" }

// Reaches implements Stage.
func (s *KeyStage) Reaches() State { return StateKeyExtracted }

// Apply implements Stage.
func (s *KeyStage) Apply(ctx context.Context, env *Envelope) (*Envelope, error) {
	expr := s.evaluator.Expression()

	v, err := s.evaluator.Evaluate(ctx, env)
	if pe, ok := AsError(err); ok {
		return nil, pe
	}
	if err != nil {
		s.logger.Warn("key extraction failed", "expression", expr, "error", err)
		return nil, KeyExtractionFailure(expr, err)
	}

	key, ok, err := KeyBytes(v)
	if err != nil {
		return nil, KeyExtractionFailure(expr, err)
	}
	s.logger.Debug("key extracted", "expression", expr, "present", ok)
	if !ok {
		return env, nil
	}
	if err := env.SetKey(key); err != nil {
		return nil, err
	}
	return env, nil
}

// KeyBytes converts an extracted value to its canonical string form and then
// to bytes. ok is false for null.
func KeyBytes(v any) (key []byte, ok bool, err error) {
	switch t := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		return []byte(t), true, nil
	case []byte:
		return t, true, nil
	case json.Number:
		return []byte(t.String()), true, nil
	case bool:
		return []byte(strconv.FormatBool(t)), true, nil
	case int:
		return []byte(strconv.Itoa(t)), true, nil
	case int32:
		return []byte(strconv.FormatInt(int64(t), 10)), true, nil
	case int64:
		return []byte(strconv.FormatInt(t, 10)), true, nil
	case uint:
		return []byte(strconv.FormatUint(uint64(t), 10)), true, nil
	case uint32:
		return []byte(strconv.FormatUint(uint64(t), 10)), true, nil
	case uint64:
		return []byte(strconv.FormatUint(t, 10)), true, nil
	case float32:
		return []byte(formatFloat(float64(t), 32)), true, nil
	case float64:
		return []byte(formatFloat(t, 64)), true, nil
	case fmt.Stringer:
		return []byte(t.String()), true, nil
	default:
		// Objects and arrays keep their JSON text.
		b, err := json.Marshal(t)
		if err != nil {
			return nil, false, fmt.Errorf("unsupported key value %T: %w", v, err)
		}
		return b, true, nil
	}
}

// formatFloat prints whole numbers without a fraction so a JSON 20 and a
// decoded float64(20) give the same key.
func formatFloat(f float64, bits int) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}
