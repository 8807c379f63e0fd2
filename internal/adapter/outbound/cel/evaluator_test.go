package cel

import (
	"context"
	"strings"
	"testing"

	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/domain/structure"
)

type address struct {
	City string `json:"city"`
}

type person struct {
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname"`
	Age       int      `json:"age"`
	Address   *address `json:"address"`
	Tags      []string `json:"tags,omitempty"`
	ID        int64    `json:"id,omitempty"`
}

func personType() *structure.Type {
	return &structure.Type{
		Name: "person",
		New:  func() any { return &person{} },
	}
}

func jan() *person {
	return &person{
		Firstname: "jan",
		Lastname:  "kowalski",
		Age:       20,
		Address:   &address{City: "warsaw"},
	}
}

func typedEnvelope(t *testing.T, v any) *pipeline.Envelope {
	t.Helper()
	env := pipeline.NewEnvelope([]byte(`{}`), nil)
	if err := env.SetTyped(v); err != nil {
		t.Fatalf("SetTyped() error: %v", err)
	}
	return env
}

func evalKey(t *testing.T, expr string, v any) (any, error) {
	t.Helper()
	k, err := NewKeyExpression(expr, personType())
	if err != nil {
		t.Fatalf("NewKeyExpression(%q) error: %v", expr, err)
	}
	return k.Evaluate(context.Background(), typedEnvelope(t, v))
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator(personType().Fields())
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestKeyExpression_Scalars(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"firstname", "jan"},
		{"age", "20"},
		{"address.city", "warsaw"},
		{`firstname + "-" + lastname`, "jan-kowalski"},
		{"lastname.upperAscii()", "KOWALSKI"},
		{`glob("w*", address.city) ? "w" : "other"`, "w"},
		{`field_or(address, "zip", "none")`, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := evalKey(t, tt.expr, jan())
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			key, ok, err := pipeline.KeyBytes(v)
			if err != nil || !ok {
				t.Fatalf("KeyBytes(%v) = %v, %v", v, ok, err)
			}
			if string(key) != tt.want {
				t.Errorf("key = %q, want %q", key, tt.want)
			}
		})
	}
}

func TestKeyExpression_NullGivesNil(t *testing.T) {
	p := jan()
	p.Address = nil

	v, err := evalKey(t, "address", p)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if v != nil {
		t.Errorf("Evaluate() = %v, want nil", v)
	}

	// omitempty fields are still declared and bound to null
	v, err = evalKey(t, "tags", jan())
	if err != nil {
		t.Fatalf("Evaluate(tags) error: %v", err)
	}
	if v != nil {
		t.Errorf("Evaluate(tags) = %v, want nil", v)
	}
}

func TestKeyExpression_MissingNestedField(t *testing.T) {
	if _, err := evalKey(t, "address.zip", jan()); err == nil {
		t.Fatal("Evaluate(address.zip) expected error, got nil")
	}
}

func TestKeyExpression_UnknownTopLevelFieldRejected(t *testing.T) {
	_, err := NewKeyExpression("nickname", personType())
	if err == nil {
		t.Fatal("NewKeyExpression(nickname) expected error, got nil")
	}
	if !strings.Contains(err.Error(), "invalid CEL") {
		t.Errorf("error %q should contain 'invalid CEL'", err.Error())
	}
}

func TestKeyExpression_LargeIntegerPrecision(t *testing.T) {
	p := jan()
	p.ID = 9007199254740993

	v, err := evalKey(t, "id", p)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	key, _, _ := pipeline.KeyBytes(v)
	if string(key) != "9007199254740993" {
		t.Errorf("key = %q, want %q", key, "9007199254740993")
	}
}

func TestKeyExpression_CompositeResults(t *testing.T) {
	v, err := evalKey(t, "address", jan())
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	key, _, _ := pipeline.KeyBytes(v)
	if string(key) != `{"city":"warsaw"}` {
		t.Errorf("key = %q", key)
	}

	v, err = evalKey(t, `[firstname, lastname]`, jan())
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	key, _, _ = pipeline.KeyBytes(v)
	if string(key) != `["jan","kowalski"]` {
		t.Errorf("key = %q", key)
	}
}

func TestKeyExpression_WithoutStructureType(t *testing.T) {
	k, err := NewKeyExpression("firstname", nil)
	if err != nil {
		t.Fatalf("NewKeyExpression() error: %v", err)
	}
	v, err := k.Evaluate(context.Background(), pipeline.NewEnvelope([]byte(`{}`), nil))
	if err != nil || v != nil {
		t.Errorf("Evaluate() = %v, %v, want nil, nil", v, err)
	}

	if _, err := NewKeyExpression("this is not valid !!!", nil); err == nil {
		t.Error("NewKeyExpression(invalid) expected error, got nil")
	}
}

func TestKeyExpression_NoTypedValue(t *testing.T) {
	k, err := NewKeyExpression("firstname", personType())
	if err != nil {
		t.Fatalf("NewKeyExpression() error: %v", err)
	}
	v, err := k.Evaluate(context.Background(), pipeline.NewEnvelope([]byte(`{}`), nil))
	if err != nil || v != nil {
		t.Errorf("Evaluate() = %v, %v, want nil, nil", v, err)
	}
	if k.Expression() != "firstname" {
		t.Errorf("Expression() = %q", k.Expression())
	}
}

func TestValidateExpression_Invalid(t *testing.T) {
	eval, err := NewEvaluator(personType().Fields())
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []struct {
		name string
		expr string
		want string // substring expected in error
	}{
		{"empty", "", "empty"},
		{"syntax error", "this is not valid !!!", "invalid CEL"},
		{"undefined var", "nonexistent_var", "invalid CEL"},
		{"too long", strings.Repeat("a", 1025), "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if err == nil {
				t.Fatalf("ValidateExpression(%q) expected error, got nil", tt.expr)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateExpression_NestingDepth(t *testing.T) {
	eval, err := NewEvaluator(personType().Fields())
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	// buildNested creates an expression with n levels of parenthesis nesting around "firstname".
	buildNested := func(depth int) string {
		return strings.Repeat("(", depth) + "firstname" + strings.Repeat(")", depth)
	}

	if err := eval.ValidateExpression(buildNested(50)); err != nil {
		t.Errorf("expression at nesting limit (50) should be valid, got: %v", err)
	}

	err = eval.ValidateExpression(buildNested(51))
	if err == nil {
		t.Fatal("expected error for 51 levels of nesting, got nil")
	}
	if !strings.Contains(err.Error(), "51 levels") {
		t.Errorf("error %q should mention '51 levels'", err.Error())
	}

	// Unbalanced brackets are within the depth limit and caught by the compiler.
	err = eval.ValidateExpression("(((firstname)")
	if err == nil || !strings.Contains(err.Error(), "invalid CEL") {
		t.Errorf("unbalanced brackets error = %v, want compiler error", err)
	}
}

func TestValidateNesting(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"no_nesting", "true", false},
		{"single_level", "(true)", false},
		{"50_levels", strings.Repeat("(", 50) + "true" + strings.Repeat(")", 50), false},
		{"51_levels", strings.Repeat("(", 51) + "true" + strings.Repeat(")", 51), true},
		{"interleaved_types", "([{true}])", false},
		{"only_openers", strings.Repeat("(", 60), true},
		{"deep_square_brackets", strings.Repeat("[", 51) + strings.Repeat("]", 51), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNesting(tt.expr)
			if tt.wantErr && err == nil {
				t.Errorf("validateNesting(%q) expected error, got nil", tt.name)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateNesting(%q) unexpected error: %v", tt.name, err)
			}
		})
	}
}

func TestEvaluate_CanceledContext(t *testing.T) {
	eval, err := NewEvaluator(personType().Fields())
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	prg, err := eval.Compile(`[1,2,3,4,5,6,7,8,9,10].all(x, [1,2,3,4,5,6,7,8,9,10].all(y, x * y > 0))`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled context is only observed inside comprehensions; either
	// outcome is acceptable but it must not hang or panic.
	_, _ = eval.Evaluate(ctx, prg, jan())
}
