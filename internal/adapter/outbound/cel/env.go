package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// NewStructureEnvironment creates a CEL environment for key expressions over
// a typed structure. Every top-level field is declared as a dynamic variable,
// so "firstname" and "address.city" resolve against the structure directly.
// It also provides:
//   - Standard extensions: strings, sets
//   - Custom functions: glob, field_or
func NewStructureEnvironment(fields []string) (*cel.Env, error) {
	opts := []cel.EnvOption{
		ext.Strings(),
		ext.Sets(),

		// glob: shell-style pattern match.
		// Usage: glob("w*", address.city)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p, ok1 := pattern.Value().(string)
					n, ok2 := name.Value().(string)
					if !ok1 || !ok2 {
						return types.Bool(false)
					}
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		// field_or: value of a map key, or a fallback when it is missing or null.
		// Usage: field_or(address, "city", "unknown")
		cel.Function("field_or",
			cel.Overload("field_or_dyn_string_dyn",
				[]*cel.Type{cel.DynType, cel.StringType, cel.DynType},
				cel.DynType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					m, ok := args[0].Value().(map[string]any)
					if !ok {
						return args[2]
					}
					key, _ := args[1].Value().(string)
					v, found := m[key]
					if !found || v == nil {
						return args[2]
					}
					return types.DefaultTypeAdapter.NativeToValue(v)
				}),
			),
		),
	}

	for _, f := range fields {
		opts = append(opts, cel.Variable(f, cel.DynType))
	}

	return cel.NewEnv(opts...)
}

// BuildActivation creates a CEL activation from a typed structure. The value
// is projected through its JSON form so variable names match the JSON field
// names. Declared fields missing from the projection are bound to null.
func BuildActivation(fields []string, typed any) (map[string]any, error) {
	projected, err := project(typed)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(fields))
	for _, f := range fields {
		activation[f] = projected[f]
	}
	return activation, nil
}
