// Package structure describes the typed payload structures a request body
// can be mapped into, together with their field constraints.
package structure

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Rule is a field constraint kind.
type Rule int

// Supported constraint rules.
const (
	// Required rejects a nil pointer, slice or map.
	Required Rule = iota + 1

	// NotEmpty rejects a missing or zero-length string, slice or map.
	NotEmpty

	// Min rejects a number smaller than Constraint.Min.
	Min

	// Valid marks a nested structure whose own constraints apply.
	Valid
)

// Constraint binds a rule to a Go struct field.
type Constraint struct {
	Field string
	Rule  Rule
	Min   int64
}

// Shape lists the constraints of one Go struct type taking part in a
// structure. Sample is a value of that struct type.
type Shape struct {
	Sample      any
	Constraints []Constraint
}

// Type is a named structure a payload can be mapped into.
type Type struct {
	// Name is the configuration name, e.g. "person".
	Name string

	// New returns a pointer to a fresh zero value.
	New func() any

	// Shapes holds constraints for the root struct and every nested struct.
	Shapes []Shape

	fieldsOnce sync.Once
	fields     []string

	checkerOnce sync.Once
	checker     *Checker
	checkerErr  error
}

// Fields returns the top-level JSON field names of the structure, sorted.
func (t *Type) Fields() []string {
	t.fieldsOnce.Do(func() {
		t.fields = jsonFields(t.New())
	})
	return t.fields
}

// Checker returns the constraint checker for this type, built on first use.
func (t *Type) Checker() (*Checker, error) {
	t.checkerOnce.Do(func() {
		t.checker, t.checkerErr = NewChecker(t)
	})
	return t.checker, t.checkerErr
}

// Mapper returns the payload mapper for this type.
func (t *Type) Mapper() *Mapper {
	return NewMapper(t)
}

func jsonFields(v any) []string {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil
	}

	names := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		if name := jsonName(rt.Field(i)); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// jsonName returns the name encoding/json uses for f, or "" when the field
// is not encoded.
func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// ErrUnknownType is returned by Lookup for unregistered names.
var ErrUnknownType = errors.New("unknown structure type")

// Registry holds the structure types available to the configuration.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t *Type) error {
	if t == nil || t.Name == "" || t.New == nil {
		return errors.New("structure type needs a name and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("structure type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(t *Type) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
