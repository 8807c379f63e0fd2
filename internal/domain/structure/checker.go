package structure

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// Checker applies a Type's constraints with a validator instance dedicated
// to that type.
type Checker struct {
	v *validator.Validate
}

// NewChecker builds a Checker from the declarative constraints of t.
func NewChecker(t *Type) (*Checker, error) {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return jsonName(f)
	})
	if err := v.RegisterValidation("notempty", validateNotEmpty, true); err != nil {
		return nil, fmt.Errorf("failed to register notempty validator: %w", err)
	}

	for _, shape := range t.Shapes {
		rules, err := ruleTags(shape)
		if err != nil {
			return nil, fmt.Errorf("structure %s: %w", t.Name, err)
		}
		v.RegisterStructValidationMapRules(rules, shape.Sample)
	}

	return &Checker{v: v}, nil
}

// Check implements pipeline.StructureChecker.
func (c *Checker) Check(value any) ([]pipeline.Issue, error) {
	err := c.v.Struct(value)
	if err == nil {
		return nil, nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil, err
	}

	issues := make([]pipeline.Issue, 0, len(validationErrors))
	for _, fe := range validationErrors {
		issues = append(issues, pipeline.Issue{
			Path:    fieldPath(fe.Namespace()),
			Message: issueMessage(fe),
		})
	}
	return issues, nil
}

func ruleTags(shape Shape) (map[string]string, error) {
	st := reflect.TypeOf(shape.Sample)
	if st == nil || st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("shape sample must be a struct value, got %T", shape.Sample)
	}

	tags := make(map[string][]string)
	for _, c := range shape.Constraints {
		if _, ok := st.FieldByName(c.Field); !ok {
			return nil, fmt.Errorf("%s has no field %s", st.Name(), c.Field)
		}
		switch c.Rule {
		case Required:
			tags[c.Field] = append(tags[c.Field], "required")
		case NotEmpty:
			tags[c.Field] = append(tags[c.Field], "notempty")
		case Min:
			tags[c.Field] = append(tags[c.Field], "min="+strconv.FormatInt(c.Min, 10))
		case Valid:
			// Nested structs are always traversed.
			if _, ok := tags[c.Field]; !ok {
				tags[c.Field] = nil
			}
		default:
			return nil, fmt.Errorf("%s.%s: unknown rule %d", st.Name(), c.Field, c.Rule)
		}
	}

	rules := make(map[string]string, len(tags))
	for field, list := range tags {
		rules[field] = strings.Join(list, ",")
	}
	return rules, nil
}

// validateNotEmpty accepts a non-nil value with a non-zero length.
func validateNotEmpty(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return f.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !f.IsNil()
	case reflect.Invalid:
		return false
	default:
		return true
	}
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func issueMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be null"
	case "notempty":
		return "must not be empty"
	case "min":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "failed validation: " + fe.Tag()
	}
}
