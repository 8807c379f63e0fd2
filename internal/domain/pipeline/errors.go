package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCanceled indicates the request context was canceled or timed out while
// the pipeline was running. Nothing is delivered for a canceled request.
var ErrCanceled = errors.New("pipeline canceled")

// Kind classifies a pipeline failure.
type Kind int

// Failure kinds.
const (
	KindUnsupportedMediaType Kind = iota + 1
	KindSchemaViolation
	KindMalformedPayload
	KindStructuralViolation
	KindKeyExtractionFailure
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindUnsupportedMediaType:
		return "unsupported_media_type"
	case KindSchemaViolation:
		return "schema_violation"
	case KindMalformedPayload:
		return "malformed_payload"
	case KindStructuralViolation:
		return "structural_violation"
	case KindKeyExtractionFailure:
		return "key_extraction_failure"
	default:
		return "unknown"
	}
}

// Issue is a single validation finding.
type Issue struct {
	// Path locates the offending value: a JSON pointer for schema issues,
	// a dotted field path for structural issues.
	Path string

	// Message is a human-readable reason.
	Message string
}

// String renders the issue as "path: message".
func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Error is a classified pipeline failure. It is created by the stage that
// detects the condition and travels unchanged to the transport boundary.
type Error struct {
	Kind Kind

	// Issues is set for SchemaViolation and StructuralViolation.
	Issues []Issue

	// Message is set for MalformedPayload and UnsupportedMediaType.
	Message string

	// Expression is set for KeyExtractionFailure.
	Expression string

	// Cause is the underlying error, when there is one.
	Cause error
}

// Error implements the error interface. All issues of a request are joined
// into one message.
func (e *Error) Error() string {
	switch e.Kind {
	case KindSchemaViolation, KindStructuralViolation:
		return JoinIssues(e.Issues)
	case KindKeyExtractionFailure:
		return fmt.Sprintf("couldn't extract key from request using expression '%s'", e.Expression)
	default:
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// ClientError reports whether the failure was caused by the request rather
// than by configuration.
func (e *Error) ClientError() bool {
	return e.Kind != KindKeyExtractionFailure
}

// JoinIssues renders issues as a single comma-separated message.
func JoinIssues(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, i := range issues {
		parts = append(parts, i.String())
	}
	return strings.Join(parts, ", ")
}

// UnsupportedMediaType creates an UnsupportedMediaType error.
func UnsupportedMediaType(contentType string) *Error {
	return &Error{
		Kind:    KindUnsupportedMediaType,
		Message: fmt.Sprintf("content type '%s' not supported", contentType),
	}
}

// SchemaViolation creates a SchemaViolation error.
func SchemaViolation(issues []Issue) *Error {
	return &Error{Kind: KindSchemaViolation, Issues: issues}
}

// MalformedPayload creates a MalformedPayload error from a parser failure.
func MalformedPayload(cause error) *Error {
	return &Error{Kind: KindMalformedPayload, Message: cause.Error(), Cause: cause}
}

// StructuralViolation creates a StructuralViolation error.
func StructuralViolation(issues []Issue) *Error {
	return &Error{Kind: KindStructuralViolation, Issues: issues}
}

// KeyExtractionFailure creates a KeyExtractionFailure error.
func KeyExtractionFailure(expression string, cause error) *Error {
	return &Error{Kind: KindKeyExtractionFailure, Expression: expression, Cause: cause}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
