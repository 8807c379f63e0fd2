package structure

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// Mapper deserializes a JSON payload into a Type. Unknown fields are
// rejected.
type Mapper struct {
	t *Type
}

// NewMapper creates a Mapper for t.
func NewMapper(t *Type) *Mapper {
	return &Mapper{t: t}
}

// Map implements pipeline.PayloadMapper. The returned value is the pointer
// produced by Type.New.
func (m *Mapper) Map(payload []byte) (any, error) {
	v := m.t.New()

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if isContentError(err) {
			return nil, pipeline.MalformedPayload(err)
		}
		return nil, err
	}
	if dec.More() {
		return nil, pipeline.MalformedPayload(errors.New("unexpected data after top-level value"))
	}
	return v, nil
}

// isContentError reports whether err was caused by the payload itself.
func isContentError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return true
	}
	return false
}
