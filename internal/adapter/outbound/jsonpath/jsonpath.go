// Package jsonpath extracts routing keys from raw JSON payloads with JSON
// path queries.
package jsonpath

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// language is JSON path with single-quoted member names, as in
// $['address']['city'].
var language = gval.NewLanguage(
	jsonpath.Language(),
	gval.PrefixExtension(scanner.Char, parseSingleQuoted),
)

func parseSingleQuoted(_ context.Context, p *gval.Parser) (gval.Evaluable, error) {
	text := p.TokenText()
	if len(text) < 2 || text[0] != '\'' || text[len(text)-1] != '\'' {
		return nil, fmt.Errorf("could not parse string %s", text)
	}
	body := strings.ReplaceAll(text[1:len(text)-1], `\'`, `'`)
	body = strings.ReplaceAll(body, `"`, `\"`)
	s, err := strconv.Unquote(`"` + body + `"`)
	if err != nil {
		return nil, fmt.Errorf("could not parse string %s: %w", text, err)
	}
	return p.Const(s), nil
}

// KeyExpression is a compiled JSON path query. It implements
// pipeline.KeyEvaluator and is safe for concurrent use.
type KeyExpression struct {
	expr string
	eval gval.Evaluable
}

// New compiles expr. Paths must start at the document root.
func New(expr string) (*KeyExpression, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "$") {
		return nil, fmt.Errorf("json path %q must start with $", expr)
	}
	eval, err := language.NewEvaluable(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid json path %q: %w", expr, err)
	}
	return &KeyExpression{expr: expr, eval: eval}, nil
}

// Expression implements pipeline.KeyEvaluator.
func (k *KeyExpression) Expression() string { return k.expr }

// Evaluate implements pipeline.KeyEvaluator. The raw payload is queried, so
// the result does not depend on whether a structure type is configured.
// Numbers are returned as json.Number to keep their original text.
func (k *KeyExpression) Evaluate(ctx context.Context, env *pipeline.Envelope) (any, error) {
	doc, err := decode(env.Payload())
	if err != nil {
		return nil, pipeline.MalformedPayload(err)
	}
	return k.eval(ctx, doc)
}

func decode(payload []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
