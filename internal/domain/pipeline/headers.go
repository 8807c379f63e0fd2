package pipeline

import (
	"context"
	"errors"
	"strings"
)

// StandardRequestHeaders is a pattern token that expands to the standard HTTP
// request header names. It is the default header mapping.
const StandardRequestHeaders = "HTTP_REQUEST_HEADERS"

var standardRequestHeaderNames = []string{
	"accept",
	"accept-charset",
	"accept-encoding",
	"accept-language",
	"accept-ranges",
	"authorization",
	"cache-control",
	"connection",
	"content-length",
	"content-type",
	"cookie",
	"date",
	"expect",
	"from",
	"host",
	"if-match",
	"if-modified-since",
	"if-none-match",
	"if-range",
	"if-unmodified-since",
	"max-forwards",
	"pragma",
	"proxy-authorization",
	"range",
	"referer",
	"te",
	"upgrade",
	"user-agent",
	"via",
	"warning",
}

// ValidateHeaderPattern checks that p is a usable header pattern. Patterns
// use "*" as the only wildcard; every other character is literal.
func ValidateHeaderPattern(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("empty header pattern")
	}
	return nil
}

// HeaderMatcher selects inbound header names by case-insensitive patterns.
type HeaderMatcher struct {
	patterns []string
}

// NewHeaderMatcher compiles patterns. The StandardRequestHeaders token is
// expanded in place.
func NewHeaderMatcher(patterns []string) (*HeaderMatcher, error) {
	m := &HeaderMatcher{}
	for _, p := range patterns {
		if err := ValidateHeaderPattern(p); err != nil {
			return nil, err
		}
		if p == StandardRequestHeaders {
			m.patterns = append(m.patterns, standardRequestHeaderNames...)
			continue
		}
		m.patterns = append(m.patterns, strings.ToLower(p))
	}
	return m, nil
}

// Match reports whether name is selected by any pattern.
func (m *HeaderMatcher) Match(name string) bool {
	name = strings.ToLower(name)
	for _, p := range m.patterns {
		if matchStar(p, name) {
			return true
		}
	}
	return false
}

// matchStar matches name against pattern where "*" stands for any run of
// characters, including none.
func matchStar(pattern, name string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}
	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(name, part)
		if i < 0 {
			return false
		}
		name = name[i+len(part):]
	}
	return strings.HasSuffix(name, parts[len(parts)-1])
}

// HeaderStage builds the outbound header set.
type HeaderStage struct {
	matcher *HeaderMatcher
}

// NewHeaderStage creates a HeaderStage.
func NewHeaderStage(m *HeaderMatcher) *HeaderStage {
	return &HeaderStage{matcher: m}
}

// Name implements Stage.
func (s *HeaderStage) Name() string { return "headers" }

// Reaches implements Stage.
func (s *HeaderStage) Reaches() State { return StateEnriched }

// isReservedHeader reports whether name is owned by the header stage.
// Inbound headers never supply these, whatever the mapping patterns.
func isReservedHeader(name string) bool {
	return strings.EqualFold(name, KeyHeader) || strings.EqualFold(name, ContentTypeHeader)
}

// Apply implements Stage. It never fails.
func (s *HeaderStage) Apply(_ context.Context, env *Envelope) (*Envelope, error) {
	out := env.Headers()
	for name, value := range env.InboundHeaders() {
		if isReservedHeader(name) || !s.matcher.Match(name) {
			continue
		}
		out.Set(name, value)
	}
	if key, ok := env.Key(); ok {
		out.Set(KeyHeader, string(key))
	}
	out.Set(ContentTypeHeader, JSONContentType)
	return env, nil
}
