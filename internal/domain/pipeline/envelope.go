// Package pipeline contains the request validation and transformation core.
// It turns a raw JSON request body into an outbound message envelope by
// running an ordered list of stages built once at startup.
package pipeline

import (
	"errors"
	"strings"
)

// Reserved outbound header names.
const (
	// KeyHeader carries the extracted routing key.
	KeyHeader = "kafka_messageKey"

	// ContentTypeHeader is always set on outbound envelopes.
	ContentTypeHeader = "content-type"

	// JSONContentType is the value stored under ContentTypeHeader.
	JSONContentType = "application/json"
)

var (
	// ErrTypedValueSet is returned when a typed value is assigned twice.
	ErrTypedValueSet = errors.New("typed value already set")

	// ErrKeySet is returned when a key is assigned twice.
	ErrKeySet = errors.New("key already set")
)

// Headers maps header names to values. Lookups are case-insensitive; names
// keep the spelling they were last set with, so reserved names such as
// KeyHeader reach the sinks unchanged.
type Headers map[string]string

// NewHeaders creates an empty header set.
func NewHeaders() Headers {
	return make(Headers)
}

// Set stores value under name, replacing any existing value whose name
// differs only in case.
func (h Headers) Set(name, value string) {
	h.Del(name)
	h[name] = value
}

// Get returns the value stored under name.
func (h Headers) Get(name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Del removes name in any spelling.
func (h Headers) Del(name string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
}

// Clone returns a copy of h.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Envelope is the unit flowing through the pipeline. The payload is never
// modified after creation; the typed value and the key are write-once.
type Envelope struct {
	payload []byte
	inbound Headers
	headers Headers

	typed    any
	typedSet bool

	key    []byte
	keySet bool

	state State
}

// NewEnvelope creates an envelope for one inbound request. The payload is
// copied so later mutation of the caller's buffer cannot leak in.
func NewEnvelope(payload []byte, inbound Headers) *Envelope {
	p := make([]byte, len(payload))
	copy(p, payload)

	in := NewHeaders()
	for k, v := range inbound {
		in.Set(k, v)
	}

	return &Envelope{
		payload: p,
		inbound: in,
		headers: NewHeaders(),
		state:   StateReceived,
	}
}

// Payload returns the raw JSON text. Callers must not modify it.
func (e *Envelope) Payload() []byte { return e.payload }

// InboundHeaders returns the headers of the originating request.
func (e *Envelope) InboundHeaders() Headers { return e.inbound }

// Headers returns the outbound headers.
func (e *Envelope) Headers() Headers { return e.headers }

// Typed returns the deserialized structure, if the payload mapper ran.
func (e *Envelope) Typed() (any, bool) { return e.typed, e.typedSet }

// SetTyped records the deserialized structure.
func (e *Envelope) SetTyped(v any) error {
	if e.typedSet {
		return ErrTypedValueSet
	}
	e.typed = v
	e.typedSet = true
	return nil
}

// Key returns the routing key, if one was extracted.
func (e *Envelope) Key() ([]byte, bool) { return e.key, e.keySet }

// SetKey records the routing key.
func (e *Envelope) SetKey(key []byte) error {
	if e.keySet {
		return ErrKeySet
	}
	e.key = key
	e.keySet = true
	return nil
}

// State returns the last state the envelope reached.
func (e *Envelope) State() State { return e.state }

// advance moves the envelope forward. States never move backwards and
// Aborted is absorbing.
func (e *Envelope) advance(s State) {
	if e.state == StateAborted {
		return
	}
	if s == StateAborted || s > e.state {
		e.state = s
	}
}

// MarkDelivered records that the output sink accepted the envelope.
func (e *Envelope) MarkDelivered() {
	e.advance(StateDelivered)
}

// Abort marks the envelope as abandoned. Nothing is delivered for an
// aborted envelope.
func (e *Envelope) Abort() {
	e.advance(StateAborted)
}
