// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/port/outbound"
)

const defaultRecentCap = 1000

// Record is the JSON line written for every delivered envelope.
type Record struct {
	Key     *string           `json:"key"`
	Headers map[string]string `json:"headers"`
	Payload json.RawMessage   `json:"payload"`
}

// NewRecord converts an envelope. A payload that is not valid JSON is kept
// as a JSON string.
func NewRecord(env *pipeline.Envelope) (Record, error) {
	r := Record{Headers: env.Headers().Clone()}
	if key, ok := env.Key(); ok {
		s := string(key)
		r.Key = &s
	}
	if json.Valid(env.Payload()) {
		r.Payload = append(json.RawMessage(nil), env.Payload()...)
		return r, nil
	}
	quoted, err := json.Marshal(string(env.Payload()))
	if err != nil {
		return Record{}, err
	}
	r.Payload = quoted
	return r, nil
}

// Sink implements outbound.Sink writing JSON lines to stdout or a writer.
// It also keeps a bounded in-memory ring buffer of recent records.
type Sink struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	// recent is a bounded ring buffer of the most recent records.
	recent []Record
	cap    int
}

// resolveCapacity returns the first positive capacity value, or defaultRecentCap.
func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewSink creates a sink writing to stdout.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewSink(capacity ...int) *Sink {
	return NewSinkWithWriter(os.Stdout, capacity...)
}

// NewSinkWithWriter creates a sink writing to the given writer. A nil writer
// only collects records, which is what tests use.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewSinkWithWriter(w io.Writer, capacity ...int) *Sink {
	cap := resolveCapacity(capacity...)
	s := &Sink{
		writer: w,
		recent: make([]Record, 0, cap),
		cap:    cap,
	}
	if w != nil {
		s.encoder = json.NewEncoder(w)
	}
	return s
}

// Deliver writes the envelope as one JSON line and keeps it in the ring buffer.
func (s *Sink) Deliver(ctx context.Context, env *pipeline.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := NewRecord(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encoder != nil {
		if err := s.encoder.Encode(r); err != nil {
			return err
		}
	}
	// Add to ring buffer.
	if len(s.recent) >= s.cap {
		// Shift left, drop oldest.
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = r
	} else {
		s.recent = append(s.recent, r)
	}
	return nil
}

// Ping always succeeds.
func (s *Sink) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (s *Sink) Close() error {
	// Close file if it's not stdout/stderr
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Len returns the number of buffered records.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recent)
}

// GetRecent returns the N most recent records (newest first).
func (s *Sink) GetRecent(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.recent)
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}
	// Return newest first.
	result := make([]Record, n)
	for i := 0; i < n; i++ {
		result[i] = s.recent[total-1-i]
	}
	return result
}

// Compile-time interface verification.
var _ outbound.Sink = (*Sink)(nil)
