package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/streamkit/http-source/internal/adapter/outbound/memory"
	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/model"
)

const (
	validPerson = `{"firstname":"jan","lastname":"kowalski","age":20,"address":{"city":"warsaw"}}`
	youngPerson = `{"firstname":"jan","lastname":"kowalski","age":10,"address":{"city":"warsaw"}}`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService builds the full pipeline for cfg with a collecting sink.
func newTestService(t *testing.T, cfg StageConfig) (*IngestService, *memory.Sink) {
	t.Helper()
	p, err := BuildPipeline(cfg, model.NewRegistry(), discardLogger())
	if err != nil {
		t.Fatalf("BuildPipeline(%+v) error: %v", cfg, err)
	}
	sink := memory.NewSinkWithWriter(nil)
	return NewIngestService(p, sink, nil, discardLogger()), sink
}

func ingest(t *testing.T, svc *IngestService, payload string, headers pipeline.Headers) (*pipeline.Envelope, error) {
	t.Helper()
	return svc.Ingest(context.Background(), []byte(payload), headers)
}

func requireKind(t *testing.T, err error, kind pipeline.Kind) *pipeline.Error {
	t.Helper()
	pe, ok := pipeline.AsError(err)
	if !ok {
		t.Fatalf("error = %v, want *pipeline.Error", err)
	}
	if pe.Kind != kind {
		t.Fatalf("Kind = %v, want %v (error: %v)", pe.Kind, kind, pe)
	}
	return pe
}

func keyOf(t *testing.T, env *pipeline.Envelope) string {
	t.Helper()
	key, ok := env.Key()
	if !ok {
		t.Fatal("Key() absent, want present")
	}
	return string(key)
}

func TestIngest_PayloadPassesThroughUnchanged(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc, sink := newTestService(t, StageConfig{
		SchemaLocation: "testdata/person-schema.json",
		StructureType:  "person",
	})
	payload := "{ \"firstname\" : \"jan\",\n \"lastname\":\"kowalski\", \"age\": 20, \"address\": {\"city\":\"warsaw\"} }"

	env, err := ingest(t, svc, payload, nil)
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if string(env.Payload()) != payload {
		t.Errorf("Payload() = %q, want unchanged", env.Payload())
	}
	if env.State() != pipeline.StateDelivered {
		t.Errorf("State() = %v, want %v", env.State(), pipeline.StateDelivered)
	}
	if sink.Len() != 1 {
		t.Errorf("delivered = %d, want 1", sink.Len())
	}
}

func TestIngest_SchemaRunsBeforeStructure(t *testing.T) {
	svc, sink := newTestService(t, StageConfig{
		SchemaLocation: "testdata/fish-schema.json",
		StructureType:  "car",
	})

	env, err := ingest(t, svc, validPerson, nil)
	pe := requireKind(t, err, pipeline.KindSchemaViolation)
	if !strings.Contains(pe.Error(), "species") {
		t.Errorf("Error() = %q, want mention of species", pe.Error())
	}
	if _, typed := env.Typed(); typed {
		t.Error("mapper ran after schema failure")
	}
	if env.State() != pipeline.StateAborted {
		t.Errorf("State() = %v, want %v", env.State(), pipeline.StateAborted)
	}
	if sink.Len() != 0 {
		t.Errorf("delivered = %d, want 0", sink.Len())
	}
}

func TestIngest_MapperRejectsUnknownProperties(t *testing.T) {
	svc, _ := newTestService(t, StageConfig{
		SchemaLocation: "testdata/person-schema.json",
		StructureType:  "car",
	})

	_, err := ingest(t, svc, validPerson, nil)
	pe := requireKind(t, err, pipeline.KindMalformedPayload)
	if !strings.Contains(pe.Error(), "firstname") {
		t.Errorf("Error() = %q, want mention of firstname", pe.Error())
	}
}

func TestIngest_KeyScenarios(t *testing.T) {
	tests := []struct {
		name string
		cfg  StageConfig
		want string
	}{
		{
			name: "structure expression firstname",
			cfg:  StageConfig{StructureType: "person", StructureKeyExpression: "firstname"},
			want: "jan",
		},
		{
			name: "structure expression age",
			cfg:  StageConfig{StructureType: "person", StructureKeyExpression: "age"},
			want: "20",
		},
		{
			name: "json path nested",
			cfg:  StageConfig{JSONKeyExpression: "$.address.city"},
			want: "warsaw",
		},
		{
			name: "json path wins over structure expression",
			cfg: StageConfig{
				StructureType:          "person",
				StructureKeyExpression: "age",
				JSONKeyExpression:      "$.firstname",
			},
			want: "jan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sink := newTestService(t, tt.cfg)
			env, err := ingest(t, svc, validPerson, nil)
			if err != nil {
				t.Fatalf("Ingest() error: %v", err)
			}
			if got := keyOf(t, env); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
			if v, _ := env.Headers().Get(pipeline.KeyHeader); v != tt.want {
				t.Errorf("%s = %q, want %q", pipeline.KeyHeader, v, tt.want)
			}
			recent := sink.GetRecent(1)
			if len(recent) != 1 || recent[0].Key == nil || *recent[0].Key != tt.want {
				t.Errorf("delivered = %+v", recent)
			}
		})
	}
}

func TestIngest_NullKeyIsNotAnError(t *testing.T) {
	svc, sink := newTestService(t, StageConfig{JSONKeyExpression: "$.nickname"})

	env, err := ingest(t, svc, `{"firstname":"jan","nickname":null}`, nil)
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if _, ok := env.Key(); ok {
		t.Error("Key() present, want absent")
	}
	if env.Headers().Has(pipeline.KeyHeader) {
		t.Errorf("%s set without a key", pipeline.KeyHeader)
	}
	if sink.Len() != 1 {
		t.Errorf("delivered = %d, want 1", sink.Len())
	}
}

func TestIngest_MissingPathFailsWithoutDelivery(t *testing.T) {
	svc, sink := newTestService(t, StageConfig{JSONKeyExpression: "$.city"})

	_, err := ingest(t, svc, validPerson, nil)
	pe := requireKind(t, err, pipeline.KindKeyExtractionFailure)
	if pe.ClientError() {
		t.Error("ClientError() = true, want false")
	}
	if sink.Len() != 0 {
		t.Errorf("delivered = %d, want 0", sink.Len())
	}
	if got := svc.Stats().GetStats().KindCounts["key_extraction_failure"]; got != 1 {
		t.Errorf("key_extraction_failure = %d, want 1", got)
	}
}

func TestIngest_StructureKeyWithoutTypeGivesNoKey(t *testing.T) {
	svc, _ := newTestService(t, StageConfig{StructureKeyExpression: "firstname"})

	env, err := ingest(t, svc, validPerson, nil)
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if _, ok := env.Key(); ok {
		t.Error("Key() present, want absent")
	}
}

func TestIngest_HeaderWhitelist(t *testing.T) {
	inbound := pipeline.Headers{"foo": "bar", "user-agent": "curl/8.0"}

	svc, _ := newTestService(t, StageConfig{MappedHeaderPatterns: []string{"f*"}})
	env, err := ingest(t, svc, `{}`, inbound)
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	h := env.Headers()
	if v, _ := h.Get("foo"); v != "bar" {
		t.Errorf("foo = %q, want %q", v, "bar")
	}
	if h.Has("user-agent") {
		t.Error("user-agent kept, want dropped")
	}
	if v, _ := h.Get(pipeline.ContentTypeHeader); v != pipeline.JSONContentType {
		t.Errorf("content-type = %q", v)
	}
	if len(h) != 2 {
		t.Errorf("headers = %v, want foo and content-type only", h)
	}

	svc, _ = newTestService(t, StageConfig{})
	env, err = ingest(t, svc, `{}`, inbound)
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if env.Headers().Has("foo") {
		t.Error("custom header kept under default mapping")
	}
	if !env.Headers().Has("user-agent") {
		t.Error("standard header dropped under default mapping")
	}
}

func TestIngest_StructuralViolation(t *testing.T) {
	svc, sink := newTestService(t, StageConfig{StructureType: "person", StructureKeyExpression: "firstname"})

	env, err := ingest(t, svc, youngPerson, nil)
	pe := requireKind(t, err, pipeline.KindStructuralViolation)
	if !strings.Contains(pe.Error(), "age") {
		t.Errorf("Error() = %q, want mention of age", pe.Error())
	}
	if _, ok := env.Key(); ok {
		t.Error("key extracted after structural failure")
	}
	if sink.Len() != 0 {
		t.Errorf("delivered = %d, want 0", sink.Len())
	}
}

func TestIngest_Idempotent(t *testing.T) {
	svc, sink := newTestService(t, StageConfig{
		SchemaLocation:       "testdata/person-schema.json",
		StructureType:        "person",
		JSONKeyExpression:    "$.address.city",
		MappedHeaderPatterns: []string{"x-*"},
	})
	headers := pipeline.Headers{"X-Trace": "abc", "Accept": "*/*"}

	for i := 0; i < 2; i++ {
		if _, err := ingest(t, svc, validPerson, headers); err != nil {
			t.Fatalf("Ingest() #%d error: %v", i, err)
		}
	}

	recent := sink.GetRecent(2)
	if len(recent) != 2 {
		t.Fatalf("delivered = %d, want 2", len(recent))
	}
	a, b := recent[0], recent[1]
	if string(a.Payload) != string(b.Payload) || *a.Key != *b.Key || len(a.Headers) != len(b.Headers) {
		t.Errorf("envelopes differ: %+v vs %+v", a, b)
	}
	for k, v := range a.Headers {
		if b.Headers[k] != v {
			t.Errorf("header %s differs: %q vs %q", k, v, b.Headers[k])
		}
	}
}

func TestIngest_CanceledContext(t *testing.T) {
	svc, sink := newTestService(t, StageConfig{StructureType: "person"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env, err := svc.Ingest(ctx, []byte(validPerson), nil)
	if !errors.Is(err, pipeline.ErrCanceled) {
		t.Fatalf("Ingest() error = %v, want ErrCanceled", err)
	}
	if env.State() != pipeline.StateAborted {
		t.Errorf("State() = %v, want %v", env.State(), pipeline.StateAborted)
	}
	if sink.Len() != 0 {
		t.Errorf("delivered = %d, want 0", sink.Len())
	}
	if svc.Stats().GetStats().Canceled != 1 {
		t.Errorf("Canceled = %d, want 1", svc.Stats().GetStats().Canceled)
	}
}

type failingSink struct {
	err error
}

func (f failingSink) Deliver(context.Context, *pipeline.Envelope) error { return f.err }
func (f failingSink) Ping(context.Context) error                        { return f.err }
func (f failingSink) Close() error                                      { return nil }

func TestIngest_SinkFailure(t *testing.T) {
	p, err := BuildPipeline(StageConfig{}, model.NewRegistry(), discardLogger())
	if err != nil {
		t.Fatalf("BuildPipeline() error: %v", err)
	}
	boom := errors.New("broker down")
	svc := NewIngestService(p, failingSink{err: boom}, nil, discardLogger())

	env, err := ingest(t, svc, `{}`, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Ingest() error = %v, want %v", err, boom)
	}
	if _, ok := pipeline.AsError(err); ok {
		t.Error("sink failure classified as pipeline error")
	}
	if env.State() != pipeline.StateAborted {
		t.Errorf("State() = %v, want %v", env.State(), pipeline.StateAborted)
	}
	if svc.Stats().GetStats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", svc.Stats().GetStats().Errors)
	}
	if err := svc.Ready(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Ready() = %v, want %v", err, boom)
	}
}
