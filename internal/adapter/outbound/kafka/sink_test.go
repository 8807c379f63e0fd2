package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func enrichedEnvelope(t *testing.T, key string) *pipeline.Envelope {
	t.Helper()
	env := pipeline.NewEnvelope([]byte(`{"firstname":"jan"}`), nil)
	if key != "" {
		require.NoError(t, env.SetKey([]byte(key)))
		env.Headers().Set(pipeline.KeyHeader, key)
	}
	env.Headers().Set("foo", "bar")
	env.Headers().Set(pipeline.ContentTypeHeader, pipeline.JSONContentType)
	return env
}

func TestSink_Deliver(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, Config{Brokers: []string{"localhost:9092"}, Topic: "people"}, discardLogger())

	require.NoError(t, s.Deliver(context.Background(), enrichedEnvelope(t, "jan")))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "jan", string(msg.Key))
	assert.Equal(t, `{"firstname":"jan"}`, string(msg.Value))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "bar", headers["foo"])
	assert.Equal(t, "jan", headers[pipeline.KeyHeader])
	assert.Equal(t, pipeline.JSONContentType, headers[pipeline.ContentTypeHeader])
}

func TestSink_DeliverWithoutKey(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, Config{Topic: "people"}, discardLogger())

	require.NoError(t, s.Deliver(context.Background(), enrichedEnvelope(t, "")))
	require.Len(t, w.msgs, 1)
	assert.Nil(t, w.msgs[0].Key)
}

func TestSink_DeliverError(t *testing.T) {
	boom := errors.New("leader not available")
	s := newSink(&fakeWriter{err: boom}, Config{Topic: "people"}, discardLogger())

	err := s.Deliver(context.Background(), enrichedEnvelope(t, "jan"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSink_Close(t *testing.T) {
	w := &fakeWriter{}
	s := newSink(w, Config{Topic: "people"}, discardLogger())
	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestNewSink_Validation(t *testing.T) {
	_, err := NewSink(Config{Topic: "people"}, nil)
	assert.Error(t, err)

	_, err = NewSink(Config{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)

	s, err := NewSink(Config{Brokers: []string{"localhost:9092"}, Topic: "people", RequiredAcks: -1}, nil)
	require.NoError(t, err)
	w, ok := s.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
