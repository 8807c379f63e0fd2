// Package kafka delivers envelopes to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/port/outbound"
)

// Config configures the Kafka sink.
type Config struct {
	Brokers      []string
	Topic        string
	RequiredAcks int
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer used by the sink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink implements outbound.Sink on top of a kafka-go Writer. Messages with a
// key are routed by the hash balancer so equal keys share a partition.
type Sink struct {
	writer  messageWriter
	brokers []string
	topic   string
	logger  *slog.Logger
}

// NewSink creates a Kafka sink. The writer connects lazily on first delivery.
func NewSink(cfg Config, logger *slog.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.WriteTimeout,
	}

	return newSink(writer, cfg, logger), nil
}

func newSink(w messageWriter, cfg Config, logger *slog.Logger) *Sink {
	return &Sink{
		writer:  w,
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
		logger:  logger,
	}
}

// Message converts an envelope to a Kafka message. The key header is kept
// so consumers that read headers only still see the key.
func Message(env *pipeline.Envelope) kafka.Message {
	h := env.Headers()
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]kafka.Header, 0, len(names))
	for _, name := range names {
		headers = append(headers, kafka.Header{Key: name, Value: []byte(h[name])})
	}

	msg := kafka.Message{
		Value:   env.Payload(),
		Headers: headers,
		Time:    time.Now(),
	}
	if key, ok := env.Key(); ok {
		msg.Key = key
	}
	return msg
}

// Deliver writes one message and waits for the configured acknowledgements.
func (s *Sink) Deliver(ctx context.Context, env *pipeline.Envelope) error {
	if err := s.writer.WriteMessages(ctx, Message(env)); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", s.topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (s *Sink) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range s.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka: no broker reachable: %w", lastErr)
}

// Close flushes pending messages and closes the writer.
func (s *Sink) Close() error {
	s.logger.Info("closing kafka sink", "topic", s.topic)
	return s.writer.Close()
}

// Compile-time interface verification.
var _ outbound.Sink = (*Sink)(nil)
