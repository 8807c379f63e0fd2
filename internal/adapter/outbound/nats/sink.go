// Package nats delivers envelopes to a NATS JetStream subject.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/port/outbound"
)

// Config configures the NATS sink.
type Config struct {
	URL     string
	Subject string

	// Partitions > 0 appends ".<n>" to the subject, where n is derived from
	// the key hash. Keyless messages rotate over the partitions.
	Partitions int
}

// publisher is the subset of jetstream.JetStream used by the sink.
type publisher interface {
	PublishMsg(ctx context.Context, msg *natsgo.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Sink implements outbound.Sink with JetStream publishes. A stream covering
// the subject must exist.
type Sink struct {
	nc      *natsgo.Conn
	js      publisher
	subject string
	parts   uint64
	next    atomic.Uint64
	logger  *slog.Logger
}

// NewSink connects to NATS and prepares the JetStream context.
func NewSink(cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.Subject == "" {
		return nil, errors.New("nats: subject is required")
	}
	if cfg.Partitions < 0 {
		return nil, errors.New("nats: partitions must not be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}
	url := cfg.URL
	if url == "" {
		url = natsgo.DefaultURL
	}

	nc, err := natsgo.Connect(url,
		natsgo.Name("http-source"),
		natsgo.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: jetstream: %w", err)
	}

	s := newSink(js, cfg, logger)
	s.nc = nc
	return s, nil
}

func newSink(js publisher, cfg Config, logger *slog.Logger) *Sink {
	return &Sink{
		js:      js,
		subject: cfg.Subject,
		parts:   uint64(cfg.Partitions),
		logger:  logger,
	}
}

// Subject returns the subject a message with the given key is published to.
func (s *Sink) Subject(key []byte, hasKey bool) string {
	if s.parts == 0 {
		return s.subject
	}
	var n uint64
	if hasKey {
		n = xxhash.Sum64(key) % s.parts
	} else {
		n = s.next.Add(1) % s.parts
	}
	return s.subject + "." + strconv.FormatUint(n, 10)
}

// Msg converts an envelope to a NATS message for subject.
func Msg(subject string, env *pipeline.Envelope) *natsgo.Msg {
	msg := natsgo.NewMsg(subject)
	msg.Data = env.Payload()
	for name, value := range env.Headers() {
		msg.Header.Set(name, value)
	}
	return msg
}

// Deliver publishes one message and waits for the stream acknowledgement.
func (s *Sink) Deliver(ctx context.Context, env *pipeline.Envelope) error {
	key, hasKey := env.Key()
	subject := s.Subject(key, hasKey)

	if _, err := s.js.PublishMsg(ctx, Msg(subject, env)); err != nil {
		return fmt.Errorf("nats: publish to %s: %w", subject, err)
	}
	return nil
}

// Ping round-trips to the server.
func (s *Sink) Ping(ctx context.Context) error {
	if s.nc == nil {
		return nil
	}
	if !s.nc.IsConnected() {
		return fmt.Errorf("nats: %s", s.nc.Status())
	}
	return s.nc.FlushWithContext(ctx)
}

// Close drains the connection.
func (s *Sink) Close() error {
	if s.nc == nil {
		return nil
	}
	s.logger.Info("closing nats sink", "subject", s.subject)
	return s.nc.Drain()
}

// Compile-time interface verification.
var _ outbound.Sink = (*Sink)(nil)
