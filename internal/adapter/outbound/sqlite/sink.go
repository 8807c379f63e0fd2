// Package sqlite appends envelopes to an outbox table in a SQLite database.
// A separate relay process is expected to forward and prune the rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/port/outbound"
)

// Row is one stored envelope.
type Row struct {
	ID        string
	Key       *string
	Headers   map[string]string
	Payload   []byte
	CreatedAt time.Time
}

// Sink implements outbound.Sink on a SQLite outbox table.
type Sink struct {
	db *sql.DB
}

// NewSink opens (or creates) the database at path.
func NewSink(path string) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Sink{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Sink) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS envelopes (
			id TEXT PRIMARY KEY,
			message_key BLOB,
			headers TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_envelopes_created ON envelopes(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Deliver inserts one row.
func (s *Sink) Deliver(ctx context.Context, env *pipeline.Envelope) error {
	headers, err := json.Marshal(env.Headers())
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	var key any
	if k, ok := env.Key(); ok {
		key = k
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO envelopes (id, message_key, headers, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), key, string(headers), env.Payload(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert envelope: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_key, headers, payload, created_at FROM envelopes ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query envelopes: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r       Row
			key     []byte
			headers string
		)
		if err := rows.Scan(&r.ID, &key, &headers, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan envelope: %w", err)
		}
		if key != nil {
			k := string(key)
			r.Key = &k
		}
		if err := json.Unmarshal([]byte(headers), &r.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the database connection.
func (s *Sink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Compile-time interface verification.
var _ outbound.Sink = (*Sink)(nil)
