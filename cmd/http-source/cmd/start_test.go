package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/streamkit/http-source/internal/adapter/inbound/http"
	"github.com/streamkit/http-source/internal/adapter/outbound/memory"
	"github.com/streamkit/http-source/internal/config"
	"github.com/streamkit/http-source/internal/model"
	"github.com/streamkit/http-source/internal/service"
)

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	return cfg
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(config.ServerConfig{LogLevel: "warn", LogFormat: "json"}, false, &buf)
	logger.Info("dropped")
	logger.Warn("kept", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["k"] != "v" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewLogger_DevForcesDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(config.ServerConfig{LogLevel: "error", LogFormat: "text"}, true, &buf)
	logger.Debug("visible")

	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("debug line missing in dev mode: %q", buf.String())
	}
}

func TestStageConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.JSON.SchemaLocation = "schema.json"
	cfg.JSON.KeyExpression = "$.id"
	cfg.Structure.Type = "person"
	cfg.Structure.KeyExpression = "lastname"
	cfg.HTTP.MappedRequestHeaders = []string{"x-*"}

	got := stageConfig(cfg)
	want := service.StageConfig{
		SchemaLocation:         "schema.json",
		JSONKeyExpression:      "$.id",
		StructureType:          "person",
		StructureKeyExpression: "lastname",
		MappedHeaderPatterns:   []string{"x-*"},
	}
	if got.SchemaLocation != want.SchemaLocation ||
		got.JSONKeyExpression != want.JSONKeyExpression ||
		got.StructureType != want.StructureType ||
		got.StructureKeyExpression != want.StructureKeyExpression ||
		len(got.MappedHeaderPatterns) != 1 || got.MappedHeaderPatterns[0] != "x-*" {
		t.Errorf("stageConfig() = %+v, want %+v", got, want)
	}
}

func TestNewSink(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.DiscardHandler)

	stdout, err := newSink(config.OutputConfig{Type: config.OutputStdout}, logger)
	if err != nil {
		t.Fatalf("newSink(stdout) error: %v", err)
	}
	if _, ok := stdout.(*memory.Sink); !ok {
		t.Errorf("newSink(stdout) = %T, want *memory.Sink", stdout)
	}

	db, err := newSink(config.OutputConfig{
		Type:   config.OutputSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "outbox.db")},
	}, logger)
	if err != nil {
		t.Fatalf("newSink(sqlite) error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	if _, err := newSink(config.OutputConfig{
		Type:  config.OutputKafka,
		Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", WriteTimeout: "soon"},
	}, logger); err == nil {
		t.Error("newSink(kafka, bad timeout) error = nil")
	}

	if _, err := newSink(config.OutputConfig{Type: "redis"}, logger); err == nil {
		t.Error("newSink(redis) error = nil")
	}
}

func TestTransportOptions_Wiring(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.DiscardHandler)

	hash, err := argon2id.CreateHash("s3cret", &argon2id.Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig()
	cfg.HTTP.URIPath = "/people"
	cfg.HTTP.ResponseStatus = stdhttp.StatusCreated
	cfg.Structure.Type = "person"
	cfg.Security = config.SecurityConfig{Enabled: true, Username: "ingest", PasswordHash: hash}

	p, err := service.BuildPipeline(stageConfig(cfg), model.NewRegistry(), logger)
	if err != nil {
		t.Fatalf("BuildPipeline() error: %v", err)
	}
	sink := memory.NewSinkWithWriter(io.Discard)
	stats := service.NewStatsService()
	svc := service.NewIngestService(p, sink, stats, logger)

	registry := http.NewRegistry()
	metrics := http.NewMetrics(registry)
	health := http.NewHealthChecker(svc, stats, Version)
	handler := http.NewHTTPTransport(svc, transportOptions(cfg, logger, metrics, registry, health)...).Handler()

	body := `{"firstname":"Ada","lastname":"Lovelace","age":36,"address":{"city":"London"}}`
	send := func(path string, auth bool) int {
		req := httptest.NewRequest(stdhttp.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if auth {
			req.SetBasicAuth("ingest", "s3cret")
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("/people", false); got != stdhttp.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", got)
	}
	if got := send("/people", true); got != stdhttp.StatusCreated {
		t.Errorf("authenticated status = %d, want 201", got)
	}
	if got := send("/", true); got != stdhttp.StatusNotFound {
		t.Errorf("other path status = %d, want 404", got)
	}
	if sink.Len() != 1 {
		t.Errorf("sink.Len() = %d, want 1", sink.Len())
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/health", nil))
	if rec.Code != stdhttp.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestRateLimitConfig(t *testing.T) {
	t.Parallel()

	got := rateLimitConfig(config.RateLimitConfig{Enabled: true, Rate: 5, Burst: 10, Period: "1m"})
	if got.Rate != 5 || got.Burst != 10 || got.Period != time.Minute {
		t.Errorf("rateLimitConfig() = %+v", got)
	}
}

func TestPrintBanner(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Server.HTTPAddr = ":9000"
	cfg.HTTP.URIPath = "/events"
	cfg.Output.Type = config.OutputNATS

	var buf bytes.Buffer
	printBanner(&buf, "1.2.3", cfg)

	for _, want := range []string{"http-source 1.2.3", "POST http://localhost:9000/events", "nats", "Auth:"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("banner missing %q:\n%s", want, buf.String())
		}
	}
}
