// Package config provides configuration types for the http-source connector.
//
// Configuration comes from a YAML file, HTTP_SOURCE_* environment variables
// and an optional .env file. Sections:
//
//   - server: listener, TLS and logging
//   - http: ingest route, accepted methods, header mapping, CORS
//   - json: JSON Schema validation and JSON path key extraction
//   - structure: typed mapping, constraints and expression key extraction
//   - output: where envelopes are delivered (stdout, kafka, nats, sqlite)
//   - security: optional HTTP basic authentication
//   - telemetry: OpenTelemetry stdout exporters
package config

import (
	"net/http"
	"strings"

	"github.com/spf13/viper"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// Output types.
const (
	OutputStdout = "stdout"
	OutputKafka  = "kafka"
	OutputNATS   = "nats"
	OutputSQLite = "sqlite"
)

// DefaultMaxBodyBytes is the default request body limit (1 MiB).
const DefaultMaxBodyBytes = 1 << 20

// Config is the top-level configuration for the connector.
type Config struct {
	// Server configures the HTTP server listener and logging.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// HTTP configures the ingest endpoint.
	HTTP HTTPConfig `yaml:"http" mapstructure:"http"`

	// JSON configures stages that work on the raw JSON body.
	JSON JSONConfig `yaml:"json" mapstructure:"json"`

	// Structure configures stages that work on the typed structure.
	Structure StructureConfig `yaml:"structure" mapstructure:"structure"`

	// Output configures the delivery target.
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// Security configures optional basic authentication.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// Telemetry configures OpenTelemetry exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode enables development features (debug logging, stdout output).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects the slog handler: "text" or "json". Defaults to "text".
	LogFormat string `yaml:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text json"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file" validate:"required_with=TLSCertFile"`
}

// HTTPConfig configures the ingest endpoint.
type HTTPConfig struct {
	// URIPath is the ingest route. Defaults to "/".
	URIPath string `yaml:"uri_path" mapstructure:"uri_path" validate:"required,startswith=/"`

	// Methods are the accepted HTTP methods. Defaults to POST.
	Methods []string `yaml:"methods" mapstructure:"methods" validate:"required,min=1,dive,oneof=POST PUT PATCH GET DELETE"`

	// MappedRequestHeaders are case-insensitive patterns of inbound headers
	// copied to the envelope. "*" is the only wildcard. HTTP_REQUEST_HEADERS
	// stands for the standard request headers and is the default.
	MappedRequestHeaders []string `yaml:"mapped_request_headers" mapstructure:"mapped_request_headers" validate:"dive,header_glob"`

	// ResponseStatus is written after successful delivery. Defaults to 202.
	ResponseStatus int `yaml:"response_status" mapstructure:"response_status" validate:"min=200,max=299"`

	// MaxBodyBytes limits the request body. Defaults to 1 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"min=1"`

	// CORS configures cross-origin access.
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`

	// RateLimit limits ingest requests per client address.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig admits Rate requests per Period for each client, with
// bursts up to Burst. Rejected requests get 429.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Rate    int  `yaml:"rate" mapstructure:"rate" validate:"min=0"`
	// Burst defaults to Rate.
	Burst int `yaml:"burst" mapstructure:"burst" validate:"min=0"`
	// Period is a duration string (e.g., "1s", "1m"). Defaults to "1s".
	Period string `yaml:"period" mapstructure:"period"`
}

// CORSConfig configures cross-origin access to the ingest endpoint.
type CORSConfig struct {
	// AllowedOrigins defaults to "*".
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// AllowedHeaders defaults to "*".
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
	// AllowCredentials cannot be combined with a "*" origin.
	AllowCredentials bool `yaml:"allow_credentials" mapstructure:"allow_credentials"`
}

// JSONConfig configures the raw JSON stages.
type JSONConfig struct {
	// SchemaLocation is a file path or http(s)/file URL of a JSON Schema.
	// Empty disables schema validation.
	SchemaLocation string `yaml:"schema_location" mapstructure:"schema_location"`

	// KeyExpression is a JSON path (e.g., "$.address.city") evaluated
	// against the body. It has precedence over structure.key_expression.
	KeyExpression string `yaml:"key_expression" mapstructure:"key_expression" validate:"omitempty,startswith=$"`
}

// StructureConfig configures the typed stages.
type StructureConfig struct {
	// Type names a structure type compiled into the binary ("person", "car").
	// Empty disables mapping and structural validation.
	Type string `yaml:"type" mapstructure:"type"`

	// KeyExpression is a CEL expression over the typed structure
	// (e.g., "address.city"). Used only when json.key_expression is empty.
	KeyExpression string `yaml:"key_expression" mapstructure:"key_expression"`
}

// OutputConfig configures the delivery target.
type OutputConfig struct {
	// Type is one of "stdout", "kafka", "nats", "sqlite". Defaults to "stdout".
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=stdout kafka nats sqlite"`

	Kafka  KafkaConfig  `yaml:"kafka" mapstructure:"kafka"`
	NATS   NATSConfig   `yaml:"nats" mapstructure:"nats"`
	SQLite SQLiteConfig `yaml:"sqlite" mapstructure:"sqlite"`
}

// KafkaConfig configures the Kafka output.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers" validate:"omitempty,dive,hostname_port"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`

	// RequiredAcks is -1 (all replicas), 0 (none) or 1 (leader). Defaults to -1.
	RequiredAcks int `yaml:"required_acks" mapstructure:"required_acks" validate:"oneof=-1 0 1"`

	// WriteTimeout bounds a single produce call (e.g., "10s"). Defaults to "10s".
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout" validate:"omitempty"`
}

// NATSConfig configures the NATS JetStream output.
type NATSConfig struct {
	URL     string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	Subject string `yaml:"subject" mapstructure:"subject"`

	// Partitions > 0 appends ".<xxhash(key) % partitions>" to the subject.
	Partitions int `yaml:"partitions" mapstructure:"partitions" validate:"min=0"`
}

// SQLiteConfig configures the SQLite outbox output.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig configures HTTP basic authentication.
type SecurityConfig struct {
	// Enabled protects the ingest endpoint and /metrics.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	Username string `yaml:"username" mapstructure:"username"`

	// PasswordHash is an argon2id hash. Generate with: http-source hash-password
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash" validate:"omitempty,argon2id_hash"`
}

// TelemetryConfig configures OpenTelemetry stdout exporters.
type TelemetryConfig struct {
	// Tracing exports spans for requests and pipeline stages.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`

	// Metrics exports the OpenTelemetry outcome counters.
	Metrics bool `yaml:"metrics" mapstructure:"metrics"`

	// MetricInterval is the metric export period (e.g., "60s"). Defaults to "60s".
	MetricInterval string `yaml:"metric_interval" mapstructure:"metric_interval" validate:"omitempty"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	// Unconfigured outputs fall back to stdout so the pipeline can be tried locally.
	if !viper.IsSet("output.type") {
		c.Output.Type = OutputStdout
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults — bind to localhost only for security.
	// Users who need network access must explicitly set http_addr: ":8080" or "0.0.0.0:8080".
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}

	// HTTP defaults
	if c.HTTP.URIPath == "" {
		c.HTTP.URIPath = "/"
	}
	if len(c.HTTP.Methods) == 0 {
		c.HTTP.Methods = []string{http.MethodPost}
	}
	for i, m := range c.HTTP.Methods {
		c.HTTP.Methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}
	if len(c.HTTP.MappedRequestHeaders) == 0 {
		c.HTTP.MappedRequestHeaders = []string{pipeline.StandardRequestHeaders}
	}
	if c.HTTP.ResponseStatus == 0 {
		c.HTTP.ResponseStatus = http.StatusAccepted
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(c.HTTP.CORS.AllowedOrigins) == 0 {
		c.HTTP.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.HTTP.CORS.AllowedHeaders) == 0 {
		c.HTTP.CORS.AllowedHeaders = []string{"*"}
	}

	if c.HTTP.RateLimit.Period == "" {
		c.HTTP.RateLimit.Period = "1s"
	}
	if c.HTTP.RateLimit.Burst == 0 {
		c.HTTP.RateLimit.Burst = c.HTTP.RateLimit.Rate
	}

	// Output defaults
	if c.Output.Type == "" {
		c.Output.Type = OutputStdout
	}
	// viper.IsSet distinguishes "not set" from an explicit 0 (no acks).
	if !viper.IsSet("output.kafka.required_acks") && c.Output.Kafka.RequiredAcks == 0 {
		c.Output.Kafka.RequiredAcks = -1
	}
	if c.Output.Kafka.WriteTimeout == "" {
		c.Output.Kafka.WriteTimeout = "10s"
	}
	if c.Output.SQLite.Path == "" {
		c.Output.SQLite.Path = "http-source.db"
	}

	// Telemetry defaults
	if c.Telemetry.MetricInterval == "" {
		c.Telemetry.MetricInterval = "60s"
	}
}
