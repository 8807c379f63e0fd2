package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-playground/validator/v10"

	"github.com/streamkit/http-source/internal/domain/pipeline"
)

// reservedPaths are served by the transport itself.
var reservedPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// RegisterCustomValidators registers connector-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// header_glob: a non-empty "*" pattern or the standard header token
	if err := v.RegisterValidation("header_glob", validateHeaderGlob); err != nil {
		return fmt.Errorf("failed to register header_glob validator: %w", err)
	}
	// argon2id_hash: an encoded argon2id hash as produced by hash-password
	if err := v.RegisterValidation("argon2id_hash", validateArgon2idHash); err != nil {
		return fmt.Errorf("failed to register argon2id_hash validator: %w", err)
	}
	return nil
}

func validateHeaderGlob(fl validator.FieldLevel) bool {
	return pipeline.ValidateHeaderPattern(fl.Field().String()) == nil
}

func validateArgon2idHash(fl validator.FieldLevel) bool {
	_, _, _, err := argon2id.DecodeHash(fl.Field().String())
	return err == nil
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	// Create validator with required struct enabled
	v := validator.New(validator.WithRequiredStructEnabled())

	// Register custom validators
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	// Run struct validation (tags)
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	for _, check := range []func() error{
		c.validateURIPath,
		c.validateCORS,
		c.validateOutput,
		c.validateSecurity,
		c.validateRateLimit,
		c.validateDurations,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// validateURIPath keeps the ingest route off the built-in endpoints.
func (c *Config) validateURIPath() error {
	if _, ok := reservedPaths[c.HTTP.URIPath]; ok {
		return fmt.Errorf("http.uri_path: %s is reserved", c.HTTP.URIPath)
	}
	return nil
}

// validateCORS rejects credentials combined with a wildcard origin.
func (c *Config) validateCORS() error {
	if !c.HTTP.CORS.AllowCredentials {
		return nil
	}
	for _, origin := range c.HTTP.CORS.AllowedOrigins {
		if origin == "*" {
			return errors.New("http.cors: allow_credentials cannot be combined with allowed_origins \"*\"")
		}
	}
	return nil
}

// validateOutput ensures the selected output type has its required settings.
func (c *Config) validateOutput() error {
	switch c.Output.Type {
	case OutputKafka:
		if len(c.Output.Kafka.Brokers) == 0 {
			return errors.New("output.kafka.brokers is required when output.type is kafka")
		}
		if c.Output.Kafka.Topic == "" {
			return errors.New("output.kafka.topic is required when output.type is kafka")
		}
	case OutputNATS:
		if c.Output.NATS.URL == "" {
			return errors.New("output.nats.url is required when output.type is nats")
		}
		if c.Output.NATS.Subject == "" {
			return errors.New("output.nats.subject is required when output.type is nats")
		}
	case OutputSQLite:
		if c.Output.SQLite.Path == "" {
			return errors.New("output.sqlite.path is required when output.type is sqlite")
		}
	}
	return nil
}

// validateSecurity requires credentials when basic auth is enabled.
func (c *Config) validateSecurity() error {
	if !c.Security.Enabled {
		return nil
	}
	if c.Security.Username == "" {
		return errors.New("security.username is required when security is enabled")
	}
	if c.Security.PasswordHash == "" {
		return errors.New("security.password_hash is required when security is enabled")
	}
	return nil
}

// validateRateLimit requires a rate when limiting is enabled.
func (c *Config) validateRateLimit() error {
	if c.HTTP.RateLimit.Enabled && c.HTTP.RateLimit.Rate <= 0 {
		return errors.New("http.rate_limit.rate must be positive when rate limiting is enabled")
	}
	return nil
}

// validateDurations checks every duration string parses.
func (c *Config) validateDurations() error {
	durations := map[string]string{
		"http.rate_limit.period":     c.HTTP.RateLimit.Period,
		"output.kafka.write_timeout": c.Output.Kafka.WriteTimeout,
		"telemetry.metric_interval":  c.Telemetry.MetricInterval,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %q", field, value)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_with":
		return fmt.Sprintf("%s is required together with %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "header_glob":
		return fmt.Sprintf("%s must be a valid header glob pattern", field)
	case "argon2id_hash":
		return fmt.Sprintf("%s must be an argon2id hash (see hash-password)", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
