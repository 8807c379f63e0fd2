package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configName = "http-source"
	envPrefix  = "HTTP_SOURCE"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overridden. A missing default file is not
// an error; a missing explicit file is.
func LoadEnvFile(path string, explicit bool) error {
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for http-source.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	// Environment variable support: HTTP_SOURCE_JSON_KEY_EXPRESSION
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Bind nested keys for env var support
	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an http-source config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".http-source"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, configName))
		}
	} else {
		paths = append(paths, "/etc/http-source")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for http-source.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// envKeys are the config keys that can be overridden from the environment.
// List values accept comma-separated strings (HTTP_SOURCE_HTTP_METHODS=POST,PUT).
var envKeys = []string{
	"server.http_addr",
	"server.log_level",
	"server.log_format",
	"server.tls_cert_file",
	"server.tls_key_file",

	"http.uri_path",
	"http.methods",
	"http.mapped_request_headers",
	"http.response_status",
	"http.max_body_bytes",
	"http.cors.allowed_origins",
	"http.cors.allowed_headers",
	"http.cors.allow_credentials",
	"http.rate_limit.enabled",
	"http.rate_limit.rate",
	"http.rate_limit.burst",
	"http.rate_limit.period",

	"json.schema_location",
	"json.key_expression",

	"structure.type",
	"structure.key_expression",

	"output.type",
	"output.kafka.brokers",
	"output.kafka.topic",
	"output.kafka.required_acks",
	"output.kafka.write_timeout",
	"output.nats.url",
	"output.nats.subject",
	"output.nats.partitions",
	"output.sqlite.path",

	"security.enabled",
	"security.username",
	"security.password_hash",

	"telemetry.tracing",
	"telemetry.metrics",
	"telemetry.metric_interval",

	"dev_mode",
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: HTTP_SOURCE_SERVER_HTTP_ADDR overrides server.http_addr
func bindNestedEnvKeys() {
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the Config.
// Note: Caller should apply any CLI flag overrides (e.g. --dev) through
// LoadConfigRaw, then call cfg.SetDevDefaults() and cfg.Validate().
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	// In dev mode, apply permissive defaults before validation
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
