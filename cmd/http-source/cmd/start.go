package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/streamkit/http-source/internal/adapter/inbound/http"
	kafkasink "github.com/streamkit/http-source/internal/adapter/outbound/kafka"
	"github.com/streamkit/http-source/internal/adapter/outbound/memory"
	natssink "github.com/streamkit/http-source/internal/adapter/outbound/nats"
	sqlitesink "github.com/streamkit/http-source/internal/adapter/outbound/sqlite"
	"github.com/streamkit/http-source/internal/config"
	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/domain/ratelimit"
	"github.com/streamkit/http-source/internal/model"
	"github.com/streamkit/http-source/internal/port/outbound"
	"github.com/streamkit/http-source/internal/service"
	"github.com/streamkit/http-source/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the connector",
	Long: `Start the http-source connector.

Each accepted request body runs through the configured stages (JSON Schema
validation, structure mapping and validation, key extraction, header
mapping) and is delivered to the configured output.

Examples:
  # Start with config file settings
  http-source start

  # Start in development mode (debug logging, stdout output)
  http-source start --dev

  # Start with a specific config file
  http-source --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, stdout output)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(devMode)
	if err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// stdout is reserved for the stdout output and telemetry exporters.
	logger := newLogger(cfg.Server, cfg.DevMode, os.Stderr)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("http-source stopped")
	return nil
}

// loadConfig reads the configuration, applies the --dev override and validates.
func loadConfig(dev bool) (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dev {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. DevMode always forces debug.
func newLogger(cfg config.ServerConfig, dev bool, w io.Writer) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// run wires the components together and serves until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	interval, _ := time.ParseDuration(cfg.Telemetry.MetricInterval)
	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		ServiceName:    "http-source",
		ServiceVersion: Version,
		Tracing:        cfg.Telemetry.Tracing,
		Metrics:        cfg.Telemetry.Metrics,
		MetricInterval: interval,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	registry := http.NewRegistry()
	metrics := http.NewMetrics(registry)

	p, err := service.BuildPipeline(stageConfig(cfg), model.NewRegistry(), logger,
		pipeline.WithObserver(metrics.ObserveStage))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	sink, err := newSink(cfg.Output, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s output: %w", cfg.Output.Type, err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("failed to close output", "type", cfg.Output.Type, "error", err)
		}
	}()

	stats := service.NewStatsService()
	svc := service.NewIngestService(p, sink, stats, logger)
	health := http.NewHealthChecker(svc, stats, Version)

	opts := transportOptions(cfg, logger, metrics, registry, health)
	if cfg.HTTP.RateLimit.Enabled {
		limiter := memory.NewRateLimiter()
		limiter.StartCleanup(ctx)
		defer limiter.Stop()
		opts = append(opts, http.WithRateLimit(limiter, rateLimitConfig(cfg.HTTP.RateLimit)))
	}

	transport := http.NewHTTPTransport(svc, opts...)

	logger.Info("pipeline ready",
		"stages", strings.Join(p.Stages(), ","),
		"output", cfg.Output.Type,
	)
	printBanner(os.Stderr, Version, cfg)

	return transport.Start(ctx)
}

// stageConfig maps the json and structure sections onto the pipeline builder.
func stageConfig(cfg *config.Config) service.StageConfig {
	return service.StageConfig{
		SchemaLocation:         cfg.JSON.SchemaLocation,
		JSONKeyExpression:      cfg.JSON.KeyExpression,
		StructureType:          cfg.Structure.Type,
		StructureKeyExpression: cfg.Structure.KeyExpression,
		MappedHeaderPatterns:   cfg.HTTP.MappedRequestHeaders,
	}
}

// rateLimitConfig converts the validated rate limit section.
func rateLimitConfig(cfg config.RateLimitConfig) ratelimit.Config {
	period, _ := time.ParseDuration(cfg.Period)
	return ratelimit.Config{Rate: cfg.Rate, Burst: cfg.Burst, Period: period}
}

// newSink opens the configured output.
func newSink(cfg config.OutputConfig, logger *slog.Logger) (outbound.Sink, error) {
	switch cfg.Type {
	case config.OutputKafka:
		timeout, err := time.ParseDuration(cfg.Kafka.WriteTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid write_timeout: %w", err)
		}
		return kafkasink.NewSink(kafkasink.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			WriteTimeout: timeout,
		}, logger)
	case config.OutputNATS:
		return natssink.NewSink(natssink.Config{
			URL:        cfg.NATS.URL,
			Subject:    cfg.NATS.Subject,
			Partitions: cfg.NATS.Partitions,
		}, logger)
	case config.OutputSQLite:
		return sqlitesink.NewSink(cfg.SQLite.Path)
	case config.OutputStdout, "":
		return memory.NewSink(), nil
	default:
		return nil, fmt.Errorf("unknown output type %q", cfg.Type)
	}
}

// transportOptions translates the server, http and security sections.
func transportOptions(cfg *config.Config, logger *slog.Logger, metrics *http.Metrics, registry *prometheus.Registry, health *http.HealthChecker) []http.Option {
	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithPath(cfg.HTTP.URIPath),
		http.WithMethods(cfg.HTTP.Methods...),
		http.WithResponseStatus(cfg.HTTP.ResponseStatus),
		http.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		http.WithCORS(http.CORSConfig{
			AllowedOrigins:   cfg.HTTP.CORS.AllowedOrigins,
			AllowedHeaders:   cfg.HTTP.CORS.AllowedHeaders,
			AllowCredentials: cfg.HTTP.CORS.AllowCredentials,
			Methods:          cfg.HTTP.Methods,
		}),
		http.WithTracing(cfg.Telemetry.Tracing),
		http.WithLogger(logger),
		http.WithMetrics(metrics, registry),
		http.WithHealthChecker(health),
	}
	if cfg.Server.TLSCertFile != "" {
		opts = append(opts, http.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}
	if cfg.Security.Enabled {
		opts = append(opts, http.WithBasicAuth(cfg.Security.Username, cfg.Security.PasswordHash))
	}
	return opts
}

// parseLogLevel maps a config log level to slog. Unknown values mean info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints the listen address, route and output to w.
func printBanner(w io.Writer, version string, cfg *config.Config) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	scheme := "http"
	if cfg.Server.TLSCertFile != "" {
		scheme = "https"
	}
	host := cfg.Server.HTTPAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}

	modeStr := green + "production" + reset
	if cfg.DevMode {
		modeStr = yellow + "development" + reset
	}
	limitStr := "off"
	if cfg.HTTP.RateLimit.Enabled {
		limitStr = fmt.Sprintf("%d per %s per client", cfg.HTTP.RateLimit.Rate, cfg.HTTP.RateLimit.Period)
	}
	authStr := "off"
	if cfg.Security.Enabled {
		authStr = "basic (" + cfg.Security.Username + ")"
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  %s%s http-source %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "  %-10s %s %s://%s%s\n", "Ingest:", strings.Join(cfg.HTTP.Methods, ","), scheme, host, cfg.HTTP.URIPath)
	fmt.Fprintf(w, "  %-10s %s://%s/health\n", "Health:", scheme, host)
	fmt.Fprintf(w, "  %-10s %s\n", "Output:", cfg.Output.Type)
	fmt.Fprintf(w, "  %-10s %s\n", "Auth:", authStr)
	fmt.Fprintf(w, "  %-10s %s\n", "Limit:", limitStr)
	fmt.Fprintf(w, "  %-10s %s\n", "Mode:", modeStr)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "\n")
}
