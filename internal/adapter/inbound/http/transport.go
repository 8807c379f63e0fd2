package http

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/streamkit/http-source/internal/domain/ratelimit"
	"github.com/streamkit/http-source/internal/port/inbound"
)

// HTTPTransport is the inbound adapter that exposes the ingest service
// over HTTP.
type HTTPTransport struct {
	ingest         inbound.IngestService
	server         *http.Server
	addr           string
	certFile       string
	keyFile        string
	path           string
	methods        []string
	responseStatus int
	maxBodyBytes   int64
	cors           *CORSConfig
	authUser       string
	authHash       string
	limiter        ratelimit.Limiter
	limit          ratelimit.Config
	tracing        bool
	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *Metrics
	healthChecker  *HealthChecker
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithPath sets the ingest path. Default is "/".
func WithPath(path string) Option {
	return func(t *HTTPTransport) {
		t.path = path
	}
}

// WithMethods sets the accepted ingest methods. Default is POST.
func WithMethods(methods ...string) Option {
	return func(t *HTTPTransport) {
		t.methods = methods
	}
}

// WithResponseStatus sets the status written after a successful delivery.
// Default is 202 Accepted.
func WithResponseStatus(status int) Option {
	return func(t *HTTPTransport) {
		t.responseStatus = status
	}
}

// WithMaxBodyBytes limits the request body size. Default is 1 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(t *HTTPTransport) {
		t.maxBodyBytes = n
	}
}

// WithCORS enables origin validation and preflight handling.
func WithCORS(cfg CORSConfig) Option {
	return func(t *HTTPTransport) {
		t.cors = &cfg
	}
}

// WithBasicAuth protects the ingest endpoint and /metrics with HTTP basic
// authentication. passwordHash is an argon2id hash.
func WithBasicAuth(username, passwordHash string) Option {
	return func(t *HTTPTransport) {
		t.authUser = username
		t.authHash = passwordHash
	}
}

// WithRateLimit limits each client address to cfg on the ingest endpoint.
func WithRateLimit(limiter ratelimit.Limiter, cfg ratelimit.Config) Option {
	return func(t *HTTPTransport) {
		t.limiter = limiter
		t.limit = cfg
	}
}

// WithTracing wraps the handler with OpenTelemetry HTTP instrumentation.
func WithTracing(enabled bool) Option {
	return func(t *HTTPTransport) {
		t.tracing = enabled
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics and the registry served on /metrics. The
// same Metrics usually observe the pipeline stages.
func WithMetrics(m *Metrics, reg *prometheus.Registry) Option {
	return func(t *HTTPTransport) {
		t.metrics = m
		t.registry = reg
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// NewHTTPTransport creates an HTTP transport adapter wrapping the given
// ingest service.
func NewHTTPTransport(ingest inbound.IngestService, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		ingest:         ingest,
		addr:           "127.0.0.1:8080",
		path:           "/",
		methods:        []string{http.MethodPost},
		responseStatus: http.StatusAccepted,
		maxBodyBytes:   defaultMaxBodyBytes,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.registry == nil {
		t.registry = NewRegistry()
		t.metrics = NewMetrics(t.registry)
	}
	if t.healthChecker == nil {
		t.healthChecker = NewHealthChecker(ingest, nil, "")
	}

	return t
}

// NewRegistry returns a registry carrying the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler builds the routed handler with the full middleware chain.
func (t *HTTPTransport) Handler() http.Handler {
	// Middleware order (outermost first):
	// 1. MetricsMiddleware - Record duration and status (MUST be outermost to capture full duration)
	// 2. RequestID - Extract/generate request ID and enrich logger
	// 3. RateLimit - Per client address, when configured
	// 4. CORS - Origin check and preflight, before auth so preflights carry no credentials
	// 5. BasicAuth - When configured
	// 6. Handler - Ingest
	var ingest http.Handler = newIngestHandler(t.ingest, t.path, t.methods, t.responseStatus, t.maxBodyBytes, t.metrics)
	if t.authHash != "" {
		ingest = BasicAuthMiddleware(t.authUser, t.authHash)(ingest)
	}
	if t.cors != nil {
		cfg := *t.cors
		if len(cfg.Methods) == 0 {
			cfg.Methods = t.methods
		}
		ingest = CORSMiddleware(cfg)(ingest)
	}
	if t.limiter != nil {
		ingest = RateLimitMiddleware(t.limiter, t.limit, t.metrics)(ingest)
	}
	ingest = RequestIDMiddleware(t.logger)(ingest)
	ingest = MetricsMiddleware(t.metrics)(ingest)

	var metricsHandler http.Handler = promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	})
	if t.authHash != "" {
		metricsHandler = BasicAuthMiddleware(t.authUser, t.authHash)(metricsHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", t.healthChecker.Handler())
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/", ingest)

	var handler http.Handler = mux
	if t.tracing {
		handler = otelhttp.NewHandler(handler, "http-source")
	}
	return handler
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}
	return t.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context is cancelled.
func (t *HTTPTransport) Serve(ctx context.Context, ln net.Listener) error {
	t.server = &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Configure TLS if certificates provided
	tlsEnabled := t.certFile != "" && t.keyFile != ""
	if tlsEnabled {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	// Channel for server errors
	errCh := make(chan error, 1)

	go func() {
		var err error
		if tlsEnabled {
			t.logger.Info("starting HTTPS server", "addr", ln.Addr().String(), "path", t.path)
			err = t.server.ServeTLS(ln, t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", ln.Addr().String(), "path", t.path)
			err = t.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
