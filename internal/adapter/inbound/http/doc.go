// Package http provides the HTTP transport for the ingestion connector.
//
// # Usage
//
//	transport := http.NewHTTPTransport(ingestService,
//	    http.WithAddr(":8080"),
//	    http.WithPath("/events"),
//	    http.WithCORS(http.CORSConfig{AllowedOrigins: []string{"*"}}),
//	    http.WithLogger(logger),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	<path>    - Ingest a JSON body (POST by default)
//	/health   - UP/DOWN with sink status and counters
//	/metrics  - Prometheus metrics
//
// # Responses
//
// A delivered request answers with the configured status (202 by default)
// and an empty body. Failures answer with a JSON body:
//
//	{"timestamp":"...","status":400,"error":"Bad Request","message":"...","path":"/events"}
//
// Content types other than application/json or +json get 415 before the
// pipeline runs. Validation failures get 400 with every issue joined by
// ", ". Key extraction failures and sink errors get 500 with a generic
// message.
//
// # Middleware Chain
//
//  1. MetricsMiddleware - Records duration and status class
//  2. RequestIDMiddleware - Request-scoped logger with request_id
//  3. RateLimitMiddleware - Per client address, 429 with Retry-After, when enabled
//  4. CORSMiddleware - Origin validation and preflight
//  5. BasicAuthMiddleware - argon2id credentials, when enabled
//  6. Ingest handler
package http
