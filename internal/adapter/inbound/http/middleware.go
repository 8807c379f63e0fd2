package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/streamkit/http-source/internal/ctxkey"
)

// RequestIDKey is the context key for the request ID.
var RequestIDKey = ctxkey.RequestIDKey{}

// LoggerKey is the context key for the enriched logger.
// Uses shared key type from ctxkey package to allow cross-package access without import cycles.
var LoggerKey = ctxkey.LoggerKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with request_id and client_ip fields is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID, "client_ip", extractRealIP(r))

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// CORSConfig controls cross-origin access to the ingest endpoint.
type CORSConfig struct {
	// AllowedOrigins lists accepted Origin values. "*" accepts any origin.
	AllowedOrigins []string
	// AllowedHeaders lists headers a preflight may request. "*" accepts any.
	AllowedHeaders []string
	// AllowCredentials sets Access-Control-Allow-Credentials.
	AllowCredentials bool
	// Methods is echoed in Access-Control-Allow-Methods.
	Methods []string
}

// CORSMiddleware validates the Origin header and answers preflight requests.
// Requests without an Origin header pass through unchanged (same-origin or
// non-browser). A disallowed origin is rejected with 403.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	anyOrigin := false
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			anyOrigin = true
		}
		allowed[origin] = struct{}{}
	}
	anyHeader := len(cfg.AllowedHeaders) == 0
	allowedHeaders := make(map[string]struct{}, len(cfg.AllowedHeaders))
	for _, h := range cfg.AllowedHeaders {
		if h == "*" {
			anyHeader = true
		}
		allowedHeaders[strings.ToLower(h)] = struct{}{}
	}
	methods := strings.Join(cfg.Methods, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; !ok && !anyOrigin {
				http.Error(w, "Invalid CORS request", http.StatusForbidden)
				return
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			requested := r.Header.Get("Access-Control-Request-Headers")
			if preflight && !anyHeader {
				for _, name := range strings.Split(requested, ",") {
					name = strings.ToLower(strings.TrimSpace(name))
					if name == "" {
						continue
					}
					if _, ok := allowedHeaders[name]; !ok {
						http.Error(w, "Invalid CORS request", http.StatusForbidden)
						return
					}
				}
			}

			// Grant headers are written only once the request is accepted.
			h := w.Header()
			h.Add("Vary", "Origin")
			// Credentials cannot be combined with a wildcard origin.
			if anyOrigin && !cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", methods)
			if requested != "" {
				h.Set("Access-Control-Allow-Headers", requested)
			}
			h.Set("Access-Control-Max-Age", strconv.Itoa(1800))
			w.WriteHeader(http.StatusOK)
		})
	}
}

// BasicAuthMiddleware requires HTTP basic credentials matching username and
// an argon2id password hash. Missing or wrong credentials get 401.
func BasicAuthMiddleware(username, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !checkCredentials(user, pass, username, passwordHash) {
				LoggerFromContext(r.Context()).Warn("authentication failed", "user", user)
				w.Header().Set("WWW-Authenticate", `Basic realm="http-source", charset="UTF-8"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkCredentials(user, pass, username, passwordHash string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
	// Always run the hash comparison so response time does not reveal the username.
	match, err := argon2id.ComparePasswordAndHash(pass, passwordHash)
	if err != nil {
		return false
	}
	return userOK && match
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	// Check X-Forwarded-For first (common reverse proxy header)
	// Format: X-Forwarded-For: client, proxy1, proxy2
	// Trust only the first IP (client IP from first proxy)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}

	// Check X-Real-IP (nginx-style header)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is in "host:port" format, extract host
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
