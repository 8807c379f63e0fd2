package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/streamkit/http-source/internal/domain/pipeline"
	"github.com/streamkit/http-source/internal/port/inbound"
)

// defaultMaxBodyBytes is the default request body limit (1 MiB).
const defaultMaxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx answer from the ingest endpoint.
type errorResponse struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

// ingestHandler turns an HTTP request into one Ingest call.
type ingestHandler struct {
	svc            inbound.IngestService
	path           string
	methods        map[string]struct{}
	allow          string
	responseStatus int
	maxBodyBytes   int64
	metrics        *Metrics
}

func newIngestHandler(svc inbound.IngestService, path string, methods []string, responseStatus int, maxBodyBytes int64, metrics *Metrics) *ingestHandler {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = struct{}{}
	}
	return &ingestHandler{
		svc:            svc,
		path:           path,
		methods:        set,
		allow:          strings.ToUpper(strings.Join(methods, ", ")),
		responseStatus: responseStatus,
		maxBodyBytes:   maxBodyBytes,
		metrics:        metrics,
	}
}

func (h *ingestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	if r.URL.Path != h.path {
		writeError(w, r, http.StatusNotFound, "No handler for "+r.URL.Path)
		return
	}
	if _, ok := h.methods[r.Method]; !ok {
		w.Header().Set("Allow", h.allow)
		writeError(w, r, http.StatusMethodNotAllowed, "Request method '"+r.Method+"' is not supported")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !isJSONContentType(contentType) {
		h.observe(pipeline.KindUnsupportedMediaType.String())
		pe := pipeline.UnsupportedMediaType(contentType)
		logger.Warn("request rejected", "kind", pe.Kind.String(), "error", pe.Error())
		writeError(w, r, http.StatusUnsupportedMediaType, pe.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body exceeds limit")
			return
		}
		// Stream failures are not client errors.
		h.observe("error")
		logger.Error("failed to read request body", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to process request")
		return
	}

	if _, err := h.svc.Ingest(r.Context(), body, requestHeaders(r)); err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	h.observe("delivered")
	if h.metrics != nil {
		h.metrics.PayloadBytes.Observe(float64(len(body)))
	}
	w.WriteHeader(h.responseStatus)
}

func (h *ingestHandler) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, pipeline.ErrCanceled) {
		h.observe("canceled")
		writeError(w, r, http.StatusServiceUnavailable, "request canceled")
		return
	}

	pe, ok := pipeline.AsError(err)
	if !ok {
		h.observe("error")
		// Internals stay in the log.
		writeError(w, r, http.StatusInternalServerError, "failed to process request")
		return
	}

	h.observe(pe.Kind.String())
	switch pe.Kind {
	case pipeline.KindUnsupportedMediaType:
		writeError(w, r, http.StatusUnsupportedMediaType, pe.Error())
	case pipeline.KindKeyExtractionFailure:
		writeError(w, r, http.StatusInternalServerError, "failed to process request")
	default:
		writeError(w, r, http.StatusBadRequest, pe.Error())
	}
}

func (h *ingestHandler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.EnvelopesTotal.WithLabelValues(outcome).Inc()
	}
}

// isJSONContentType accepts application/json and any +json media type,
// with or without parameters.
func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// requestHeaders flattens the inbound header map. Names are lower-cased and
// repeated headers are joined with ",".
func requestHeaders(r *http.Request) pipeline.Headers {
	headers := pipeline.NewHeaders()
	for name, values := range r.Header {
		headers.Set(strings.ToLower(name), strings.Join(values, ","))
	}
	if r.Host != "" {
		headers.Set("host", r.Host)
	}
	return headers
}

// writeError writes the JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      r.URL.Path,
	})
}
