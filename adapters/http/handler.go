// Package http provides the gateway's HTTP surface: the dataplane proxy
// route and the liveness/readiness/metrics endpoints around it.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/svcgate/gateway/adapters/metrics"
	"github.com/svcgate/gateway/app"
	"github.com/svcgate/gateway/domain/breaker"
	"github.com/svcgate/gateway/domain/gatewayerr"
	"github.com/svcgate/gateway/domain/ratelimit"
	"github.com/svcgate/gateway/domain/streaming"
)

// DataplaneHandler adapts app.DataplaneService to net/http: it extracts the
// connector slug and consumer path from the route, reads the body under
// app.MaxBodyBytes, and renders the resulting app.Result or gatewayerr.Error
// back to the wire.
type DataplaneHandler struct {
	service *app.DataplaneService
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewDataplaneHandler builds the dataplane HTTP adapter.
func NewDataplaneHandler(service *app.DataplaneService, logger zerolog.Logger, m *metrics.Collector) *DataplaneHandler {
	return &DataplaneHandler{service: service, logger: logger, metrics: m}
}

// ServeHTTP handles every method against /api/v1/gw/{slug}/*. The connector
// and endpoint are resolved entirely inside app.DataplaneService; this
// adapter only owns request/response marshaling.
func (h *DataplaneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := chi.URLParam(r, "slug")
	consumerPath := "/" + chi.URLParam(r, "*")
	start := time.Now()

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, app.MaxBodyBytes+1))
		if err != nil {
			WriteGatewayError(w, gatewayerr.ErrInternal)
			return
		}
		if int64(len(body)) > app.MaxBodyBytes {
			WriteGatewayError(w, gatewayerr.ErrRequestTooLarge)
			return
		}
	}

	result, err := h.service.Handle(ctx, r, slug, consumerPath, body)
	if err != nil {
		ge, ok := err.(*gatewayerr.Error)
		if !ok {
			ge = gatewayerr.ErrInternal
		}
		h.logger.Debug().
			Str("connector", slug).
			Str("path", consumerPath).
			Str("code", ge.Code).
			Msg("dataplane request failed")
		if h.metrics != nil {
			h.metrics.ObserveRequest(slug, "", ge.HTTPStatus, time.Since(start).Milliseconds(), false)
		}
		WriteGatewayError(w, ge)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveRequest(result.ConnectorSlug, result.EndpointName, result.Status, time.Since(start).Milliseconds(), result.Cached)
	}

	for k, v := range result.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(result.Status)
	if result.Stream != nil {
		closer, _ := result.Stream.(io.Closer)
		if closer == nil {
			closer = io.NopCloser(result.Stream)
		}
		counted := streaming.NewByteCounter(closer)
		defer counted.Close()

		if flusher, ok := w.(http.Flusher); ok {
			io.Copy(flusherWriter{w, flusher}, counted)
		} else {
			io.Copy(w, counted)
		}

		h.logger.Debug().
			Str("connector", slug).
			Str("path", consumerPath).
			Int64("stream_bytes", counted.Count()).
			Dur("duration", time.Since(start)).
			Msg("stream complete")
		return
	}
	w.Write(result.Body)
}

// WriteGatewayError renders a gatewayerr.Error as the consumer-facing JSON
// error body of spec.md §7. Retry-After is set only for rate-limited (the
// rate-limit window) and circuit-open (the breaker's open duration) errors;
// quota-exceeded and every other code are written without it.
func WriteGatewayError(w http.ResponseWriter, ge *gatewayerr.Error) {
	switch ge.Code {
	case gatewayerr.ErrRateLimited.Code:
		w.Header().Set("Retry-After", strconv.Itoa(int(ratelimit.Window.Seconds())))
	case gatewayerr.ErrCircuitOpen.Code:
		w.Header().Set("Retry-After", strconv.Itoa(int(breaker.OpenDuration.Seconds())))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ge.HTTPStatus)
	json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Code:    ge.Code,
		Message: ge.Message,
		Details: ge.Details,
	}})
}

// flusherWriter flushes after every write so a streaming (SSE) response
// reaches the consumer as it arrives rather than sitting in a buffer.
type flusherWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw flusherWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// HealthChecker is pinged by the readiness probe. Implementations wrap the
// storage and counter adapters the dataplane depends on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
}

// NewHealthHandler builds the health handler against zero or more
// dependencies to ping on readiness checks (typically the sqlite DB and the
// active counter store).
func NewHealthHandler(checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

// Liveness reports the process is up, independent of any dependency.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness checks every wired dependency and reports unhealthy on the
// first failure.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, c := range h.checkers {
		if err := c.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Version reports the build version, set at link time via -ldflags by
// cmd/gateway.
var Version = "dev"

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"version": Version, "service": "gateway"})
}

// RouterConfig holds optional router wiring.
type RouterConfig struct {
	Metrics *metrics.Collector
}

// NewRouter builds the gateway's HTTP router: the dataplane catch-all plus
// liveness/readiness/version/metrics.
func NewRouter(dataplane *DataplaneHandler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Get("/version", versionHandler)
	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.HandleFunc("/api/v1/gw/{slug}/*", dataplane.ServeHTTP)

	return r
}

// NewLoggingMiddleware logs one debug line per request, skipping the
// unauthenticated probe endpoints.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if strings.HasPrefix(r.URL.Path, "/healthz") || strings.HasPrefix(r.URL.Path, "/readyz") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
