package web

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/inferprice/internal/observability"
	"github.com/haasonsaas/inferprice/internal/ratelimit"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// Middleware decorates a handler.
type Middleware = func(http.Handler) http.Handler

// RequestIDMiddleware assigns each request an id, reusing the caller's
// X-Request-ID when present, and echoes it in the response.
func RequestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(observability.AddRequestID(r.Context(), id)))
		})
	}
}

// LoggingMiddleware writes one debug record per request.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr, elapsed := serveRecorded(next, w, r)
			logger.DebugContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sr.status),
				slog.Duration("elapsed", elapsed),
				slog.String("client", clientAddr(r)),
			)
		})
	}
}

// MetricsMiddleware records request counts and latency by route.
func MetricsMiddleware(metrics *observability.Metrics, route func(*http.Request) string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr, elapsed := serveRecorded(next, w, r)
			metrics.RecordHTTPRequest(r.Method, route(r), strconv.Itoa(sr.status), elapsed.Seconds())
		})
	}
}

// TracingMiddleware wraps each request in a server span. Responses of 500
// and above mark the span failed.
func TracingMiddleware(tracer *observability.Tracer, route func(*http.Request) string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.TraceHTTPRequest(r, route(r))
			defer span.End()

			sr, _ := serveRecorded(next, w, r.WithContext(ctx))

			tracer.SetAttributes(span, "http.status_code", sr.status)
			if id := observability.GetRequestID(ctx); id != "" {
				tracer.SetAttributes(span, "request.id", id)
			}
			if sr.status >= http.StatusInternalServerError {
				tracer.RecordError(span, statusError(sr.status))
			}
		})
	}
}

type statusError int

func (e statusError) Error() string {
	return "http status " + strconv.Itoa(int(e))
}

// RateLimitMiddleware rejects /api requests over the per-client limit with
// 429 and a Retry-After header. Health and metrics endpoints are exempt.
func RateLimitMiddleware(limiter *ratelimit.Limiter, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			client := clientAddr(r)
			ok, wait := limiter.Allow(client)
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			if logger != nil {
				logger.DebugContext(r.Context(), "rate limited", "client", client, "path", r.URL.Path)
			}
			h := w.Header()
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
		})
	}
}

func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// CORSMiddleware echoes allowed origins back to browsers and answers
// preflight requests itself. "*" allows any origin.
func CORSMiddleware(allowedOrigins []string) Middleware {
	allowAny := slices.Contains(allowedOrigins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAny || slices.Contains(allowedOrigins, origin)) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// serveRecorded runs next and reports the status it wrote and how long it
// took.
func serveRecorded(next http.Handler, w http.ResponseWriter, r *http.Request) (*statusRecorder, time.Duration) {
	sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	next.ServeHTTP(sr, r)
	return sr, time.Since(start)
}

// statusRecorder remembers the first status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.written {
		return
	}
	sr.status, sr.written = code, true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.WriteHeader(http.StatusOK)
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}
