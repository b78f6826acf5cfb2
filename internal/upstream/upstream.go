// Package upstream fetches the raw model listing that feeds normalization.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/inferprice/internal/observability"
	"github.com/haasonsaas/inferprice/internal/retry"
	"github.com/haasonsaas/inferprice/pkg/models"
)

const (
	// DefaultUserAgent identifies requests to the upstream API.
	DefaultUserAgent = "inference-pricing-tool"
	// DefaultMaxBytes bounds the size of an upstream payload.
	DefaultMaxBytes = 32 << 20
)

// Source produces a raw JSON payload.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	// Name labels the source in logs and metrics.
	Name() string
}

// StatusError is a non-200 upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// Config configures an HTTPSource.
type Config struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	Retry     retry.Policy
	// MaxBytes defaults to DefaultMaxBytes.
	MaxBytes int64
}

// HTTPSource fetches the listing over HTTP with retries.
type HTTPSource struct {
	url       string
	userAgent string
	maxBytes  int64
	policy    retry.Policy
	client    *http.Client
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
}

// Option customizes an HTTPSource.
type Option func(*HTTPSource)

// WithHTTPClient replaces the default client. The client timeout is left
// as given.
func WithHTTPClient(client *http.Client) Option {
	return func(s *HTTPSource) { s.client = client }
}

// WithMetrics records each attempt in metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *HTTPSource) { s.metrics = metrics }
}

// WithTracer creates a client span per attempt.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *HTTPSource) { s.tracer = tracer }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *HTTPSource) { s.logger = logger }
}

// NewHTTPSource creates an HTTP source.
func NewHTTPSource(cfg Config, opts ...Option) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &HTTPSource{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		policy:    cfg.Retry,
		client:    &http.Client{Timeout: timeout},
		logger:    slog.Default(),
	}
	if s.userAgent == "" {
		s.userAgent = DefaultUserAgent
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxBytes
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) Name() string { return "upstream" }

// URL returns the fetched address.
func (s *HTTPSource) URL() string { return s.url }

// Fetch downloads the payload, retrying transport errors, 408, 429 and 5xx
// responses. Other statuses fail immediately.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	body, attempts, err := retry.DoWithValue(ctx, s.policy, func(attempt int) ([]byte, error) {
		return s.fetchOnce(ctx)
	}, func(attempt int, err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "upstream fetch failed, retrying",
			"url", s.url,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s after %d attempt(s): %w", s.url, attempts, err)
	}
	return body, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context) (body []byte, err error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.TraceFetch(ctx, s.url)
		defer func() {
			s.tracer.RecordError(span, err)
			span.End()
		}()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if s.tracer != nil {
		s.tracer.InjectHTTP(ctx, req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.record("error")
		return nil, err
	}
	defer resp.Body.Close()
	s.record(strconv.Itoa(resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if !statusErr.Retryable() {
			return nil, retry.Permanent(statusErr)
		}
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			return nil, retry.After(statusErr, wait)
		}
		return nil, statusErr
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, retry.Permanent(fmt.Errorf("payload exceeds %d bytes", s.maxBytes))
	}
	return body, nil
}

func (s *HTTPSource) record(status string) {
	if s.metrics != nil {
		s.metrics.RecordUpstreamRequest(status)
	}
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// FileSource reads the payload from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file" }

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return data, nil
}

// IsStatus reports whether err carries an upstream response with code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// FallbackGraph is served when the upstream is unreachable and fallback
// is enabled: no models, one category and one vendor.
func FallbackGraph() *models.Graph {
	g := &models.Graph{
		Models: []*models.Model{},
		Categories: []*models.Category{{
			ID:          1,
			Name:        "General",
			Description: "General purpose AI models",
		}},
		Vendors: []*models.Vendor{{
			ID:            1,
			Name:          "Anthropic",
			PricingURL:    "https://anthropic.com/pricing",
			ModelsListURL: "https://anthropic.com/models",
		}},
	}
	g.Link()
	return g
}
