package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig selects level, format and destination for the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error. Anything else means info.
	Level string

	// Format is "json" (the default) or "text".
	Format string

	// Output defaults to os.Stderr so that stdout stays machine readable.
	Output io.Writer

	AddSource bool

	// RedactPatterns extend the built-in secret patterns.
	RedactPatterns []string
}

// Logger is a context-aware front for a *slog.Logger whose handler scrubs
// secrets and stamps request, source and command fields from the context.
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "debug"})
//	logger.Info(ctx, "models loaded", "source", "upstream", "count", 212)
type Logger struct {
	logger *slog.Logger
}

type contextKey string

const (
	// RequestIDKey carries the API request ID.
	RequestIDKey contextKey = "request_id"
	// SourceKey carries the name of the pricing source being loaded.
	SourceKey contextKey = "source"
	// CommandKey carries the running CLI command.
	CommandKey contextKey = "command"
)

var stampedKeys = [...]contextKey{RequestIDKey, SourceKey, CommandKey}

const redacted = "[REDACTED]"

// redactRule replaces every match of re with replace, which may refer to
// submatches.
type redactRule struct {
	re      *regexp.Regexp
	replace string
}

var builtinRules = []redactRule{
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)[\s:=]+["']?[a-zA-Z0-9_\-]{16,}["']?`), redacted},
	{regexp.MustCompile(`(?i)(bearer|token)[\s:]+[a-zA-Z0-9_\-.]{16,}`), redacted},
	{regexp.MustCompile(`(?i)(secret|password|passwd|pwd)[\s:=]+["']?[^\s"']{8,}["']?`), redacted},
	// The user and host of a DSN stay readable.
	{regexp.MustCompile(`(?i)((?:postgres|postgresql|mysql)://[^:/\s]+:)[^@\s]+@`), "${1}" + redacted + "@"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), redacted},
	{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{32,}`), redacted},
}

var secretKeys = map[string]struct{}{
	"api_key": {}, "apikey": {}, "authorization": {}, "dsn": {},
	"passwd": {}, "password": {}, "secret": {}, "secret_key": {}, "token": {},
}

// NewLogger builds a Logger from config. Invalid custom patterns are
// skipped.
func NewLogger(config LogConfig) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var base slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(config.Format, "text") {
		base = slog.NewTextHandler(out, opts)
	}

	rules := append([]redactRule(nil), builtinRules...)
	for _, p := range config.RedactPatterns {
		if re, err := regexp.Compile(p); err == nil {
			rules = append(rules, redactRule{re: re, replace: redacted})
		}
	}
	return &Logger{logger: slog.New(&scrubHandler{next: base, rules: rules})}
}

func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Slog exposes the underlying logger for packages that take a plain
// *slog.Logger. Scrubbing and context fields still apply.
func (l *Logger) Slog() *slog.Logger { return l.logger }

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// WithFields returns a child logger that adds args to every record.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// scrubHandler redacts secrets and adds stamped context fields before
// handing records to next.
type scrubHandler struct {
	next  slog.Handler
	rules []redactRule
}

func (h *scrubHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *scrubHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := slog.NewRecord(r.Time, r.Level, h.scrub(r.Message), r.PC)
	for _, key := range stampedKeys {
		if v, _ := ctx.Value(key).(string); v != "" {
			rec.AddAttrs(slog.String(string(key), v))
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.AddAttrs(h.scrubAttr(a))
		return true
	})
	return h.next.Handle(ctx, rec)
}

func (h *scrubHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, h.scrubAttr(a))
	}
	return &scrubHandler{next: h.next.WithAttrs(clean), rules: h.rules}
}

func (h *scrubHandler) WithGroup(name string) slog.Handler {
	return &scrubHandler{next: h.next.WithGroup(name), rules: h.rules}
}

func (h *scrubHandler) scrubAttr(a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ReplaceAll(strings.ToLower(a.Key), "-", "_")]; ok {
		return slog.String(a.Key, redacted)
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.scrub(v.String()))
	case slog.KindGroup:
		members := v.Group()
		clean := make([]any, len(members))
		for i, m := range members {
			clean[i] = h.scrubAttr(m)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if s, ok := h.stringify(v.Any()); ok {
			return slog.String(a.Key, h.scrub(s))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// stringify renders values that can carry secrets in their text.
func (h *scrubHandler) stringify(val any) (string, bool) {
	switch val := val.(type) {
	case error:
		return val.Error(), true
	case []byte:
		return string(val), true
	case map[string]string, map[string]any:
		b, err := json.Marshal(val)
		return string(b), err == nil
	}
	return "", false
}

func (h *scrubHandler) scrub(s string) string {
	for _, rule := range h.rules {
		s = rule.re.ReplaceAllString(s, rule.replace)
	}
	return s
}

// AddRequestID stores the API request ID in ctx.
func AddRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// AddSource stores the pricing source name in ctx.
func AddSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, SourceKey, source)
}

// AddCommand stores the CLI command name in ctx.
func AddCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, CommandKey, command)
}

// GetRequestID returns the request ID stored by AddRequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
