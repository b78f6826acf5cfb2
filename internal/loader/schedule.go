package loader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// Schedule refreshes the graph on a standard five-field cron expression or
// a descriptor such as "@hourly" or "@every 30m". The returned function
// stops the scheduler and waits for a running refresh to finish.
func (l *Loader) Schedule(ctx context.Context, expr string) (func(), error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("refresh schedule is required")
	}

	c := cron.New(
		cron.WithLogger(cronLogger{logger: l.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: l.logger})),
	)
	if _, err := c.AddFunc(expr, func() {
		if _, err := l.Refresh(ctx); err != nil {
			l.logger.WarnContext(ctx, "scheduled refresh failed", "schedule", expr, "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
	}

	c.Start()
	l.logger.InfoContext(ctx, "scheduled pricing refresh", "schedule", expr)
	return func() { <-c.Stop().Done() }, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
