package lodgo

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/lodgo/genqueue"
	"github.com/hupe1980/lodgo/pos"
)

// Logger wraps slog.Logger with lodgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithPos adds a section position field to the logger.
func (l *Logger) WithPos(p pos.Pos) *Logger {
	return &Logger{
		Logger: l.Logger.With("pos", p.Key()),
	}
}

// WithDetail adds a detail-level field to the logger.
func (l *Logger) WithDetail(detail uint8) *Logger {
	return &Logger{
		Logger: l.Logger.With("detail", detail),
	}
}

// LogBuild logs a section build operation.
func (l *Logger) LogBuild(ctx context.Context, p pos.Pos, complete bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "section build failed",
			"pos", p.Key(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "section build completed",
			"pos", p.Key(),
			"complete", complete,
		)
	}
}

// LogFlush logs a provider-wide flush.
func (l *Logger) LogFlush(ctx context.Context, sections int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush completed with failures",
			"sections", sections,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "flush completed",
			"sections", sections,
		)
	}
}

// LogGenTask logs the outcome of one generation task.
func (l *Logger) LogGenTask(ctx context.Context, p pos.Pos, result genqueue.Result) {
	switch result {
	case genqueue.ResultSuccess:
		l.DebugContext(ctx, "generation task completed",
			"pos", p.Key(),
		)
	case genqueue.ResultCancelled:
		l.DebugContext(ctx, "generation task cancelled",
			"pos", p.Key(),
		)
	default:
		l.WarnContext(ctx, "generation task failed",
			"pos", p.Key(),
		)
	}
}

// LogStartupScan logs the result of the storage scan at construction.
func (l *Logger) LogStartupScan(ctx context.Context, sections, skipped int) {
	if skipped > 0 {
		l.WarnContext(ctx, "storage scan completed with unparseable keys",
			"sections", sections,
			"skipped", skipped,
		)
	} else {
		l.InfoContext(ctx, "storage scan completed",
			"sections", sections,
		)
	}
}
