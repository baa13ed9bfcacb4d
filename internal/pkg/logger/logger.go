// Package logger is the process-wide sugared zap logger. Entries are JSON and
// carry the trace and span ids of the context they are logged with. Until
// Init is called every helper writes to a no-op logger.
package logger

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// logger is the global SugaredLogger instance. It is replaced once by Init.
	logger = zap.NewNop().Sugar()

	// initOnce ensures the logger is only configured a single time.
	initOnce sync.Once
)

// config holds configuration options for the logger.
type config struct {
	level string              // the minimum log level (debug, info, warn, error, panic, fatal)
	sink  zapcore.WriteSyncer // destination of encoded entries
}

// Option configures the logger before initialization.
type Option func(*config)

// WithLevel sets the minimum log level for the global logger.
// Example levels: "debug", "info", "warn", "error", "panic", "fatal".
func WithLevel(l string) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithSink redirects encoded entries to w instead of stdout.
func WithSink(w zapcore.WriteSyncer) Option {
	return func(c *config) {
		c.sink = w
	}
}

// Init configures the global logger. By default, it logs JSON to stdout at
// the "info" level. Calling Init multiple times has no effect after the
// first successful initialization.
//
// Returns an error if parsing the log level fails.
func Init(opts ...Option) error {
	cfg := config{level: "info", sink: zapcore.AddSync(os.Stdout)}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := zapcore.ParseLevel(cfg.level)
	if err != nil {
		return err
	}

	initOnce.Do(func() {
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			cfg.sink,
			level,
		)

		logger = zap.New(core).Sugar()
	})

	return nil
}

// Sync flushes any buffered log entries. It should be called on application
// shutdown to ensure all logs are written out.
func Sync() error {
	return logger.Sync()
}

// withTrace appends the ids of the span active in ctx, if any.
func withTrace(ctx context.Context, keysAndValues []any) []any {
	if ctx == nil {
		return keysAndValues
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return keysAndValues
	}
	return append(keysAndValues, "trace.id", sc.TraceID().String(), "span.id", sc.SpanID().String())
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Debugw(msg, withTrace(ctx, keysAndValues)...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Infow(msg, withTrace(ctx, keysAndValues)...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Warnw(msg, withTrace(ctx, keysAndValues)...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Errorw(msg, withTrace(ctx, keysAndValues)...)
}

// Fatal logs and exits the process.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Fatalw(msg, withTrace(ctx, keysAndValues)...)
}
