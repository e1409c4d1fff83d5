package logger

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"switchboard/pkg/errors"
)

var (
	globalLogger *Logger

	// level is shared by every logger built by Init, so it can be changed at runtime.
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Logger wraps zap.SugaredLogger with optional error tracking
type Logger struct {
	*zap.SugaredLogger
	errorTracker errors.Tracker
}

// Init initializes the global logger. Production env logs sampled JSON, anything
// else logs to a colored console. Every entry carries the service name.
func Init(lvl string, env string, service string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if err := SetLevel(lvl); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}
	config.Level = level

	opts := []zap.Option{
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if service != "" {
		opts = append(opts, zap.Fields(zap.String("service", service)))
	}

	logger, err := config.Build(opts...)
	if err != nil {
		return err
	}

	globalLogger = &Logger{SugaredLogger: logger.Sugar()}
	return nil
}

// SetLevel changes the level of every logger built by Init.
func SetLevel(lvl string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		return errors.NewValidationError("level", "unknown log level", lvl)
	}
	level.SetLevel(l)
	return nil
}

// Level reports the current level name.
func Level() string {
	return level.Level().String()
}

// LevelHandler serves GET (current level) and PUT {"level":"debug"} for the global level.
func LevelHandler() http.Handler {
	return level
}

// NewNop returns a logger that discards everything. Handy in tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// SetErrorTracker sets the error tracker for automatic error reporting
func SetErrorTracker(tracker errors.Tracker) {
	if globalLogger != nil {
		globalLogger.errorTracker = tracker
	}
}

// Get returns the global logger
func Get() *Logger {
	if globalLogger == nil {
		logger, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: logger.Sugar()}
	}
	return globalLogger
}

// Component returns a child of the global logger tagged with a component name
func Component(name string) *Logger {
	return Get().With("component", name)
}

// With creates a child logger with additional fields
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		errorTracker:  l.errorTracker,
	}
}

// Errorf logs a formatted error and optionally sends it to error tracker
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)

	if l.errorTracker != nil {
		l.errorTracker.CaptureError(context.Background(), fmt.Errorf(template, args...), map[string]string{
			"component": "logger",
		})
	}
}

// ErrorWithContext logs err with its taxonomy kind and reports it to the error
// tracker. The kind is added to tags unless the caller set one.
func (l *Logger) ErrorWithContext(ctx context.Context, err error, tags map[string]string) {
	kind := errors.Kind(err)
	l.SugaredLogger.Errorw(err.Error(), "kind", kind)

	if l.errorTracker == nil {
		return
	}
	merged := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		merged[k] = v
	}
	if _, ok := merged["kind"]; !ok {
		merged["kind"] = kind
	}
	l.errorTracker.CaptureError(ctx, err, merged)
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
