package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// global is the fallback logger used when a context carries none.
	//nolint:gochecknoglobals // Fallback for contexts without a logger.
	global *zap.SugaredLogger
	// defaultLevel is the level shared by loggers built without an explicit one.
	//nolint:gochecknoglobals // Level must be adjustable after init.
	defaultLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
)

func init() { //nolint:gochecknoinits // Logging must work before Setup runs.
	SetLogger(New(defaultLevel))
}

// Options describes the process logger.
type Options struct {
	// Level is the minimum level written to every sink.
	Level zapcore.Level
	// File is an optional path for a rotated JSON log file.
	File string
}

// New creates a *zap.SugaredLogger writing to stdout in console format.
// If the level is nil, the shared default level is used.
func New(level zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	if level == nil {
		level = defaultLevel
	}

	core := zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stdout), level)

	return zap.New(core, options...).Sugar()
}

// Setup installs the process logger described by opts and returns a function
// that flushes and closes the sinks.
func Setup(opts Options) func() error {
	defaultLevel.SetLevel(opts.Level)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stdout), defaultLevel),
	}

	closers := make([]func() error, 0, 1)

	if opts.File != "" {
		sink := newFileSink(opts.File)
		cores = append(cores, zapcore.NewCore(fileEncoder(), zapcore.AddSync(sink), defaultLevel))
		closers = append(closers, sink.Close)
	}

	l := zap.New(zapcore.NewTee(cores...)).Sugar()
	SetLogger(l)

	return func() error {
		_ = l.Sync()

		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				return err
			}
		}

		return nil
	}
}

// consoleEncoder is the human-readable stdout encoder.
//
//nolint:ireturn // zapcore API.
func consoleEncoder() zapcore.Encoder {
	//nolint:exhaustruct // Defaults are fine for the remaining fields.
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "message",
		LevelKey:         "level",
		NameKey:          "logger",
		CallerKey:        "caller",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: ", ",
	})
}

// ParseLogLevel converts string input to zap log level.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "dpanic":
		return zapcore.DPanicLevel, true
	case "panic":
		return zapcore.PanicLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	default:
		return zapcore.ErrorLevel, false
	}
}

// Level returns the current default logging level.
func Level() zapcore.Level {
	return defaultLevel.Level()
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global
}

// SetLogger sets the global logger.
// This function is not thread-safe.
func SetLogger(l *zap.SugaredLogger) {
	global = l
}

// Debug writes a debug level message using the logger from the context.
func Debug(ctx context.Context, args ...any) {
	FromContext(ctx).Debug(args...)
}

// Debugf writes a formatted debug level message using the logger from the context.
func Debugf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Debugf(format, args...)
}

// DebugKV writes a message and key-value pairs at the debug level.
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// Info writes an information level message using the logger from the context.
func Info(ctx context.Context, args ...any) {
	FromContext(ctx).Info(args...)
}

// Infof writes a formatted information level message using the logger from the context.
func Infof(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Infof(format, args...)
}

// InfoKV writes a message and key-value pairs at the information level.
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// Warn writes a warning level message using the logger from the context.
func Warn(ctx context.Context, args ...any) {
	FromContext(ctx).Warn(args...)
}

// WarnKV writes a message and key-value pairs at the warning level.
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// Error writes an error level message using the logger from the context.
func Error(ctx context.Context, args ...any) {
	FromContext(ctx).Error(args...)
}

// Errorf writes a formatted error level message using the logger from the context.
func Errorf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Errorf(format, args...)
}

// ErrorKV writes a message and key-value pairs at the error level.
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}

// Fatalf writes a formatted fatal message and then calls os.Exit(1).
func Fatalf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Fatalf(format, args...)
}
