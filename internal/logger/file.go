package logger

import (
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// fileMaxSizeMB is the size at which the log file is rotated.
	fileMaxSizeMB = 10
	// fileMaxBackups is the number of rotated files kept.
	fileMaxBackups = 3
	// fileMaxAgeDays is how long rotated files are kept.
	fileMaxAgeDays = 28
)

// newFileSink returns a rotating writer for path.
func newFileSink(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Clean(path),
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
		Compress:   true,
	}
}

// fileEncoder writes one JSON object per line.
//
//nolint:ireturn // zapcore API.
func fileEncoder() zapcore.Encoder {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapcore.NewJSONEncoder(config)
}
