// Package logger provides the console logger shared by the batch runners.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a console logger writing to stderr, leaving stdout to the
// progress printer.
func NewLogger(debug bool) *zap.Logger {
	return New(debug, os.Stderr)
}

// New builds a console logger on the given sink. The sink is locked so that
// concurrent workers never interleave partial lines.
func New(debug bool, sink zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(sink),
		level,
	)

	return zap.New(core, zap.AddCaller())
}
