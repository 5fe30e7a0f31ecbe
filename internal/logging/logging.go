// Package logging builds the zap loggers used by the commands.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ValidLevel reports whether level names a zap level this package accepts.
func ValidLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat reports whether format is "json" or "console".
func ValidFormat(format string) bool {
	return format == "json" || format == "console"
}

// New creates a logger writing to stderr.
func New(level, format string) (*zap.Logger, error) {
	return NewWithSink(level, format, zapcore.Lock(os.Stderr))
}

// NewWithSink creates a logger writing to w.
func NewWithSink(level, format string, w zapcore.WriteSyncer) (*zap.Logger, error) {
	if !ValidLevel(level) {
		return nil, fmt.Errorf("logging: invalid level %q", level)
	}
	if !ValidFormat(format) {
		return nil, fmt.Errorf("logging: invalid format %q", format)
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	core := zapcore.NewCore(newEncoder(format), w, lvl)
	return zap.New(core), nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}
