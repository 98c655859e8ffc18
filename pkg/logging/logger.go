// Package logging builds the zap loggers used by the authenticator and the
// structured fields it logs with.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment names accepted by NewLogger.
const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

// ParseLevel maps "debug", "info", "warn" and "error" to a zap level.
// Anything else is info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger creates a logger writing to stdout. Production uses JSON output,
// every other environment uses the console encoder.
func NewLogger(level, environment string) (*zap.Logger, error) {
	return NewLoggerTo(os.Stdout, level, environment), nil
}

// NewLoggerTo creates a logger writing to w.
func NewLoggerTo(w io.Writer, level, environment string) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if environment == EnvironmentProduction {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), ParseLevel(level))
	return zap.New(core, zap.AddCaller())
}

// Account tags a log entry with an account identifier.
func Account(identifier string) zap.Field {
	return zap.String("account", identifier)
}

// Mechanism tags a log entry with a mechanism uuid.
func Mechanism(uuid string) zap.Field {
	return zap.String("mechanism", uuid)
}

// MessageID tags a log entry with a push message id.
func MessageID(id string) zap.Field {
	return zap.String("message_id", id)
}

// Policy tags a log entry with a policy name.
func Policy(name string) zap.Field {
	return zap.String("policy", name)
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}
