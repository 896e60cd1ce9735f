package utils

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	z *zap.Logger
}

func NewNopLogger() *Logger {
	return &Logger{z: zap.NewNop()}
}

// NewServiceLogger builds a zap logger for level ("debug", "info", "warn",
// "error") and format ("json" or "console").
func NewServiceLogger(level, format, serviceName string) (*Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		z = z.With(zap.String("service_name", serviceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		z = z.With(zap.String("hostname", hostname))
	}
	return &Logger{z: z}, nil
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Error(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info(msg, fields...)
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil || l.z == nil {
		return l
	}
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

func (l *Logger) Sync() {
	if l == nil || l.z == nil {
		return
	}
	_ = l.z.Sync()
}
