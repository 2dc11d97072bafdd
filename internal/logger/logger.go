package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zerodte/internal/config"
)

const service = "zerodte"

// New builds the process logger. Every entry carries the service name and, when set, the deployment env.
func New(cfg config.LogConfig, env string) (*zap.Logger, error) {
	l, err := Config(cfg).Build()
	if err != nil {
		return nil, err
	}
	return withService(l, env), nil
}

func withService(l *zap.Logger, env string) *zap.Logger {
	fields := []zap.Field{zap.String("service", service)}
	if env = strings.TrimSpace(env); env != "" {
		fields = append(fields, zap.String("env", env))
	}
	return l.With(fields...)
}

// Config translates LogConfig into a zap config. Unknown levels fall back to info and
// any encoding other than json is console.
func Config(cfg config.LogConfig) zap.Config {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(strings.TrimSpace(cfg.Level))); err != nil {
		level = zapcore.InfoLevel
	}

	encoding := strings.ToLower(strings.TrimSpace(cfg.Encoding))
	encoder := zap.NewProductionEncoderConfig()
	if encoding != "json" {
		encoding = "console"
		encoder = zap.NewDevelopmentEncoderConfig()
		if cfg.Development {
			encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeDuration = zapcore.MillisDurationEncoder

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encoding,
		DisableCaller:     cfg.DisableCaller,
		DisableStacktrace: cfg.DisableStacktrace,
		EncoderConfig:     encoder,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	if cfg.Sampling {
		zc.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	}
	return zc
}
