// Package logger builds the zap loggers used across the service.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rl1809/inventory/internal/config"
)

// New returns a JSON logger in production and a colored console logger otherwise.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := zc.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, err
	}
	return l.With(
		zap.String("service.name", config.ServiceName),
		zap.String("env", cfg.AppEnv),
	), nil
}
