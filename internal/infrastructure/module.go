// Package infrastructure provides core infrastructure components and their Fx modules.
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Raikerian/go-tdmmix/internal/config"
)

// LoggerModule provides logging infrastructure.
var LoggerModule = fx.Module("logger",
	fx.Provide(NewZapLogger),
)

// NewZapLoggerParams holds dependencies for NewZapLogger.
type NewZapLoggerParams struct {
	fx.In
	Cfg *config.Config
	LC  fx.Lifecycle
}

// NewZapLogger creates and configures a new Zap logger. The debug level
// selects the human readable development encoder; every other level logs
// JSON.
func NewZapLogger(params NewZapLoggerParams) (*zap.Logger, error) {
	logger, err := BuildLogger(params.Cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return syncLogger(logger)
		},
	})

	return logger, nil
}

// BuildLogger builds the process logger for a configured level name.
func BuildLogger(level string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if level == "debug" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			lvl = zapcore.InfoLevel
		}
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(lvl)
		// No sampling: overrun warnings are throttled at the source.
		zapConfig.Sampling = nil
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create zap logger: %w", err)
	}
	return logger.Named("tdmmix"), nil
}

// syncLogger flushes the logger, ignoring the error stderr returns when it
// is a terminal.
func syncLogger(logger *zap.Logger) error {
	err := logger.Sync()
	if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) {
		return nil
	}
	return err
}
