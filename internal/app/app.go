// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/mixer"
	"github.com/Raikerian/go-tdmmix/internal/scheduler"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	// Combine all provided modules with lifecycle management
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	app := fx.New(options...)

	return &Application{
		app: app,
	}
}

// Err returns the error fx met while building the graph, if any.
func (a *Application) Err() error {
	return a.app.Err()
}

// Start runs the OnStart hooks: the tick scheduler begins driving the mixer.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Run starts the application and blocks until it's stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// LifecycleParams holds dependencies for registerLifecycleHooks.
type LifecycleParams struct {
	fx.In
	LC     fx.Lifecycle
	Runner *scheduler.Runner
	Mixer  *mixer.Mixer
	Logger *zap.Logger
}

// registerLifecycleHooks sets up the application lifecycle hooks. The hook
// is appended after the mixer's own, so on shutdown the scheduler stops
// before the mixer detaches its spans.
func registerLifecycleHooks(params LifecycleParams) {
	logger := params.Logger
	params.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application: starting tick scheduler",
				zap.Int("conferences", params.Mixer.Conferences()),
				zap.Duration("period", params.Runner.Period()))

			if err := params.Runner.Start(); err != nil {
				logger.Error("Failed to start tick scheduler", zap.Error(err))

				return fmt.Errorf("failed to start tick scheduler: %w", err)
			}

			logger.Info("Application started successfully")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application: stopping tick scheduler")

			if err := params.Runner.Stop(ctx); err != nil {
				logger.Error("Failed to stop tick scheduler", zap.Error(err))

				return err
			}

			logger.Info("Application stopped successfully",
				zap.Uint64("mixer_ticks", params.Mixer.Ticks()))

			return nil
		},
	})
}
