package scheduler

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/config"
	"github.com/Raikerian/go-tdmmix/internal/mixer"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewFromConfig),
)

// NewFromConfigParams holds dependencies for NewFromConfig.
type NewFromConfigParams struct {
	fx.In
	Cfg    *config.Config
	Mixer  *mixer.Mixer
	Logger *zap.Logger
}

// NewFromConfig creates the Runner for the mixer. The application lifecycle
// starts and stops it.
func NewFromConfig(params NewFromConfigParams) *Runner {
	s := params.Cfg.Scheduler
	return New(params.Mixer, s.Period, s.OverrunLogInterval, params.Logger.Named("scheduler"))
}
