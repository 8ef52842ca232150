package mixer

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/config"
	"github.com/Raikerian/go-tdmmix/internal/echocan"
	"github.com/Raikerian/go-tdmmix/internal/span"
	"github.com/Raikerian/go-tdmmix/pkg/audio"
)

var Module = fx.Module("mixer",
	fx.Provide(NewFromConfig),
)

// NewFromConfigParams holds dependencies for NewFromConfig.
type NewFromConfigParams struct {
	fx.In
	Cfg    *config.Config
	Echo   *echocan.Registry
	Logger *zap.Logger
	LC     fx.Lifecycle
}

// NewFromConfig creates the mixer, attaches the configured spans and applies
// the conference plan.
func NewFromConfig(params NewFromConfigParams) (*Mixer, error) {
	p, err := ParamsFromConfig(params.Cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid mixer configuration: %w", err)
	}
	m, err := New(p, params.Echo, params.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create mixer: %w", err)
	}

	for _, sc := range params.Cfg.Spans {
		li, err := span.New(sc, params.Logger)
		if err != nil {
			_ = m.Stop()
			return nil, err
		}
		law, err := audio.ParseLaw(sc.Law)
		if err != nil {
			_ = m.Stop()
			return nil, err
		}
		if _, err := m.AddSpan(li, law); err != nil {
			_ = li.Close()
			_ = m.Stop()
			return nil, err
		}
	}
	if err := m.ApplyPlan(params.Cfg.Conferences); err != nil {
		_ = m.Stop()
		return nil, err
	}

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return m.Stop()
		},
	})

	return m, nil
}
