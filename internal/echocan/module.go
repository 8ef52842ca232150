package echocan

import "go.uber.org/fx"

var Module = fx.Module("echocan",
	fx.Provide(NewDefaultRegistry),
)
