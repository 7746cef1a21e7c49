package automation

import "go.uber.org/fx"

var Module = fx.Module("automation",
	fx.Provide(NewTracker),
)
