package subscription

import (
	"github.com/Wollie333/vilo-sub003/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(service.NewService),
)
