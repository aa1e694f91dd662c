package order

import (
	"github.com/timberline-hq/timberline/internal/order/repository"
	"github.com/timberline-hq/timberline/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
