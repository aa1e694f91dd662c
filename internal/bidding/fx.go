package bidding

import (
	"github.com/timberline-hq/timberline/internal/bidding/repository"
	"github.com/timberline-hq/timberline/internal/bidding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("bidding.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
