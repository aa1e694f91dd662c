package timeline

import (
	"github.com/timberline-hq/timberline/internal/timeline/repository"
	"github.com/timberline-hq/timberline/internal/timeline/service"
	"go.uber.org/fx"
)

var Module = fx.Module("timeline.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
