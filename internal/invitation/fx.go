package invitation

import (
	"github.com/timberline-hq/timberline/internal/invitation/repository"
	"github.com/timberline-hq/timberline/internal/invitation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invitation.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
