package project

import (
	"github.com/timberline-hq/timberline/internal/project/repository"
	"github.com/timberline-hq/timberline/internal/project/service"
	"go.uber.org/fx"
)

var Module = fx.Module("project.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
