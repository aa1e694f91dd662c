package document

import (
	"github.com/timberline-hq/timberline/internal/document/repository"
	"github.com/timberline-hq/timberline/internal/document/service"
	"go.uber.org/fx"
)

var Module = fx.Module("document.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
