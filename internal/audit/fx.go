package audit

import (
	"github.com/timberline-hq/timberline/internal/audit/repository"
	"github.com/timberline-hq/timberline/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
