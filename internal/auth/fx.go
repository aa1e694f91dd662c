package auth

import (
	"go.uber.org/fx"

	"github.com/timberline-hq/timberline/internal/auth/repository"
	"github.com/timberline-hq/timberline/internal/auth/service"
	"github.com/timberline-hq/timberline/internal/auth/session"
)

var Module = fx.Module("auth",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(session.NewManager),
)
