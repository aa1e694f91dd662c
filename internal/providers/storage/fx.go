package storage

import (
	"github.com/timberline-hq/timberline/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.storage",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) (Provider, error) {
	return NewFilesystem(cfg.StorageDir)
}
