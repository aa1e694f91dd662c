package providers

import (
	"github.com/timberline-hq/timberline/internal/providers/email"
	"github.com/timberline-hq/timberline/internal/providers/pdf"
	"github.com/timberline-hq/timberline/internal/providers/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	storage.Module,
)
