package notification

import (
	"go.uber.org/fx"

	biddingdomain "github.com/timberline-hq/timberline/internal/bidding/domain"
	invitationdomain "github.com/timberline-hq/timberline/internal/invitation/domain"
	"github.com/timberline-hq/timberline/internal/notification/domain"
	"github.com/timberline-hq/timberline/internal/notification/service"
)

var Module = fx.Module("notification.service",
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(func(s *service.Service) invitationdomain.Notifier { return s }),
	fx.Provide(func(s *service.Service) biddingdomain.Notifier { return s }),
)
