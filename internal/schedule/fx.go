package schedule

import (
	"github.com/jvcardoso/proteamcare-billing/internal/schedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("schedule.service",
	fx.Provide(service.NewService),
)
