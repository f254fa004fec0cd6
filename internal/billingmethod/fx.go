package billingmethod

import (
	"github.com/jvcardoso/proteamcare-billing/internal/billingmethod/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingmethod.service",
	fx.Provide(service.NewService),
)
