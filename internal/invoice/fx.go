package invoice

import (
	"github.com/jvcardoso/proteamcare-billing/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(service.NewService),
)
