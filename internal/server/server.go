package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jvcardoso/proteamcare-billing/internal/analytics"
	analyticsdomain "github.com/jvcardoso/proteamcare-billing/internal/analytics/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/autobilling"
	"github.com/jvcardoso/proteamcare-billing/internal/billingmethod"
	billingmethoddomain "github.com/jvcardoso/proteamcare-billing/internal/billingmethod/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/config"
	"github.com/jvcardoso/proteamcare-billing/internal/contract"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/gateway"
	gatewaydomain "github.com/jvcardoso/proteamcare-billing/internal/gateway/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/invoice"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/schedule"
	scheduledomain "github.com/jvcardoso/proteamcare-billing/internal/schedule/domain"
)

var Module = fx.Module("http.server",
	contract.Module,
	schedule.Module,
	invoice.Module,
	billingmethod.Module,
	gateway.Module,
	analytics.Module,
	autobilling.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(MetricsMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	contractSvc  contractdomain.Service
	scheduleSvc  scheduledomain.Service
	invoiceSvc   invoicedomain.Service
	methodSvc    billingmethoddomain.Service
	analyticsSvc analyticsdomain.Service
	gateway      gatewaydomain.Client
	sessions     *gateway.SessionStore
	runner       *autobilling.Runner
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	ContractSvc  contractdomain.Service
	ScheduleSvc  scheduledomain.Service
	InvoiceSvc   invoicedomain.Service
	MethodSvc    billingmethoddomain.Service
	AnalyticsSvc analyticsdomain.Service
	Gateway      gatewaydomain.Client
	Sessions     *gateway.SessionStore
	Runner       *autobilling.Runner
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		contractSvc:  p.ContractSvc,
		scheduleSvc:  p.ScheduleSvc,
		invoiceSvc:   p.InvoiceSvc,
		methodSvc:    p.MethodSvc,
		analyticsSvc: p.AnalyticsSvc,
		gateway:      p.Gateway,
		sessions:     p.Sessions,
		runner:       p.Runner,
	}

	svc.registerBillingRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	billing := s.engine.Group("/billing")

	// -------- Schedules --------
	billing.GET("/schedules", s.ListSchedules)
	billing.POST("/schedules", s.UpsertSchedule)
	billing.PUT("/schedules/:contract_id", s.UpsertScheduleByContract)
	billing.DELETE("/schedules/:contract_id", s.DeactivateSchedule)

	// -------- Invoices --------
	billing.GET("/invoices", s.ListInvoices)
	billing.POST("/invoices", s.CreateInvoice)
	billing.GET("/invoices/:id", s.GetInvoiceByID)
	billing.PATCH("/invoices/:id/status", s.UpdateInvoiceStatus)
	billing.GET("/invoices/:id/receipts", s.ListInvoiceReceipts)

	// -------- Payment receipts --------
	billing.POST("/receipts/upload", s.UploadReceipt)
	billing.PATCH("/receipts/:id/verify", s.VerifyReceipt)

	// -------- Auto billing --------
	billing.POST("/auto-billing/run", s.RunAutoBilling)
	billing.GET("/auto-billing/upcoming", s.ListUpcomingBilling)

	// -------- PagBank --------
	billing.POST("/pagbank/setup-recurrent", s.SetupRecurrent)
	billing.POST("/pagbank/setup-manual/:contract_id", s.SetupManual)
	billing.POST("/pagbank/create-checkout", s.CreateCheckout)
	billing.POST("/pagbank/cancel-subscription", s.CancelSubscription)

	// -------- Analytics --------
	billing.GET("/analytics/metrics", s.GetBillingMetrics)
	billing.GET("/analytics/contracts", s.GetContractSummaries)
	billing.GET("/dashboard", s.GetDashboard)
}
