package service

import (
	"context"
	"math"

	analyticsdomain "github.com/jvcardoso/proteamcare-billing/internal/analytics/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/clock"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
	scheduledomain "github.com/jvcardoso/proteamcare-billing/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	ContractSvc contractdomain.Service
}

// Service derives billing metrics from stored invoices. Read only; safe to
// run concurrently with any writer.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	contractSvc contractdomain.Service
}

func NewService(p ServiceParam) analyticsdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("analytics.service"),
		clock:       p.Clock,
		contractSvc: p.ContractSvc,
	}
}

// CollectionRate returns round(paid / expected * 100, 2), or 0 when nothing
// was expected.
func CollectionRate(paid, expected int64) float64 {
	if expected <= 0 {
		return 0
	}
	return math.Round(float64(paid)/float64(expected)*10000) / 100
}

type sumRow struct {
	Count int64 `gorm:"column:count"`
	Total int64 `gorm:"column:total"`
}

func (s *Service) GetMetrics(ctx context.Context) (analyticsdomain.Metrics, error) {
	today := invoicedomain.DateOf(s.clock.Now())
	var metrics analyticsdomain.Metrics

	var expected sumRow
	if err := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Where("status <> ?", invoicedomain.StatusCancelada).
		Scan(&expected).Error; err != nil {
		return metrics, err
	}
	metrics.TotalExpectedAmount = expected.Total

	var paid sumRow
	if err := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Where("status = ?", invoicedomain.StatusPaga).
		Scan(&paid).Error; err != nil {
		return metrics, err
	}
	metrics.PaidCount = paid.Count
	metrics.PaidAmount = paid.Total

	var overdue sumRow
	if err := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Where("status = ? OR (status IN ? AND due_date < ?)",
			invoicedomain.StatusVencida,
			[]invoicedomain.InvoiceStatus{invoicedomain.StatusPendente, invoicedomain.StatusEnviada},
			today,
		).
		Scan(&overdue).Error; err != nil {
		return metrics, err
	}
	metrics.OverdueCount = overdue.Count
	metrics.OverdueAmount = overdue.Total

	var pending sumRow
	if err := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
		Where("status IN ? AND due_date >= ?",
			[]invoicedomain.InvoiceStatus{invoicedomain.StatusPendente, invoicedomain.StatusEnviada},
			today,
		).
		Scan(&pending).Error; err != nil {
		return metrics, err
	}
	metrics.PendingCount = pending.Count
	metrics.PendingAmount = pending.Total

	metrics.CollectionRate = CollectionRate(metrics.PaidAmount, metrics.TotalExpectedAmount)
	return metrics, nil
}

func (s *Service) GetContractSummaries(ctx context.Context) ([]analyticsdomain.ContractSummary, error) {
	today := invoicedomain.DateOf(s.clock.Now())

	var summaries []analyticsdomain.ContractSummary
	err := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Select(`invoices.contract_id AS contract_id,
			contracts.contract_number AS contract_number,
			contracts.client_name AS client_name,
			COUNT(*) AS invoice_count,
			COALESCE(SUM(invoices.total_amount), 0) AS expected_amount,
			COALESCE(SUM(CASE WHEN invoices.status = ? THEN invoices.total_amount ELSE 0 END), 0) AS paid_amount,
			COALESCE(SUM(CASE WHEN invoices.status = ? OR (invoices.status IN (?, ?) AND invoices.due_date < ?) THEN 1 ELSE 0 END), 0) AS overdue_count,
			COALESCE(SUM(CASE WHEN invoices.status = ? OR (invoices.status IN (?, ?) AND invoices.due_date < ?) THEN invoices.total_amount ELSE 0 END), 0) AS overdue_amount`,
			invoicedomain.StatusPaga,
			invoicedomain.StatusVencida, invoicedomain.StatusPendente, invoicedomain.StatusEnviada, today,
			invoicedomain.StatusVencida, invoicedomain.StatusPendente, invoicedomain.StatusEnviada, today,
		).
		Joins("JOIN contracts ON contracts.id = invoices.contract_id").
		Where("invoices.status <> ?", invoicedomain.StatusCancelada).
		Group("invoices.contract_id, contracts.contract_number, contracts.client_name").
		Order("contracts.contract_number ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}

	for i := range summaries {
		summaries[i].CollectionRate = CollectionRate(summaries[i].PaidAmount, summaries[i].ExpectedAmount)
	}
	return summaries, nil
}

func (s *Service) GetUpcoming(ctx context.Context, daysAhead int) ([]analyticsdomain.UpcomingBilling, error) {
	now := s.clock.Now()
	contracts, err := s.contractSvc.GetUpcoming(ctx, now, daysAhead)
	if err != nil {
		return nil, err
	}

	upcoming := make([]analyticsdomain.UpcomingBilling, 0, len(contracts))
	for _, contract := range contracts {
		start, end := scheduledomain.PeriodFor(contract.BillingCycle, contract.NextBillingDate)
		upcoming = append(upcoming, analyticsdomain.UpcomingBilling{
			ContractID:      contract.ID,
			ContractNumber:  contract.ContractNumber,
			ClientName:      contract.ClientName,
			NextBillingDate: contract.NextBillingDate,
			PeriodStart:     start,
			PeriodEnd:       end,
			Amount:          contract.MonthlyValue * int64(contract.BillingCycle.Months()),
		})
	}
	return upcoming, nil
}

func (s *Service) GetDashboard(ctx context.Context) (analyticsdomain.Dashboard, error) {
	metrics, err := s.GetMetrics(ctx)
	if err != nil {
		return analyticsdomain.Dashboard{}, err
	}
	contracts, err := s.GetContractSummaries(ctx)
	if err != nil {
		return analyticsdomain.Dashboard{}, err
	}
	upcoming, err := s.GetUpcoming(ctx, 30)
	if err != nil {
		return analyticsdomain.Dashboard{}, err
	}
	return analyticsdomain.Dashboard{
		Metrics:   metrics,
		Contracts: contracts,
		Upcoming:  upcoming,
	}, nil
}
