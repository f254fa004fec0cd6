package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Metrics is the read-only billing snapshot. All sums are int64 centavos;
// collection_rate is a percentage rounded to two decimals.
type Metrics struct {
	TotalExpectedAmount int64   `json:"total_expected_amount"`
	PaidAmount          int64   `json:"paid_amount"`
	PaidCount           int64   `json:"paid_count"`
	CollectionRate      float64 `json:"collection_rate"`
	PendingCount        int64   `json:"pending_count"`
	PendingAmount       int64   `json:"pending_amount"`
	OverdueCount        int64   `json:"overdue_count"`
	OverdueAmount       int64   `json:"overdue_amount"`
}

// ContractSummary aggregates the same figures per contract for dashboards.
type ContractSummary struct {
	ContractID     snowflake.ID `json:"contract_id" gorm:"column:contract_id"`
	ContractNumber string       `json:"contract_number" gorm:"column:contract_number"`
	ClientName     string       `json:"client_name" gorm:"column:client_name"`
	InvoiceCount   int64        `json:"invoice_count" gorm:"column:invoice_count"`
	ExpectedAmount int64        `json:"expected_amount" gorm:"column:expected_amount"`
	PaidAmount     int64        `json:"paid_amount" gorm:"column:paid_amount"`
	OverdueCount   int64        `json:"overdue_count" gorm:"column:overdue_count"`
	OverdueAmount  int64        `json:"overdue_amount" gorm:"column:overdue_amount"`
	CollectionRate float64      `json:"collection_rate" gorm:"-"`
}

// UpcomingBilling projects a contract's next generated invoice.
type UpcomingBilling struct {
	ContractID      snowflake.ID `json:"contract_id"`
	ContractNumber  string       `json:"contract_number"`
	ClientName      string       `json:"client_name"`
	NextBillingDate time.Time    `json:"next_billing_date"`
	PeriodStart     time.Time    `json:"period_start"`
	PeriodEnd       time.Time    `json:"period_end"`
	Amount          int64        `json:"amount"`
}

// Dashboard is the aggregate admin view.
type Dashboard struct {
	Metrics   Metrics           `json:"metrics"`
	Contracts []ContractSummary `json:"contracts"`
	Upcoming  []UpcomingBilling `json:"upcoming"`
}

type Service interface {
	GetMetrics(ctx context.Context) (Metrics, error)
	GetContractSummaries(ctx context.Context) ([]ContractSummary, error)
	GetUpcoming(ctx context.Context, daysAhead int) ([]UpcomingBilling, error)
	GetDashboard(ctx context.Context) (Dashboard, error)
}
