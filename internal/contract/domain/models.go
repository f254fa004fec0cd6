// Package domain holds the contract read model. Contracts are owned by the
// contract-management system; this engine reads them and advances
// next_billing_date.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	scheduledomain "github.com/jvcardoso/proteamcare-billing/internal/schedule/domain"
)

type Contract struct {
	ID                   snowflake.ID               `json:"id" gorm:"primaryKey"`
	ContractNumber       string                     `json:"contract_number" gorm:"type:text;not null;uniqueIndex"`
	ClientName           string                     `json:"client_name" gorm:"type:text;not null"`
	MonthlyValue         int64                      `json:"monthly_value" gorm:"not null"`
	LivesCount           int                        `json:"lives_count" gorm:"not null;default:1"`
	BillingCycle         scheduledomain.BillingCycle `json:"billing_cycle" gorm:"type:text;not null"`
	BillingDay           int                        `json:"billing_day" gorm:"not null"`
	GracePeriodDays      int                        `json:"grace_period_days" gorm:"not null;default:0"`
	// No gorm default tag: gorm omits zero values for defaulted columns on
	// Create, which would flip an explicit false back to true.
	AutoGenerateInvoices bool                       `json:"auto_generate_invoices" gorm:"not null"`
	LateFeeBps           int64                      `json:"late_fee_bps" gorm:"not null;default:0"`
	NextBillingDate      time.Time                  `json:"next_billing_date" gorm:"not null;index"`
	IsActive             bool                       `json:"is_active" gorm:"not null"`
	CreatedAt            time.Time                  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time                  `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Contract) TableName() string { return "contracts" }
