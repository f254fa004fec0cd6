// Package domain contains billing schedule models and the period calculator.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingCycle enumerates supported recurrence intervals.
type BillingCycle string

const (
	CycleMonthly    BillingCycle = "MONTHLY"
	CycleQuarterly  BillingCycle = "QUARTERLY"
	CycleSemiAnnual BillingCycle = "SEMI_ANNUAL"
	CycleAnnual     BillingCycle = "ANNUAL"
)

// Valid reports whether the cycle is one of the closed set. Unknown values
// coming off the wire are rejected at the boundary.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleMonthly, CycleQuarterly, CycleSemiAnnual, CycleAnnual:
		return true
	default:
		return false
	}
}

// Months returns the cycle length in months.
func (c BillingCycle) Months() int {
	switch c {
	case CycleQuarterly:
		return 3
	case CycleSemiAnnual:
		return 6
	case CycleAnnual:
		return 12
	default:
		return 1
	}
}

// BillingSchedule is the active recurrence row for a contract.
type BillingSchedule struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	ContractID      snowflake.ID `json:"contract_id" gorm:"not null;index;uniqueIndex:ux_billing_schedule_active,where:is_active"`
	BillingCycle    BillingCycle `json:"billing_cycle" gorm:"type:text;not null"`
	BillingDay      int          `json:"billing_day" gorm:"not null"`
	NextBillingDate time.Time    `json:"next_billing_date" gorm:"not null;index"`
	AmountPerCycle  int64        `json:"amount_per_cycle" gorm:"not null"`
	IsActive        bool         `json:"is_active" gorm:"not null"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingSchedule) TableName() string { return "billing_schedules" }
