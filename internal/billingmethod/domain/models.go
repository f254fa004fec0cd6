package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Method selects how a contract's due invoices get charged.
type Method string

const (
	MethodRecurrent Method = "recurrent"
	MethodManual    Method = "manual"
)

func (m Method) Valid() bool {
	switch m {
	case MethodRecurrent, MethodManual:
		return true
	}
	return false
}

// MethodStatus is the per-contract billing method aggregate. attempt_count and
// method are only mutated through the controller, always with a version check,
// so a batch charge and a manual retry cannot overwrite each other.
type MethodStatus struct {
	ID                  snowflake.ID `gorm:"column:id;primaryKey" json:"id"`
	ContractID          snowflake.ID `gorm:"column:contract_id;uniqueIndex:ux_billing_method_contract" json:"contract_id"`
	Method              Method       `gorm:"column:method" json:"method"`
	AutoFallbackEnabled bool         `gorm:"column:auto_fallback_enabled" json:"auto_fallback_enabled"`
	AttemptCount        int          `gorm:"column:attempt_count" json:"attempt_count"`
	CustomerRef         string       `gorm:"column:customer_ref" json:"customer_ref,omitempty"`
	SubscriptionRef     string       `gorm:"column:subscription_ref" json:"subscription_ref,omitempty"`
	LastError           string       `gorm:"column:last_error" json:"last_error,omitempty"`
	LastAttemptAt       *time.Time   `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	IsActive            bool         `gorm:"column:is_active" json:"is_active"`
	Version             int64        `gorm:"column:version" json:"-"`
	CreatedAt           time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (MethodStatus) TableName() string { return "billing_method_status" }
