package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ListScheduleRequest struct {
	ContractID *snowflake.ID
	ActiveOnly bool
}

type ListScheduleResponse struct {
	Schedules []BillingSchedule `json:"schedules"`
}

type UpsertScheduleRequest struct {
	ContractID      snowflake.ID `json:"contract_id"`
	BillingCycle    BillingCycle `json:"billing_cycle"`
	BillingDay      int          `json:"billing_day"`
	NextBillingDate *time.Time   `json:"next_billing_date,omitempty"`
	AmountPerCycle  int64        `json:"amount_per_cycle"`
}

type Service interface {
	List(ctx context.Context, req ListScheduleRequest) (ListScheduleResponse, error)
	Upsert(ctx context.Context, req UpsertScheduleRequest) (BillingSchedule, error)
	Deactivate(ctx context.Context, contractID snowflake.ID) error
}

var (
	ErrInvalidBillingCycle = errors.New("invalid_billing_cycle")
	ErrInvalidBillingDay   = errors.New("invalid_billing_day")
	ErrScheduleNotFound    = errors.New("schedule_not_found")
)
