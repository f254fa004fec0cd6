package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the boundary this engine consumes from contract management.
type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Contract, error)
	// GetDueContracts returns active contracts whose next_billing_date is on
	// or before asOf. includeManual also selects contracts that opted out of
	// auto_generate_invoices, for forced runs.
	GetDueContracts(ctx context.Context, asOf time.Time, includeManual bool) ([]Contract, error)
	// GetUpcoming returns contracts due within the next daysAhead days.
	GetUpcoming(ctx context.Context, asOf time.Time, daysAhead int) ([]Contract, error)
	AdvanceNextBillingDate(ctx context.Context, contractID snowflake.ID, next time.Time) error
}

var ErrContractNotFound = errors.New("contract_not_found")
