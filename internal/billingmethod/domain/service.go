package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrMethodNotFound indicates no billing method is configured for the contract.
	ErrMethodNotFound = errors.New("billing method not configured for contract")
	// ErrNotRecurrent indicates a recurrent charge was requested for a
	// contract whose method is manual or missing a subscription.
	ErrNotRecurrent = errors.New("contract billing method is not recurrent")
	// ErrConcurrentUpdate indicates the versioned update lost a race and the
	// caller should reload before retrying.
	ErrConcurrentUpdate = errors.New("billing method modified concurrently")
)

// SetupRecurrentRequest carries what the gateway needs to create a
// subscription for the contract.
type SetupRecurrentRequest struct {
	ContractID           snowflake.ID `json:"contract_id"`
	CustomerName         string       `json:"customer_name"`
	PaymentInstrumentRef string       `json:"payment_instrument_ref"`
	AutoFallbackEnabled  bool         `json:"auto_fallback_enabled"`
}

// ChargeOutcome reports a single recurrent charge attempt.
type ChargeOutcome struct {
	TransactionID string `json:"transaction_id,omitempty"`
	AttemptNumber int    `json:"attempt_number"`
	FellBack      bool   `json:"fell_back"`
}

type Service interface {
	GetByContract(ctx context.Context, contractID snowflake.ID) (MethodStatus, error)
	// ChargeRecurrent charges the invoice through the stored subscription.
	// On success the invoice is settled as PAGA and the attempt counter
	// resets. On failure the counter increments and, past the configured
	// threshold with auto fallback enabled, the method flips to manual.
	ChargeRecurrent(ctx context.Context, contractID, invoiceID snowflake.ID) (ChargeOutcome, error)
	SetupRecurrent(ctx context.Context, req SetupRecurrentRequest) (MethodStatus, error)
	SetupManual(ctx context.Context, contractID snowflake.ID) (MethodStatus, error)
	CancelSubscription(ctx context.Context, contractID snowflake.ID) (MethodStatus, error)
}
