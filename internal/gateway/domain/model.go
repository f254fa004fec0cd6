// Package domain defines the contract this engine expects from the external
// payment gateway. The gateway itself is a black box; only this boundary is
// specified.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// GatewayError classifies a failed gateway call. Retryable errors (timeouts,
// 5xx) count toward the recurrent-billing fallback threshold; permanent ones
// (declined) do too, but are never retried within the same run.
type GatewayError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s (%s)", e.Message, e.Code)
}

// IsRetryable reports whether err is a retryable gateway failure.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return false
}

// SubscriptionRef identifies a recurring-charge enrollment at the gateway.
type SubscriptionRef struct {
	CustomerRef     string `json:"customer_ref"`
	SubscriptionRef string `json:"subscription_ref"`
}

// TransactionStatus is the gateway-side state of a charge.
type TransactionStatus string

const (
	TransactionPaid     TransactionStatus = "PAID"
	TransactionDeclined TransactionStatus = "DECLINED"
	TransactionPending  TransactionStatus = "PENDING"
	TransactionRefunded TransactionStatus = "REFUNDED"
)

// ChargeResult is returned by a successful subscription charge.
type ChargeResult struct {
	TransactionID string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
}

// SessionStatus tracks a checkout session over its TTL window.
type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionPaid      SessionStatus = "paid"
	SessionExpired   SessionStatus = "expired"
	SessionCancelled SessionStatus = "cancelled"
)

// CheckoutSession is an ephemeral manual-payment session for one invoice.
type CheckoutSession struct {
	SessionID   string        `json:"session_id"`
	InvoiceID   snowflake.ID  `json:"invoice_id"`
	CheckoutURL string        `json:"checkout_url"`
	QRCode      string        `json:"qr_code,omitempty"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Status      SessionStatus `json:"status"`
}

// CheckoutRequest carries the invoice fields the gateway needs to build a
// payment page.
type CheckoutRequest struct {
	InvoiceID     snowflake.ID
	InvoiceNumber string
	Amount        int64
	ClientName    string
}

// Client is the adapter boundary to the payment gateway. All calls must be
// idempotent from the caller's perspective: the same idempotency key on a
// retry cannot double-charge.
type Client interface {
	Charge(ctx context.Context, ref SubscriptionRef, amount int64, idempotencyKey string) (ChargeResult, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	CreateSubscription(ctx context.Context, customerName string, paymentInstrumentRef string) (SubscriptionRef, error)
	CancelSubscription(ctx context.Context, ref SubscriptionRef) error
	GetTransactionStatus(ctx context.Context, transactionID string) (TransactionStatus, error)
}

var (
	ErrInvalidConfig     = errors.New("gateway_invalid_config")
	ErrSessionNotFound   = errors.New("checkout_session_not_found")
	ErrSessionInProgress = errors.New("checkout_session_in_progress")
)
