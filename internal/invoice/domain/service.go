package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateInvoiceRequest struct {
	ContractID               snowflake.ID `json:"contract_id"`
	PeriodStart              time.Time    `json:"billing_period_start"`
	PeriodEnd                time.Time    `json:"billing_period_end"`
	LivesCount               int          `json:"lives_count"`
	BaseAmount               int64        `json:"base_amount"`
	AdditionalServicesAmount int64        `json:"additional_services_amount"`
	Discounts                int64        `json:"discounts"`
	Taxes                    int64        `json:"taxes"`
	DueDate                  time.Time    `json:"due_date"`
}

type UpdateStatusRequest struct {
	Target        InvoiceStatus  `json:"status"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
	PaidDate      *time.Time     `json:"paid_date,omitempty"`
}

type ListInvoiceRequest struct {
	ContractID  *snowflake.ID
	Status      *InvoiceStatus
	OverdueOnly bool
	Limit       int
}

// InvoiceView decorates a stored invoice with read-time derivations.
type InvoiceView struct {
	Invoice
	IsOverdueNow  bool  `json:"is_overdue"`
	DaysOverdueN  int   `json:"days_overdue"`
	LateFeeAmount int64 `json:"late_fee_amount"`
}

type UploadReceiptRequest struct {
	InvoiceID  snowflake.ID `json:"invoice_id"`
	FileRef    string       `json:"file_ref"`
	Notes      string       `json:"notes"`
	UploadedBy string       `json:"uploaded_by"`
}

type VerifyReceiptRequest struct {
	ReceiptID  snowflake.ID       `json:"receipt_id"`
	Outcome    VerificationStatus `json:"verification_status"`
	ReviewedBy string             `json:"reviewed_by"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id snowflake.ID) (InvoiceView, error)
	// GetByPeriod returns the non-cancelled invoice covering the period
	// starting at periodStart, or ErrInvoiceNotFound.
	GetByPeriod(ctx context.Context, contractID snowflake.ID, periodStart time.Time) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) ([]InvoiceView, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, req UpdateStatusRequest) (Invoice, error)
	// MarkOverdueInvoices is the explicit reconciliation pass that persists
	// VENCIDA for invoices past due; overdue-ness is otherwise derived at
	// read time.
	MarkOverdueInvoices(ctx context.Context) (int64, error)

	UploadReceipt(ctx context.Context, req UploadReceiptRequest) (PaymentReceipt, error)
	VerifyReceipt(ctx context.Context, req VerifyReceiptRequest) (PaymentReceipt, error)
	ListReceipts(ctx context.Context, invoiceID snowflake.ID) ([]PaymentReceipt, error)
}

var (
	ErrInvoiceNotFound   = errors.New("invoice_not_found")
	ErrReceiptNotFound   = errors.New("receipt_not_found")
	ErrDuplicatePeriod   = errors.New("duplicate_period")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrInvalidPeriod     = errors.New("invalid_period")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidReceipt    = errors.New("invalid_receipt")
	ErrMissingPaymentDetails = errors.New("missing_payment_details")
	ErrReceiptAlreadyReviewed = errors.New("receipt_already_reviewed")
)
