// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents stored invoice lifecycle states.
type InvoiceStatus string

const (
	StatusPendente  InvoiceStatus = "PENDENTE"
	StatusEnviada   InvoiceStatus = "ENVIADA"
	StatusPaga      InvoiceStatus = "PAGA"
	StatusVencida   InvoiceStatus = "VENCIDA"
	StatusCancelada InvoiceStatus = "CANCELADA"
)

// Valid reports whether the status is a member of the closed set.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusPendente, StatusEnviada, StatusPaga, StatusVencida, StatusCancelada:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are permitted.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaga || s == StatusCancelada
}

// PaymentMethod enumerates how an invoice was settled.
type PaymentMethod string

const (
	PaymentMethodRecurrent PaymentMethod = "recurrent"
	PaymentMethodCheckout  PaymentMethod = "checkout"
	PaymentMethodReceipt   PaymentMethod = "receipt"
	PaymentMethodManual    PaymentMethod = "manual"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodRecurrent, PaymentMethodCheckout, PaymentMethodReceipt, PaymentMethodManual:
		return true
	default:
		return false
	}
}

// Invoice represents a billed period for a contract. Invoices are never
// deleted, only cancelled; period uniqueness excludes cancelled rows so a
// cancelled period can be regenerated. Amounts are int64 centavos.
type Invoice struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	ContractID    snowflake.ID      `json:"contract_id" gorm:"not null;index;uniqueIndex:ux_invoice_period,priority:1,where:status <> 'CANCELADA'"`
	InvoiceNumber string            `json:"invoice_number" gorm:"type:text;not null;uniqueIndex"`
	PeriodStart   time.Time         `json:"billing_period_start" gorm:"not null;uniqueIndex:ux_invoice_period,priority:2"`
	PeriodEnd     time.Time         `json:"billing_period_end" gorm:"not null;uniqueIndex:ux_invoice_period,priority:3"`
	LivesCount    int               `json:"lives_count" gorm:"not null;default:1"`
	BaseAmount    int64             `json:"base_amount" gorm:"not null"`
	AdditionalServicesAmount int64  `json:"additional_services_amount" gorm:"not null;default:0"`
	Discounts     int64             `json:"discounts" gorm:"not null;default:0"`
	Taxes         int64             `json:"taxes" gorm:"not null;default:0"`
	TotalAmount   int64             `json:"total_amount" gorm:"not null"`
	Status        InvoiceStatus     `json:"status" gorm:"type:text;not null;default:'PENDENTE'"`
	DueDate       time.Time         `json:"due_date" gorm:"not null;index"`
	IssuedDate    time.Time         `json:"issued_date" gorm:"not null"`
	PaidDate      *time.Time        `json:"paid_date"`
	PaymentMethod *PaymentMethod    `json:"payment_method" gorm:"type:text"`
	Metadata      datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceNumberCounter allocates invoice number sequences per contract and
// period month. The counter row is incremented inside the creating
// transaction, so concurrent creates never hand out the same sequence.
type InvoiceNumberCounter struct {
	ContractID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	PeriodMonth string       `gorm:"primaryKey;type:text"`
	LastSeq     int64        `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceNumberCounter) TableName() string { return "invoice_number_counters" }

// DateOf truncates an instant to midnight UTC of its calendar day. Due dates
// are day-granular: an invoice due today is not yet overdue.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsOverdue reports whether the invoice's due day has fully passed without it
// having been settled or cancelled. Stored status is not mutated by the
// passage of time; this is a read-time overlay.
func (i Invoice) IsOverdue(now time.Time) bool {
	switch i.Status {
	case StatusPendente, StatusEnviada, StatusVencida:
		return DateOf(now).After(DateOf(i.DueDate))
	default:
		return false
	}
}

// DaysOverdue returns whole days elapsed since the due date, or 0 when not
// overdue.
func (i Invoice) DaysOverdue(now time.Time) int {
	if !i.IsOverdue(now) {
		return 0
	}
	return int(DateOf(now).Sub(DateOf(i.DueDate)).Hours() / 24)
}

// VerificationStatus represents receipt review outcomes.
type VerificationStatus string

const (
	VerificationPendente VerificationStatus = "PENDENTE"
	VerificationAprovado VerificationStatus = "APROVADO"
	VerificationRejeitado VerificationStatus = "REJEITADO"
)

func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPendente, VerificationAprovado, VerificationRejeitado:
		return true
	default:
		return false
	}
}

// PaymentReceipt is an uploaded proof of payment. It is reviewed exactly
// once; approval may settle its invoice.
type PaymentReceipt struct {
	ID                 snowflake.ID       `json:"id" gorm:"primaryKey"`
	InvoiceID          snowflake.ID       `json:"invoice_id" gorm:"not null;index"`
	FileRef            string             `json:"file_ref" gorm:"type:text;not null"`
	Notes              string             `json:"notes" gorm:"type:text"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"type:text;not null;default:'PENDENTE'"`
	UploadedBy         string             `json:"uploaded_by" gorm:"type:text;not null"`
	ReviewedBy         string             `json:"reviewed_by" gorm:"type:text"`
	ReviewedAt         *time.Time         `json:"reviewed_at"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentReceipt) TableName() string { return "payment_receipts" }
