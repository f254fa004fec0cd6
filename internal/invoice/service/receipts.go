package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
	"github.com/jvcardoso/proteamcare-billing/pkg/db/option"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) UploadReceipt(ctx context.Context, req invoicedomain.UploadReceiptRequest) (invoicedomain.PaymentReceipt, error) {
	if strings.TrimSpace(req.FileRef) == "" {
		return invoicedomain.PaymentReceipt{}, invoicedomain.ErrInvalidReceipt
	}

	inv, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: req.InvoiceID})
	if err != nil {
		return invoicedomain.PaymentReceipt{}, err
	}
	if inv == nil {
		return invoicedomain.PaymentReceipt{}, invoicedomain.ErrInvoiceNotFound
	}

	now := s.clock.Now()
	receipt := invoicedomain.PaymentReceipt{
		ID:                 s.genID.Generate(),
		InvoiceID:          req.InvoiceID,
		FileRef:            strings.TrimSpace(req.FileRef),
		Notes:              strings.TrimSpace(req.Notes),
		VerificationStatus: invoicedomain.VerificationPendente,
		UploadedBy:         strings.TrimSpace(req.UploadedBy),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.receiptrepo.Create(ctx, &receipt); err != nil {
		return invoicedomain.PaymentReceipt{}, err
	}

	s.log.Info("payment receipt uploaded",
		zap.String("receipt_id", receipt.ID.String()),
		zap.String("invoice_id", req.InvoiceID.String()),
	)
	return receipt, nil
}

// VerifyReceipt records the single review decision for a receipt. Approval
// settles the invoice unless it is already in a terminal state.
func (s *Service) VerifyReceipt(ctx context.Context, req invoicedomain.VerifyReceiptRequest) (invoicedomain.PaymentReceipt, error) {
	if req.Outcome != invoicedomain.VerificationAprovado && req.Outcome != invoicedomain.VerificationRejeitado {
		return invoicedomain.PaymentReceipt{}, invoicedomain.ErrInvalidTransition
	}

	var reviewed invoicedomain.PaymentReceipt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var receipt invoicedomain.PaymentReceipt
		if err := tx.WithContext(ctx).Where("id = ?", req.ReceiptID).First(&receipt).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return invoicedomain.ErrReceiptNotFound
			}
			return err
		}
		if receipt.VerificationStatus != invoicedomain.VerificationPendente {
			return invoicedomain.ErrReceiptAlreadyReviewed
		}

		now := s.clock.Now()
		res := tx.WithContext(ctx).Model(&invoicedomain.PaymentReceipt{}).
			Where("id = ? AND verification_status = ?", receipt.ID, invoicedomain.VerificationPendente).
			Updates(map[string]any{
				"verification_status": req.Outcome,
				"reviewed_by":         strings.TrimSpace(req.ReviewedBy),
				"reviewed_at":         now,
				"updated_at":          now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invoicedomain.ErrReceiptAlreadyReviewed
		}

		receipt.VerificationStatus = req.Outcome
		receipt.ReviewedBy = strings.TrimSpace(req.ReviewedBy)
		receipt.ReviewedAt = &now
		receipt.UpdatedAt = now
		reviewed = receipt

		if req.Outcome != invoicedomain.VerificationAprovado {
			return nil
		}

		var inv invoicedomain.Invoice
		if err := tx.WithContext(ctx).Where("id = ?", receipt.InvoiceID).First(&inv).Error; err != nil {
			return err
		}
		if inv.Status.Terminal() {
			// Already settled or cancelled; the approval stands on its own.
			return nil
		}

		method := invoicedomain.PaymentMethodReceipt
		return tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
			Where("id = ? AND status = ?", inv.ID, inv.Status).
			Updates(map[string]any{
				"status":         invoicedomain.StatusPaga,
				"payment_method": method,
				"paid_date":      now,
				"updated_at":     now,
			}).Error
	})
	if err != nil {
		return invoicedomain.PaymentReceipt{}, err
	}

	s.log.Info("payment receipt reviewed",
		zap.String("receipt_id", reviewed.ID.String()),
		zap.String("outcome", string(reviewed.VerificationStatus)),
	)
	return reviewed, nil
}

func (s *Service) ListReceipts(ctx context.Context, invoiceID snowflake.ID) ([]invoicedomain.PaymentReceipt, error) {
	rows, err := s.receiptrepo.Find(ctx,
		&invoicedomain.PaymentReceipt{InvoiceID: invoiceID},
		option.WithOrder("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	receipts := make([]invoicedomain.PaymentReceipt, 0, len(rows))
	for _, row := range rows {
		receipts = append(receipts, *row)
	}
	return receipts, nil
}
