package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
)

// UploadReceipt accepts a multipart form with the payment proof file plus
// invoice_id, uploaded_by and optional notes fields.
func (s *Server) UploadReceipt(c *gin.Context) {
	invoiceID, err := parseOptionalSnowflakeID(c.PostForm("invoice_id"))
	if err != nil || invoiceID == nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "invalid id"))
		return
	}

	uploadedBy := strings.TrimSpace(c.PostForm("uploaded_by"))
	if uploadedBy == "" {
		AbortWithError(c, newValidationError("uploaded_by", "required", "uploaded_by is required"))
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "file is required"))
		return
	}

	fileRef := filepath.Join(s.cfg.Billing.ReceiptUploadDir, fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, fileRef); err != nil {
		AbortWithError(c, fmt.Errorf("save receipt file: %w", err))
		return
	}

	receipt, err := s.invoiceSvc.UploadReceipt(c.Request.Context(), invoicedomain.UploadReceiptRequest{
		InvoiceID:  *invoiceID,
		FileRef:    fileRef,
		Notes:      strings.TrimSpace(c.PostForm("notes")),
		UploadedBy: uploadedBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": receipt})
}

func (s *Server) VerifyReceipt(c *gin.Context) {
	receiptID, err := parsePathSnowflakeID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var body struct {
		Outcome    string `json:"verification_status"`
		ReviewedBy string `json:"reviewed_by"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	outcome := invoicedomain.VerificationStatus(strings.ToUpper(strings.TrimSpace(body.Outcome)))
	if outcome != invoicedomain.VerificationAprovado && outcome != invoicedomain.VerificationRejeitado {
		AbortWithError(c, newValidationError("verification_status", "invalid_status", "invalid status"))
		return
	}
	if strings.TrimSpace(body.ReviewedBy) == "" {
		AbortWithError(c, newValidationError("reviewed_by", "required", "reviewed_by is required"))
		return
	}

	receipt, err := s.invoiceSvc.VerifyReceipt(c.Request.Context(), invoicedomain.VerifyReceiptRequest{
		ReceiptID:  receiptID,
		Outcome:    outcome,
		ReviewedBy: strings.TrimSpace(body.ReviewedBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) ListInvoiceReceipts(c *gin.Context) {
	invoiceID, err := parsePathSnowflakeID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	receipts, err := s.invoiceSvc.ListReceipts(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipts})
}
