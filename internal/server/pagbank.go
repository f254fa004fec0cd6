package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	billingmethoddomain "github.com/jvcardoso/proteamcare-billing/internal/billingmethod/domain"
	gatewaydomain "github.com/jvcardoso/proteamcare-billing/internal/gateway/domain"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
)

func (s *Server) SetupRecurrent(c *gin.Context) {
	var req billingmethoddomain.SetupRecurrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if req.ContractID == 0 {
		AbortWithError(c, newValidationError("contract_id", "required", "contract_id is required"))
		return
	}
	if req.PaymentInstrumentRef == "" {
		AbortWithError(c, newValidationError("payment_instrument_ref", "required", "payment_instrument_ref is required"))
		return
	}

	method, err := s.methodSvc.SetupRecurrent(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": method})
}

func (s *Server) SetupManual(c *gin.Context) {
	contractID, err := parsePathSnowflakeID(c, "contract_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	method, err := s.methodSvc.SetupManual(c.Request.Context(), contractID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": method})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	var body struct {
		ContractID snowflake.ID `json:"contract_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if body.ContractID == 0 {
		AbortWithError(c, newValidationError("contract_id", "required", "contract_id is required"))
		return
	}

	method, err := s.methodSvc.CancelSubscription(c.Request.Context(), body.ContractID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": method})
}

// CreateCheckout returns the active checkout session for the invoice,
// creating one at the gateway only when none exists. Concurrent requests for
// the same invoice never mint two divergent payment links.
func (s *Server) CreateCheckout(c *gin.Context) {
	var body struct {
		InvoiceID string `json:"invoice_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	invoiceID, err := parseOptionalSnowflakeID(body.InvoiceID)
	if err != nil || invoiceID == nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_id", "invalid id"))
		return
	}

	inv, err := s.invoiceSvc.GetByID(c.Request.Context(), *invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if inv.Status.Terminal() {
		AbortWithError(c, invoicedomain.ErrInvalidTransition)
		return
	}

	contract, err := s.contractSvc.GetByID(c.Request.Context(), inv.ContractID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	checkoutReq := gatewaydomain.CheckoutRequest{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.TotalAmount + inv.LateFeeAmount,
		ClientName:    contract.ClientName,
	}
	session, err := s.sessions.Ensure(c.Request.Context(), inv.ID, func(ctx context.Context) (gatewaydomain.CheckoutSession, error) {
		return s.gateway.CreateCheckoutSession(ctx, checkoutReq)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}
