// Package pagbank implements the gateway boundary against the PagBank
// (PagSeguro) HTTP API.
package pagbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jvcardoso/proteamcare-billing/internal/config"
	gatewaydomain "github.com/jvcardoso/proteamcare-billing/internal/gateway/domain"
	obsmetrics "github.com/jvcardoso/proteamcare-billing/internal/observability/metrics"
	"go.uber.org/zap"
)

type Client struct {
	baseURL  string
	apiToken string
	client   *http.Client
	log      *zap.Logger
}

func NewClient(cfg config.PagBankConfig, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiToken: strings.TrimSpace(cfg.APIToken),
		client:   &http.Client{Timeout: timeout},
		log:      log.Named("gateway.pagbank"),
	}, nil
}

type chargeRequest struct {
	SubscriptionID string `json:"subscription_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (c *Client) Charge(ctx context.Context, ref gatewaydomain.SubscriptionRef, amount int64, idempotencyKey string) (gatewaydomain.ChargeResult, error) {
	if strings.TrimSpace(ref.SubscriptionRef) == "" {
		return gatewaydomain.ChargeResult{}, &gatewaydomain.GatewayError{
			Code: "missing_subscription", Message: "no subscription enrolled", Retryable: false,
		}
	}

	var out chargeResponse
	err := c.doJSON(ctx, "charge", http.MethodPost, "/subscriptions/"+ref.SubscriptionRef+"/charge",
		chargeRequest{SubscriptionID: ref.SubscriptionRef, Amount: amount, Currency: "BRL"},
		idempotencyKey, &out)
	if err != nil {
		return gatewaydomain.ChargeResult{}, err
	}

	status := gatewaydomain.TransactionStatus(strings.ToUpper(strings.TrimSpace(out.Status)))
	if status == gatewaydomain.TransactionDeclined {
		return gatewaydomain.ChargeResult{}, &gatewaydomain.GatewayError{
			Code: "declined", Message: "charge declined", Retryable: false,
		}
	}
	if out.TransactionID == "" {
		return gatewaydomain.ChargeResult{}, &gatewaydomain.GatewayError{
			Code: "invalid_response", Message: "gateway response missing transaction id", Retryable: true,
		}
	}
	return gatewaydomain.ChargeResult{TransactionID: out.TransactionID, Status: status}, nil
}

type checkoutRequest struct {
	ReferenceID string `json:"reference_id"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type checkoutResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
	QRCode      string `json:"qr_code"`
	ExpiresAt   string `json:"expires_at"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req gatewaydomain.CheckoutRequest) (gatewaydomain.CheckoutSession, error) {
	var out checkoutResponse
	err := c.doJSON(ctx, "create_checkout", http.MethodPost, "/checkouts",
		checkoutRequest{
			ReferenceID: req.InvoiceNumber,
			Description: "Fatura " + req.InvoiceNumber + " - " + req.ClientName,
			Amount:      req.Amount,
			Currency:    "BRL",
		},
		"checkout:"+req.InvoiceID.String(), &out)
	if err != nil {
		return gatewaydomain.CheckoutSession{}, err
	}
	if out.ID == "" || out.CheckoutURL == "" {
		return gatewaydomain.CheckoutSession{}, &gatewaydomain.GatewayError{
			Code: "invalid_response", Message: "gateway response missing checkout url", Retryable: true,
		}
	}

	expires := time.Now().UTC().Add(30 * time.Minute)
	if parsed, err := time.Parse(time.RFC3339, out.ExpiresAt); err == nil {
		expires = parsed.UTC()
	}
	return gatewaydomain.CheckoutSession{
		SessionID:   out.ID,
		InvoiceID:   req.InvoiceID,
		CheckoutURL: out.CheckoutURL,
		QRCode:      out.QRCode,
		ExpiresAt:   expires,
		Status:      gatewaydomain.SessionCreated,
	}, nil
}

type subscriptionRequest struct {
	CustomerName         string `json:"customer_name"`
	PaymentInstrumentRef string `json:"payment_instrument_ref"`
}

type subscriptionResponse struct {
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
}

func (c *Client) CreateSubscription(ctx context.Context, customerName, paymentInstrumentRef string) (gatewaydomain.SubscriptionRef, error) {
	if strings.TrimSpace(paymentInstrumentRef) == "" {
		return gatewaydomain.SubscriptionRef{}, &gatewaydomain.GatewayError{
			Code: "missing_instrument", Message: "payment instrument is required", Retryable: false,
		}
	}

	var out subscriptionResponse
	err := c.doJSON(ctx, "create_subscription", http.MethodPost, "/subscriptions",
		subscriptionRequest{CustomerName: customerName, PaymentInstrumentRef: paymentInstrumentRef},
		"", &out)
	if err != nil {
		return gatewaydomain.SubscriptionRef{}, err
	}
	if out.SubscriptionID == "" {
		return gatewaydomain.SubscriptionRef{}, &gatewaydomain.GatewayError{
			Code: "invalid_response", Message: "gateway response missing subscription id", Retryable: true,
		}
	}
	return gatewaydomain.SubscriptionRef{
		CustomerRef:     out.CustomerID,
		SubscriptionRef: out.SubscriptionID,
	}, nil
}

func (c *Client) CancelSubscription(ctx context.Context, ref gatewaydomain.SubscriptionRef) error {
	if strings.TrimSpace(ref.SubscriptionRef) == "" {
		return nil
	}
	return c.doJSON(ctx, "cancel_subscription", http.MethodDelete, "/subscriptions/"+ref.SubscriptionRef, nil, "", nil)
}

type transactionResponse struct {
	Status string `json:"status"`
}

func (c *Client) GetTransactionStatus(ctx context.Context, transactionID string) (gatewaydomain.TransactionStatus, error) {
	var out transactionResponse
	if err := c.doJSON(ctx, "transaction_status", http.MethodGet, "/transactions/"+transactionID, nil, "", &out); err != nil {
		return "", err
	}
	return gatewaydomain.TransactionStatus(strings.ToUpper(strings.TrimSpace(out.Status))), nil
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, body any, idempotencyKey string, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, method, path, body, idempotencyKey, out)
	obsmetrics.Billing().ObserveGatewayCall(operation, time.Since(start), err)
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	if c.apiToken == "" {
		return gatewaydomain.ErrInvalidConfig
	}

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Timeouts and transport failures are retryable; the caller retries
		// on the next billing cycle, never in a tight loop.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &gatewaydomain.GatewayError{Code: "timeout", Message: err.Error(), Retryable: true}
		}
		return &gatewaydomain.GatewayError{Code: "transport", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var gwErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&gwErr)
		code := strings.TrimSpace(gwErr.Error.Code)
		if code == "" {
			code = http.StatusText(resp.StatusCode)
		}
		message := strings.TrimSpace(gwErr.Error.Message)
		if message == "" {
			message = "pagbank request failed"
		}
		c.log.Warn("gateway request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", code),
		)
		return &gatewaydomain.GatewayError{
			Code:      code,
			Message:   message,
			Retryable: resp.StatusCode >= http.StatusInternalServerError,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &gatewaydomain.GatewayError{Code: "invalid_response", Message: err.Error(), Retryable: true}
	}
	return nil
}
