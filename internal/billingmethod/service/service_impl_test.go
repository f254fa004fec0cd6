package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	domain "github.com/jvcardoso/proteamcare-billing/internal/billingmethod/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/clock"
	"github.com/jvcardoso/proteamcare-billing/internal/config"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	contractservice "github.com/jvcardoso/proteamcare-billing/internal/contract/service"
	gatewaydomain "github.com/jvcardoso/proteamcare-billing/internal/gateway/domain"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
	invoiceservice "github.com/jvcardoso/proteamcare-billing/internal/invoice/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Charge(ctx context.Context, ref gatewaydomain.SubscriptionRef, amount int64, idempotencyKey string) (gatewaydomain.ChargeResult, error) {
	args := m.Called(ctx, ref, amount, idempotencyKey)
	return args.Get(0).(gatewaydomain.ChargeResult), args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req gatewaydomain.CheckoutRequest) (gatewaydomain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(gatewaydomain.CheckoutSession), args.Error(1)
}

func (m *mockGateway) CreateSubscription(ctx context.Context, customerName, paymentInstrumentRef string) (gatewaydomain.SubscriptionRef, error) {
	args := m.Called(ctx, customerName, paymentInstrumentRef)
	return args.Get(0).(gatewaydomain.SubscriptionRef), args.Error(1)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, ref gatewaydomain.SubscriptionRef) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *mockGateway) GetTransactionStatus(ctx context.Context, transactionID string) (gatewaydomain.TransactionStatus, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(gatewaydomain.TransactionStatus), args.Error(1)
}

type fixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	clk         *clock.FakeClock
	gateway     *mockGateway
	contractSvc contractdomain.Service
	invoiceSvc  invoicedomain.Service
	svc         domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:billingmethod_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&contractdomain.Contract{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceNumberCounter{},
		&invoicedomain.PaymentReceipt{},
		&domain.MethodStatus{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(21)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 10, 10, 9, 0, 0, 0, time.UTC))
	gw := &mockGateway{}

	contractSvc := contractservice.NewService(contractservice.ServiceParam{
		DB:  db,
		Log: zap.NewNop(),
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		ContractSvc: contractSvc,
	})
	svc := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Config:      config.Config{Billing: config.BillingConfig{MaxChargeAttempts: 3}},
		Gateway:     gw,
		ContractSvc: contractSvc,
		InvoiceSvc:  invoiceSvc,
	})

	return &fixture{
		db:          db,
		node:        node,
		clk:         clk,
		gateway:     gw,
		contractSvc: contractSvc,
		invoiceSvc:  invoiceSvc,
		svc:         svc,
	}
}

func (f *fixture) seedContract(t *testing.T) contractdomain.Contract {
	t.Helper()
	contract := contractdomain.Contract{
		ID:                   f.node.Generate(),
		ContractNumber:       fmt.Sprintf("CT-%s", f.node.Generate()),
		ClientName:           "Residencial Aurora",
		MonthlyValue:         250000,
		LivesCount:           12,
		BillingCycle:         "MONTHLY",
		BillingDay:           10,
		AutoGenerateInvoices: true,
		NextBillingDate:      time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC),
		IsActive:             true,
		CreatedAt:            f.clk.Now(),
		UpdatedAt:            f.clk.Now(),
	}
	if err := f.db.Create(&contract).Error; err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return contract
}

func (f *fixture) seedInvoice(t *testing.T, contractID snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	inv, err := f.invoiceSvc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		ContractID:  contractID,
		PeriodStart: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
		LivesCount:  12,
		BaseAmount:  250000,
		DueDate:     time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func (f *fixture) seedRecurrentMethod(t *testing.T, contractID snowflake.ID, autoFallback bool) domain.MethodStatus {
	t.Helper()
	method := domain.MethodStatus{
		ID:                  f.node.Generate(),
		ContractID:          contractID,
		Method:              domain.MethodRecurrent,
		AutoFallbackEnabled: autoFallback,
		CustomerRef:         "CUST-1",
		SubscriptionRef:     "SUB-1",
		IsActive:            true,
		CreatedAt:           f.clk.Now(),
		UpdatedAt:           f.clk.Now(),
	}
	if err := f.db.Create(&method).Error; err != nil {
		t.Fatalf("seed method: %v", err)
	}
	return method
}

func TestChargeRecurrentSuccessSettlesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)
	inv := f.seedInvoice(t, contract.ID)
	f.seedRecurrentMethod(t, contract.ID, true)

	expectedKey := fmt.Sprintf("charge:%s:1", inv.ID.String())
	f.gateway.On("Charge", mock.Anything, mock.Anything, inv.TotalAmount, expectedKey).
		Return(gatewaydomain.ChargeResult{TransactionID: "TX-100", Status: gatewaydomain.TransactionPaid}, nil).
		Once()

	outcome, err := f.svc.ChargeRecurrent(ctx, contract.ID, inv.ID)
	assert.NoError(t, err)
	assert.Equal(t, "TX-100", outcome.TransactionID)
	assert.Equal(t, 1, outcome.AttemptNumber)
	assert.False(t, outcome.FellBack)

	view, err := f.invoiceSvc.GetByID(ctx, inv.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaga, view.Invoice.Status)
	if assert.NotNil(t, view.Invoice.PaymentMethod) {
		assert.Equal(t, invoicedomain.PaymentMethodRecurrent, *view.Invoice.PaymentMethod)
	}

	method, err := f.svc.GetByContract(ctx, contract.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, method.AttemptCount)
	assert.Equal(t, domain.MethodRecurrent, method.Method)
	f.gateway.AssertExpectations(t)
}

func TestChargeRecurrentFallsBackAfterThreeFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)
	inv := f.seedInvoice(t, contract.ID)
	f.seedRecurrentMethod(t, contract.ID, true)

	gwErr := &gatewaydomain.GatewayError{Code: "TIMEOUT", Message: "gateway timeout", Retryable: true}
	f.gateway.On("Charge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(gatewaydomain.ChargeResult{}, gwErr).
		Times(3)

	for attempt := 1; attempt <= 3; attempt++ {
		outcome, err := f.svc.ChargeRecurrent(ctx, contract.ID, inv.ID)
		assert.Error(t, err)
		assert.Equal(t, attempt, outcome.AttemptNumber)
		if attempt < 3 {
			assert.False(t, outcome.FellBack)
		} else {
			assert.True(t, outcome.FellBack)
		}
	}

	method, err := f.svc.GetByContract(ctx, contract.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.MethodManual, method.Method)
	assert.Equal(t, 3, method.AttemptCount)
	assert.Contains(t, method.LastError, "gateway timeout")

	view, err := f.invoiceSvc.GetByID(ctx, inv.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPendente, view.Invoice.Status)
	f.gateway.AssertExpectations(t)
}

func TestChargeRecurrentKeepsMethodWithoutAutoFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)
	inv := f.seedInvoice(t, contract.ID)
	f.seedRecurrentMethod(t, contract.ID, false)

	gwErr := &gatewaydomain.GatewayError{Code: "DECLINED", Message: "card declined", Retryable: false}
	f.gateway.On("Charge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(gatewaydomain.ChargeResult{}, gwErr).
		Times(3)

	for attempt := 1; attempt <= 3; attempt++ {
		outcome, err := f.svc.ChargeRecurrent(ctx, contract.ID, inv.ID)
		assert.Error(t, err)
		assert.False(t, outcome.FellBack)
	}

	method, err := f.svc.GetByContract(ctx, contract.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.MethodRecurrent, method.Method)
	assert.Equal(t, 3, method.AttemptCount)
	f.gateway.AssertExpectations(t)
}

func TestChargeRecurrentIdempotencyKeyTracksAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)
	inv := f.seedInvoice(t, contract.ID)
	f.seedRecurrentMethod(t, contract.ID, true)

	gwErr := &gatewaydomain.GatewayError{Code: "TIMEOUT", Message: "timeout", Retryable: true}
	f.gateway.On("Charge", mock.Anything, mock.Anything, mock.Anything, fmt.Sprintf("charge:%s:1", inv.ID.String())).
		Return(gatewaydomain.ChargeResult{}, gwErr).Once()
	f.gateway.On("Charge", mock.Anything, mock.Anything, mock.Anything, fmt.Sprintf("charge:%s:2", inv.ID.String())).
		Return(gatewaydomain.ChargeResult{TransactionID: "TX-2", Status: gatewaydomain.TransactionPaid}, nil).Once()

	_, err := f.svc.ChargeRecurrent(ctx, contract.ID, inv.ID)
	assert.Error(t, err)

	outcome, err := f.svc.ChargeRecurrent(ctx, contract.ID, inv.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, outcome.AttemptNumber)
	assert.Equal(t, "TX-2", outcome.TransactionID)
	f.gateway.AssertExpectations(t)
}

func TestChargeRecurrentRejectsManualMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)
	inv := f.seedInvoice(t, contract.ID)

	method := f.seedRecurrentMethod(t, contract.ID, true)
	f.db.Model(&domain.MethodStatus{}).Where("id = ?", method.ID).Update("method", domain.MethodManual)

	_, err := f.svc.ChargeRecurrent(ctx, contract.ID, inv.ID)
	assert.ErrorIs(t, err, domain.ErrNotRecurrent)
}

func TestSetupRecurrentGatewayFailureLeavesMethodUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)

	f.gateway.On("CreateSubscription", mock.Anything, contract.ClientName, "card-token").
		Return(gatewaydomain.SubscriptionRef{}, &gatewaydomain.GatewayError{Code: "500", Message: "upstream error", Retryable: true}).
		Once()

	_, err := f.svc.SetupRecurrent(ctx, domain.SetupRecurrentRequest{
		ContractID:           contract.ID,
		PaymentInstrumentRef: "card-token",
		AutoFallbackEnabled:  true,
	})
	assert.Error(t, err)

	_, err = f.svc.GetByContract(ctx, contract.ID)
	assert.ErrorIs(t, err, domain.ErrMethodNotFound)
	f.gateway.AssertExpectations(t)
}

func TestSetupRecurrentStoresSubscriptionRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)

	f.gateway.On("CreateSubscription", mock.Anything, contract.ClientName, "card-token").
		Return(gatewaydomain.SubscriptionRef{CustomerRef: "CUST-9", SubscriptionRef: "SUB-9"}, nil).
		Once()

	method, err := f.svc.SetupRecurrent(ctx, domain.SetupRecurrentRequest{
		ContractID:           contract.ID,
		PaymentInstrumentRef: "card-token",
		AutoFallbackEnabled:  true,
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.MethodRecurrent, method.Method)
	assert.Equal(t, "SUB-9", method.SubscriptionRef)
	assert.Equal(t, 0, method.AttemptCount)
	f.gateway.AssertExpectations(t)
}

func TestSetupManualResetsAttemptCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)

	seeded := f.seedRecurrentMethod(t, contract.ID, true)
	f.db.Model(&domain.MethodStatus{}).Where("id = ?", seeded.ID).
		Updates(map[string]any{"attempt_count": 2, "last_error": "timeout"})

	method, err := f.svc.SetupManual(ctx, contract.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.MethodManual, method.Method)
	assert.Equal(t, 0, method.AttemptCount)
	assert.Empty(t, method.LastError)
}

func TestCancelSubscriptionClearsRef(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t)
	f.seedRecurrentMethod(t, contract.ID, true)

	f.gateway.On("CancelSubscription", mock.Anything, gatewaydomain.SubscriptionRef{CustomerRef: "CUST-1", SubscriptionRef: "SUB-1"}).
		Return(nil).
		Once()

	method, err := f.svc.CancelSubscription(ctx, contract.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.MethodManual, method.Method)
	assert.Empty(t, method.SubscriptionRef)
	f.gateway.AssertExpectations(t)
}
