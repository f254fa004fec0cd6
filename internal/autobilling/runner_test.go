package autobilling

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingmethoddomain "github.com/jvcardoso/proteamcare-billing/internal/billingmethod/domain"
	billingmethodservice "github.com/jvcardoso/proteamcare-billing/internal/billingmethod/service"
	"github.com/jvcardoso/proteamcare-billing/internal/clock"
	"github.com/jvcardoso/proteamcare-billing/internal/config"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	contractservice "github.com/jvcardoso/proteamcare-billing/internal/contract/service"
	gatewaydomain "github.com/jvcardoso/proteamcare-billing/internal/gateway/domain"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
	invoiceservice "github.com/jvcardoso/proteamcare-billing/internal/invoice/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubGateway struct {
	chargeFn func(ref gatewaydomain.SubscriptionRef, amount int64, key string) (gatewaydomain.ChargeResult, error)
}

func (g *stubGateway) Charge(_ context.Context, ref gatewaydomain.SubscriptionRef, amount int64, key string) (gatewaydomain.ChargeResult, error) {
	if g.chargeFn == nil {
		return gatewaydomain.ChargeResult{TransactionID: "TX", Status: gatewaydomain.TransactionPaid}, nil
	}
	return g.chargeFn(ref, amount, key)
}

func (g *stubGateway) CreateCheckoutSession(context.Context, gatewaydomain.CheckoutRequest) (gatewaydomain.CheckoutSession, error) {
	return gatewaydomain.CheckoutSession{}, nil
}

func (g *stubGateway) CreateSubscription(context.Context, string, string) (gatewaydomain.SubscriptionRef, error) {
	return gatewaydomain.SubscriptionRef{}, nil
}

func (g *stubGateway) CancelSubscription(context.Context, gatewaydomain.SubscriptionRef) error {
	return nil
}

func (g *stubGateway) GetTransactionStatus(context.Context, string) (gatewaydomain.TransactionStatus, error) {
	return gatewaydomain.TransactionPending, nil
}

type runnerFixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	clk         *clock.FakeClock
	gateway     *stubGateway
	contractSvc contractdomain.Service
	invoiceSvc  invoicedomain.Service
	methodSvc   billingmethoddomain.Service
	runner      *Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:autobilling_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&contractdomain.Contract{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceNumberCounter{},
		&invoicedomain.PaymentReceipt{},
		&billingmethoddomain.MethodStatus{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(31)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 10, 10, 6, 0, 0, 0, time.UTC))
	gw := &stubGateway{}

	contractSvc := contractservice.NewService(contractservice.ServiceParam{DB: db, Log: zap.NewNop()})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, ContractSvc: contractSvc,
	})
	methodSvc := billingmethodservice.NewService(billingmethodservice.ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Config:      config.Config{Billing: config.BillingConfig{MaxChargeAttempts: 3}},
		Gateway:     gw,
		ContractSvc: contractSvc,
		InvoiceSvc:  invoiceSvc,
	})

	runner, err := New(Params{
		Log:         zap.NewNop(),
		Clock:       clk,
		Config:      Config{BatchSize: 100, WorkerCount: 4},
		ContractSvc: contractSvc,
		InvoiceSvc:  invoiceSvc,
		MethodSvc:   methodSvc,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	return &runnerFixture{
		db:          db,
		node:        node,
		clk:         clk,
		gateway:     gw,
		contractSvc: contractSvc,
		invoiceSvc:  invoiceSvc,
		methodSvc:   methodSvc,
		runner:      runner,
	}
}

func (f *runnerFixture) seedContract(t *testing.T, mutate func(*contractdomain.Contract)) contractdomain.Contract {
	t.Helper()
	contract := contractdomain.Contract{
		ID:                   f.node.Generate(),
		ContractNumber:       fmt.Sprintf("CT-%s", f.node.Generate()),
		ClientName:           "Lar Sao Judas",
		MonthlyValue:         180000,
		LivesCount:           8,
		BillingCycle:         "MONTHLY",
		BillingDay:           10,
		AutoGenerateInvoices: true,
		NextBillingDate:      time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC),
		IsActive:             true,
		CreatedAt:            f.clk.Now(),
		UpdatedAt:            f.clk.Now(),
	}
	if mutate != nil {
		mutate(&contract)
	}
	if err := f.db.Create(&contract).Error; err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return contract
}

func (f *runnerFixture) seedRecurrentMethod(t *testing.T, contractID snowflake.ID, subscriptionRef string) {
	t.Helper()
	method := billingmethoddomain.MethodStatus{
		ID:                  f.node.Generate(),
		ContractID:          contractID,
		Method:              billingmethoddomain.MethodRecurrent,
		AutoFallbackEnabled: true,
		CustomerRef:         "CUST",
		SubscriptionRef:     subscriptionRef,
		IsActive:            true,
		CreatedAt:           f.clk.Now(),
		UpdatedAt:           f.clk.Now(),
	}
	if err := f.db.Create(&method).Error; err != nil {
		t.Fatalf("seed method: %v", err)
	}
}

func TestRunOnceGeneratesInvoiceAndAdvancesDate(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t, nil)

	report, err := f.runner.RunOnce(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.TotalAttempted)
	assert.Equal(t, 1, report.TotalSucceeded)
	assert.Equal(t, 0, report.TotalFailed)

	out := report.Outcomes[0]
	assert.Equal(t, contract.ID, out.ContractID)
	assert.False(t, out.AlreadyGenerated)
	assert.False(t, out.Charged)
	if assert.NotNil(t, out.InvoiceID) {
		view, err := f.invoiceSvc.GetByID(ctx, *out.InvoiceID)
		assert.NoError(t, err)
		assert.Equal(t, invoicedomain.StatusPendente, view.Invoice.Status)
		assert.True(t, view.Invoice.PeriodStart.Equal(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, view.Invoice.PeriodEnd.Equal(time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)))
	}

	reloaded, err := f.contractSvc.GetByID(ctx, contract.ID)
	assert.NoError(t, err)
	assert.True(t, reloaded.NextBillingDate.Equal(time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)))

	// Same-day re-run: the contract is no longer due, so nothing happens.
	report, err = f.runner.RunOnce(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 0, report.TotalAttempted)

	var count int64
	f.db.Model(&invoicedomain.Invoice{}).Where("contract_id = ?", contract.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRunOnceDuplicatePeriodIsIdempotentSuccess(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t, nil)

	// The invoice for the period already exists but the billing date was
	// never advanced, e.g. a crash between the two writes.
	_, err := f.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ContractID:  contract.ID,
		PeriodStart: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
		LivesCount:  contract.LivesCount,
		BaseAmount:  contract.MonthlyValue,
		DueDate:     contract.NextBillingDate,
	})
	assert.NoError(t, err)

	report, err := f.runner.RunOnce(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.TotalAttempted)
	assert.Equal(t, 1, report.TotalSucceeded)
	assert.True(t, report.Outcomes[0].AlreadyGenerated)
	assert.Empty(t, report.Outcomes[0].Error)

	var count int64
	f.db.Model(&invoicedomain.Invoice{}).Where("contract_id = ?", contract.ID).Count(&count)
	assert.EqualValues(t, 1, count)

	reloaded, err := f.contractSvc.GetByID(ctx, contract.ID)
	assert.NoError(t, err)
	assert.True(t, reloaded.NextBillingDate.Equal(time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)))
}

func TestRunOnceDuplicatePeriodRetriesUnchargedInvoice(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t, nil)
	f.seedRecurrentMethod(t, contract.ID, "SUB-R")

	// A prior run created the invoice but crashed before charging it.
	inv, err := f.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ContractID:  contract.ID,
		PeriodStart: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
		LivesCount:  contract.LivesCount,
		BaseAmount:  contract.MonthlyValue,
		DueDate:     contract.NextBillingDate,
	})
	assert.NoError(t, err)

	report, err := f.runner.RunOnce(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.TotalSucceeded)

	out := report.Outcomes[0]
	assert.True(t, out.AlreadyGenerated)
	assert.True(t, out.Charged)
	if assert.NotNil(t, out.InvoiceID) {
		assert.Equal(t, inv.ID, *out.InvoiceID)
	}

	view, err := f.invoiceSvc.GetByID(ctx, inv.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaga, view.Invoice.Status)

	var count int64
	f.db.Model(&invoicedomain.Invoice{}).Where("contract_id = ?", contract.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRunOnceDuplicatePeriodSkipsSettledInvoice(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t, nil)
	f.seedRecurrentMethod(t, contract.ID, "SUB-R")

	inv, err := f.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ContractID:  contract.ID,
		PeriodStart: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
		LivesCount:  contract.LivesCount,
		BaseAmount:  contract.MonthlyValue,
		DueDate:     contract.NextBillingDate,
	})
	assert.NoError(t, err)
	_, err = f.invoiceSvc.UpdateStatus(ctx, inv.ID, invoicedomain.UpdateStatusRequest{Target: invoicedomain.StatusEnviada})
	assert.NoError(t, err)

	report, err := f.runner.RunOnce(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.TotalSucceeded)
	assert.True(t, report.Outcomes[0].AlreadyGenerated)
	assert.False(t, report.Outcomes[0].Charged)

	view, err := f.invoiceSvc.GetByID(ctx, inv.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusEnviada, view.Invoice.Status)
}

func TestRunOncePartialFailureKeepsSuccesses(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	good1 := f.seedContract(t, nil)
	good2 := f.seedContract(t, nil)
	bad := f.seedContract(t, nil)
	f.seedRecurrentMethod(t, good1.ID, "SUB-A")
	f.seedRecurrentMethod(t, good2.ID, "SUB-B")
	f.seedRecurrentMethod(t, bad.ID, "SUB-C")

	f.gateway.chargeFn = func(ref gatewaydomain.SubscriptionRef, amount int64, key string) (gatewaydomain.ChargeResult, error) {
		if ref.SubscriptionRef == "SUB-C" {
			return gatewaydomain.ChargeResult{}, &gatewaydomain.GatewayError{Code: "TIMEOUT", Message: "gateway timeout", Retryable: true}
		}
		return gatewaydomain.ChargeResult{TransactionID: "TX-" + ref.SubscriptionRef, Status: gatewaydomain.TransactionPaid}, nil
	}

	report, err := f.runner.RunOnce(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 3, report.TotalAttempted)
	assert.Equal(t, 2, report.TotalSucceeded)
	assert.Equal(t, 1, report.TotalFailed)

	var invoices int64
	f.db.Model(&invoicedomain.Invoice{}).Count(&invoices)
	assert.EqualValues(t, 3, invoices)

	charged := 0
	for _, out := range report.Outcomes {
		if out.Charged {
			charged++
		}
	}
	assert.Equal(t, 2, charged)

	failures := report.Failures()
	if assert.Len(t, failures, 1) {
		assert.Equal(t, bad.ID, failures[0].ContractID)
		assert.Contains(t, failures[0].Error, "gateway timeout")
	}

	// All three contracts advance regardless of the charge outcome.
	for _, id := range []snowflake.ID{good1.ID, good2.ID, bad.ID} {
		reloaded, err := f.contractSvc.GetByID(ctx, id)
		assert.NoError(t, err)
		assert.True(t, reloaded.NextBillingDate.Equal(time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)))
	}
}

func TestRunOnceForceIncludesManualContracts(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t, func(c *contractdomain.Contract) {
		c.AutoGenerateInvoices = false
	})

	report, err := f.runner.RunOnce(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 0, report.TotalAttempted)

	report, err = f.runner.RunOnce(ctx, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.TotalAttempted)
	assert.Equal(t, contract.ID, report.Outcomes[0].ContractID)
}

func TestRunOnceMarksOverdueInvoices(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()
	contract := f.seedContract(t, func(c *contractdomain.Contract) {
		c.NextBillingDate = time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	})

	inv, err := f.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ContractID:  contract.ID,
		PeriodStart: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC),
		LivesCount:  contract.LivesCount,
		BaseAmount:  contract.MonthlyValue,
		DueDate:     time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	_, err = f.invoiceSvc.UpdateStatus(ctx, inv.ID, invoicedomain.UpdateStatusRequest{Target: invoicedomain.StatusEnviada})
	assert.NoError(t, err)

	report, err := f.runner.RunOnce(ctx, false)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, report.OverdueMarked)

	view, err := f.invoiceSvc.GetByID(ctx, inv.ID)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusVencida, view.Invoice.Status)
	assert.True(t, view.IsOverdueNow)
}

func TestReportJSONRoundTrip(t *testing.T) {
	f := newRunnerFixture(t)
	invoiceID := f.node.Generate()
	report := Report{
		TotalAttempted: 1,
		TotalSucceeded: 1,
		Outcomes: []Outcome{{
			ContractID: f.node.Generate(),
			InvoiceID:  &invoiceID,
			Charged:    true,
		}},
	}

	raw, err := json.Marshal(report)
	assert.NoError(t, err)

	var decoded Report
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	if assert.Len(t, decoded.Outcomes, 1) {
		assert.Equal(t, report.Outcomes[0].ContractID, decoded.Outcomes[0].ContractID)
		assert.Equal(t, invoiceID, *decoded.Outcomes[0].InvoiceID)
	}
}

func TestRunOnceRejectsOverlappingRun(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	release, ok, err := f.runner.lock.TryAcquire(ctx)
	assert.NoError(t, err)
	assert.True(t, ok)
	defer release(ctx)

	_, err = f.runner.RunOnce(ctx, false)
	assert.ErrorIs(t, err, ErrRunInProgress)
}
