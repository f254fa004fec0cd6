package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contractFixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  contractdomain.Service
}

func newContractFixture(t *testing.T) *contractFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:contract_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&contractdomain.Contract{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(41)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	return &contractFixture{
		db:   db,
		node: node,
		svc:  NewService(ServiceParam{DB: db, Log: zap.NewNop()}),
	}
}

func (f *contractFixture) seed(t *testing.T, mutate func(*contractdomain.Contract)) contractdomain.Contract {
	t.Helper()
	contract := contractdomain.Contract{
		ID:                   f.node.Generate(),
		ContractNumber:       fmt.Sprintf("CT-%s", f.node.Generate()),
		ClientName:           "Residencial Boa Vista",
		MonthlyValue:         220000,
		LivesCount:           12,
		BillingCycle:         "MONTHLY",
		BillingDay:           10,
		AutoGenerateInvoices: true,
		NextBillingDate:      time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC),
		IsActive:             true,
	}
	if mutate != nil {
		mutate(&contract)
	}
	if err := f.db.Create(&contract).Error; err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return contract
}

func TestGetDueContractsExcludesManualGeneration(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()
	asOf := time.Date(2025, 10, 10, 6, 0, 0, 0, time.UTC)

	auto := f.seed(t, nil)
	manual := f.seed(t, func(c *contractdomain.Contract) {
		c.AutoGenerateInvoices = false
	})

	// The flag must survive the round trip as written, not revert to a
	// column default.
	stored, err := f.svc.GetByID(ctx, manual.ID)
	assert.NoError(t, err)
	assert.False(t, stored.AutoGenerateInvoices)

	due, err := f.svc.GetDueContracts(ctx, asOf, false)
	assert.NoError(t, err)
	if assert.Len(t, due, 1) {
		assert.Equal(t, auto.ID, due[0].ID)
	}

	due, err = f.svc.GetDueContracts(ctx, asOf, true)
	assert.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestGetDueContractsSkipsInactive(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()
	asOf := time.Date(2025, 10, 10, 6, 0, 0, 0, time.UTC)

	f.seed(t, func(c *contractdomain.Contract) {
		c.IsActive = false
	})
	active := f.seed(t, nil)

	due, err := f.svc.GetDueContracts(ctx, asOf, true)
	assert.NoError(t, err)
	if assert.Len(t, due, 1) {
		assert.Equal(t, active.ID, due[0].ID)
	}
}

func TestGetUpcomingWindow(t *testing.T) {
	f := newContractFixture(t)
	ctx := context.Background()
	asOf := time.Date(2025, 10, 10, 6, 0, 0, 0, time.UTC)

	inWindow := f.seed(t, func(c *contractdomain.Contract) {
		c.NextBillingDate = time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)
	})
	f.seed(t, func(c *contractdomain.Contract) {
		c.NextBillingDate = time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	})

	upcoming, err := f.svc.GetUpcoming(ctx, asOf, 30)
	assert.NoError(t, err)
	if assert.Len(t, upcoming, 1) {
		assert.Equal(t, inWindow.ID, upcoming[0].ID)
	}
}
