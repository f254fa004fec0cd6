package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	"github.com/jvcardoso/proteamcare-billing/pkg/db/option"
	"github.com/jvcardoso/proteamcare-billing/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	contractrepo repository.Repository[contractdomain.Contract]
}

func NewService(p ServiceParam) contractdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("contract.service"),

		contractrepo: repository.ProvideStore[contractdomain.Contract](p.DB),
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	row, err := s.contractrepo.FindOne(ctx, &contractdomain.Contract{ID: id})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, contractdomain.ErrContractNotFound
	}
	return row, nil
}

func (s *Service) GetDueContracts(ctx context.Context, asOf time.Time, includeManual bool) ([]contractdomain.Contract, error) {
	opts := []option.QueryOption{
		option.WithWhere("next_billing_date <= ?", asOf),
		option.WithOrder("next_billing_date ASC"),
	}
	if !includeManual {
		opts = append(opts, option.WithWhere("auto_generate_invoices = ?", true))
	}
	rows, err := s.contractrepo.Find(ctx,
		&contractdomain.Contract{IsActive: true},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	return deref(rows), nil
}

func (s *Service) GetUpcoming(ctx context.Context, asOf time.Time, daysAhead int) ([]contractdomain.Contract, error) {
	if daysAhead <= 0 {
		daysAhead = 30
	}
	until := asOf.AddDate(0, 0, daysAhead)
	rows, err := s.contractrepo.Find(ctx,
		&contractdomain.Contract{AutoGenerateInvoices: true, IsActive: true},
		option.WithWhere("next_billing_date > ? AND next_billing_date <= ?", asOf, until),
		option.WithOrder("next_billing_date ASC"),
	)
	if err != nil {
		return nil, err
	}
	return deref(rows), nil
}

func (s *Service) AdvanceNextBillingDate(ctx context.Context, contractID snowflake.ID, next time.Time) error {
	res := s.db.WithContext(ctx).Model(&contractdomain.Contract{}).
		Where("id = ?", contractID).
		Updates(map[string]any{"next_billing_date": next, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return contractdomain.ErrContractNotFound
	}
	return nil
}

func deref(rows []*contractdomain.Contract) []contractdomain.Contract {
	out := make([]contractdomain.Contract, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out
}
