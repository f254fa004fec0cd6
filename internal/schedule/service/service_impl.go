package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/jvcardoso/proteamcare-billing/internal/clock"
	scheduledomain "github.com/jvcardoso/proteamcare-billing/internal/schedule/domain"
	"github.com/jvcardoso/proteamcare-billing/pkg/db/option"
	"github.com/jvcardoso/proteamcare-billing/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	schedulerepo repository.Repository[scheduledomain.BillingSchedule]
}

func NewService(p ServiceParam) scheduledomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("schedule.service"),
		genID: p.GenID,
		clock: p.Clock,

		schedulerepo: repository.ProvideStore[scheduledomain.BillingSchedule](p.DB),
	}
}

func (s *Service) List(ctx context.Context, req scheduledomain.ListScheduleRequest) (scheduledomain.ListScheduleResponse, error) {
	filter := &scheduledomain.BillingSchedule{}
	if req.ContractID != nil {
		filter.ContractID = *req.ContractID
	}
	opts := []option.QueryOption{option.WithOrder("next_billing_date ASC")}
	if req.ActiveOnly {
		opts = append(opts, option.WithWhere("is_active = ?", true))
	}

	rows, err := s.schedulerepo.Find(ctx, filter, opts...)
	if err != nil {
		return scheduledomain.ListScheduleResponse{}, err
	}

	schedules := make([]scheduledomain.BillingSchedule, 0, len(rows))
	for _, row := range rows {
		schedules = append(schedules, *row)
	}
	return scheduledomain.ListScheduleResponse{Schedules: schedules}, nil
}

// Upsert creates or replaces the active schedule for a contract. At most one
// active row per contract: an existing active schedule is updated in place.
func (s *Service) Upsert(ctx context.Context, req scheduledomain.UpsertScheduleRequest) (scheduledomain.BillingSchedule, error) {
	if !req.BillingCycle.Valid() {
		return scheduledomain.BillingSchedule{}, scheduledomain.ErrInvalidBillingCycle
	}
	if req.BillingDay < 1 || req.BillingDay > 31 {
		return scheduledomain.BillingSchedule{}, scheduledomain.ErrInvalidBillingDay
	}

	now := s.clock.Now()
	next := scheduledomain.NextBillingDate(req.BillingCycle, req.BillingDay, now)
	if req.NextBillingDate != nil {
		next = req.NextBillingDate.UTC()
	}

	var result scheduledomain.BillingSchedule
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.schedulerepo.WithTrx(tx)
		existing, err := repo.FindOne(ctx, &scheduledomain.BillingSchedule{ContractID: req.ContractID, IsActive: true})
		if err != nil {
			return err
		}

		if existing != nil {
			updates := map[string]any{
				"billing_cycle":     req.BillingCycle,
				"billing_day":       req.BillingDay,
				"next_billing_date": next,
				"amount_per_cycle":  req.AmountPerCycle,
				"updated_at":        now,
			}
			if err := repo.Update(ctx, existing.ID.String(), updates); err != nil {
				return err
			}
			existing.BillingCycle = req.BillingCycle
			existing.BillingDay = req.BillingDay
			existing.NextBillingDate = next
			existing.AmountPerCycle = req.AmountPerCycle
			existing.UpdatedAt = now
			result = *existing
			return nil
		}

		row := scheduledomain.BillingSchedule{
			ID:              s.genID.Generate(),
			ContractID:      req.ContractID,
			BillingCycle:    req.BillingCycle,
			BillingDay:      req.BillingDay,
			NextBillingDate: next,
			AmountPerCycle:  req.AmountPerCycle,
			IsActive:        true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repo.Create(ctx, &row); err != nil {
			return err
		}
		result = row
		return nil
	})
	if err != nil {
		return scheduledomain.BillingSchedule{}, err
	}

	return result, nil
}

func (s *Service) Deactivate(ctx context.Context, contractID snowflake.ID) error {
	res := s.db.WithContext(ctx).Model(&scheduledomain.BillingSchedule{}).
		Where("contract_id = ? AND is_active = ?", contractID, true).
		Updates(map[string]any{"is_active": false, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return scheduledomain.ErrScheduleNotFound
	}
	return nil
}
