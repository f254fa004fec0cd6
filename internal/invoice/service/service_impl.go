package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jvcardoso/proteamcare-billing/internal/clock"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
	"github.com/jvcardoso/proteamcare-billing/pkg/db"
	"github.com/jvcardoso/proteamcare-billing/pkg/db/option"
	"github.com/jvcardoso/proteamcare-billing/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	ContractSvc contractdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	contractSvc contractdomain.Service

	invoicerepo repository.Repository[invoicedomain.Invoice]
	receiptrepo repository.Repository[invoicedomain.PaymentReceipt]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invoice.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		contractSvc: p.ContractSvc,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		receiptrepo: repository.ProvideStore[invoicedomain.PaymentReceipt](p.DB),
	}
}

// allowedTransitions encodes the invoice state machine. VENCIDA is reachable
// only through the reconciliation pass, never through UpdateStatus targets
// other than the ones listed here.
var allowedTransitions = map[invoicedomain.InvoiceStatus][]invoicedomain.InvoiceStatus{
	invoicedomain.StatusPendente: {
		invoicedomain.StatusEnviada,
		invoicedomain.StatusPaga,
		invoicedomain.StatusCancelada,
	},
	invoicedomain.StatusEnviada: {
		invoicedomain.StatusPaga,
		invoicedomain.StatusVencida,
		invoicedomain.StatusCancelada,
	},
	invoicedomain.StatusVencida: {
		invoicedomain.StatusPaga,
		invoicedomain.StatusCancelada,
	},
}

func transitionAllowed(from, to invoicedomain.InvoiceStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidPeriod
	}
	total := req.BaseAmount + req.AdditionalServicesAmount + req.Taxes - req.Discounts
	if req.BaseAmount < 0 || req.AdditionalServicesAmount < 0 || req.Discounts < 0 || req.Taxes < 0 || total < 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	lives := req.LivesCount
	if lives < 1 {
		lives = 1
	}

	var created invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.nextInvoiceNumber(ctx, tx, req.ContractID, req.PeriodStart)
		if err != nil {
			return err
		}

		created = invoicedomain.Invoice{
			ID:                       s.genID.Generate(),
			ContractID:               req.ContractID,
			InvoiceNumber:            number,
			PeriodStart:              req.PeriodStart,
			PeriodEnd:                req.PeriodEnd,
			LivesCount:               lives,
			BaseAmount:               req.BaseAmount,
			AdditionalServicesAmount: req.AdditionalServicesAmount,
			Discounts:                req.Discounts,
			Taxes:                    req.Taxes,
			TotalAmount:              total,
			Status:                   invoicedomain.StatusPendente,
			DueDate:                  req.DueDate,
			IssuedDate:               now,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		return tx.WithContext(ctx).Create(&created).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return invoicedomain.Invoice{}, invoicedomain.ErrDuplicatePeriod
		}
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", created.ID.String()),
		zap.String("invoice_number", created.InvoiceNumber),
		zap.String("contract_id", created.ContractID.String()),
	)
	return created, nil
}

// nextInvoiceNumber builds INV-YYYYMM-<contract:6digits>-<seq:3digits>. The
// sequence comes from a per-contract counter row incremented in the same
// transaction; the row lock serializes concurrent creates for the month.
func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, contractID snowflake.ID, periodStart time.Time) (string, error) {
	month := periodStart.Format("200601")
	counter := invoicedomain.InvoiceNumberCounter{ContractID: contractID, PeriodMonth: month, LastSeq: 1}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_id"}, {Name: "period_month"}},
		DoUpdates: clause.Assignments(map[string]any{"last_seq": gorm.Expr("last_seq + 1")}),
	}).Create(&counter).Error; err != nil {
		return "", err
	}
	if err := tx.WithContext(ctx).
		Where("contract_id = ? AND period_month = ?", contractID, month).
		First(&counter).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%06d-%03d", month, contractID%1000000, counter.LastSeq), nil
}

func (s *Service) GetByPeriod(ctx context.Context, contractID snowflake.ID, periodStart time.Time) (invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("contract_id = ? AND period_start = ? AND status <> ?",
			contractID, periodStart, invoicedomain.StatusCancelada).
		First(&inv).Error
	if err == gorm.ErrRecordNotFound {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return inv, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.InvoiceView, error) {
	row, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return invoicedomain.InvoiceView{}, err
	}
	if row == nil {
		return invoicedomain.InvoiceView{}, invoicedomain.ErrInvoiceNotFound
	}
	return s.view(ctx, *row), nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) ([]invoicedomain.InvoiceView, error) {
	filter := &invoicedomain.Invoice{}
	if req.ContractID != nil {
		filter.ContractID = *req.ContractID
	}
	if req.Status != nil {
		filter.Status = *req.Status
	}

	opts := []option.QueryOption{option.WithOrder("due_date DESC")}
	if req.OverdueOnly {
		opts = append(opts, option.WithWhere(
			"due_date < ? AND status IN ?",
			invoicedomain.DateOf(s.clock.Now()),
			[]invoicedomain.InvoiceStatus{invoicedomain.StatusPendente, invoicedomain.StatusEnviada, invoicedomain.StatusVencida},
		))
	}
	if req.Limit > 0 {
		opts = append(opts, option.WithLimit(req.Limit))
	}

	rows, err := s.invoicerepo.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	views := make([]invoicedomain.InvoiceView, 0, len(rows))
	for _, row := range rows {
		views = append(views, s.view(ctx, *row))
	}
	return views, nil
}

func (s *Service) view(ctx context.Context, inv invoicedomain.Invoice) invoicedomain.InvoiceView {
	now := s.clock.Now()
	view := invoicedomain.InvoiceView{
		Invoice:      inv,
		IsOverdueNow: inv.IsOverdue(now),
		DaysOverdueN: inv.DaysOverdue(now),
	}
	if !view.IsOverdueNow {
		return view
	}

	contract, err := s.contractSvc.GetByID(ctx, inv.ContractID)
	if err != nil {
		// Missing contract never hides the invoice; the fee is just omitted.
		s.log.Warn("late fee lookup failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
		return view
	}
	if view.DaysOverdueN > contract.GracePeriodDays {
		view.LateFeeAmount = inv.TotalAmount * contract.LateFeeBps / 10000
	}
	return view
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, req invoicedomain.UpdateStatusRequest) (invoicedomain.Invoice, error) {
	if !req.Target.Valid() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidTransition
	}

	var updated invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv invoicedomain.Invoice
		if err := tx.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return invoicedomain.ErrInvoiceNotFound
			}
			return err
		}

		if inv.Status.Terminal() || !transitionAllowed(inv.Status, req.Target) {
			return invoicedomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		updates := map[string]any{
			"status":     req.Target,
			"updated_at": now,
		}
		if req.Target == invoicedomain.StatusPaga {
			if req.PaymentMethod == nil || !req.PaymentMethod.Valid() || req.PaidDate == nil {
				return invoicedomain.ErrMissingPaymentDetails
			}
			updates["payment_method"] = *req.PaymentMethod
			updates["paid_date"] = req.PaidDate.UTC()
		}

		if err := tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
			Where("id = ? AND status = ?", id, inv.Status).
			Updates(updates).Error; err != nil {
			return err
		}

		inv.Status = req.Target
		inv.UpdatedAt = now
		if req.Target == invoicedomain.StatusPaga {
			inv.PaymentMethod = req.PaymentMethod
			paid := req.PaidDate.UTC()
			inv.PaidDate = &paid
		}
		updated = inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("invoice status updated",
		zap.String("invoice_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

func (s *Service) MarkOverdueInvoices(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("due_date < ? AND status IN ?", invoicedomain.DateOf(now),
			[]invoicedomain.InvoiceStatus{invoicedomain.StatusPendente, invoicedomain.StatusEnviada}).
		Updates(map[string]any{"status": invoicedomain.StatusVencida, "updated_at": now})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("overdue reconciliation", zap.Int64("marked", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
