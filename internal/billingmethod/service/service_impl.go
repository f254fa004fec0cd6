package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	domain "github.com/jvcardoso/proteamcare-billing/internal/billingmethod/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/clock"
	"github.com/jvcardoso/proteamcare-billing/internal/config"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	gatewaydomain "github.com/jvcardoso/proteamcare-billing/internal/gateway/domain"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
	"github.com/jvcardoso/proteamcare-billing/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Gateway     gatewaydomain.Client
	ContractSvc contractdomain.Service
	InvoiceSvc  invoicedomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	maxAttempts int
	gateway     gatewaydomain.Client
	contractSvc contractdomain.Service
	invoiceSvc  invoicedomain.Service

	methodrepo repository.Repository[domain.MethodStatus]
}

func NewService(p ServiceParam) domain.Service {
	maxAttempts := p.Config.Billing.MaxChargeAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billingmethod.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		maxAttempts: maxAttempts,
		gateway:     p.Gateway,
		contractSvc: p.ContractSvc,
		invoiceSvc:  p.InvoiceSvc,

		methodrepo: repository.ProvideStore[domain.MethodStatus](p.DB),
	}
}

func (s *Service) GetByContract(ctx context.Context, contractID snowflake.ID) (domain.MethodStatus, error) {
	row, err := s.methodrepo.FindOne(ctx, &domain.MethodStatus{ContractID: contractID})
	if err != nil {
		return domain.MethodStatus{}, err
	}
	if row == nil {
		return domain.MethodStatus{}, domain.ErrMethodNotFound
	}
	return *row, nil
}

func (s *Service) ChargeRecurrent(ctx context.Context, contractID, invoiceID snowflake.ID) (domain.ChargeOutcome, error) {
	method, err := s.GetByContract(ctx, contractID)
	if err != nil {
		return domain.ChargeOutcome{}, err
	}
	if method.Method != domain.MethodRecurrent || method.SubscriptionRef == "" {
		return domain.ChargeOutcome{}, domain.ErrNotRecurrent
	}

	view, err := s.invoiceSvc.GetByID(ctx, invoiceID)
	if err != nil {
		return domain.ChargeOutcome{}, err
	}
	if view.Invoice.Status.Terminal() {
		return domain.ChargeOutcome{}, invoicedomain.ErrInvalidTransition
	}

	attempt := method.AttemptCount + 1
	ref := gatewaydomain.SubscriptionRef{
		CustomerRef:     method.CustomerRef,
		SubscriptionRef: method.SubscriptionRef,
	}
	// The key is deterministic per attempt so a transport retry cannot
	// double-charge the same invoice.
	idempotencyKey := fmt.Sprintf("charge:%s:%d", invoiceID.String(), attempt)

	result, chargeErr := s.gateway.Charge(ctx, ref, view.Invoice.TotalAmount, idempotencyKey)
	if chargeErr != nil {
		return s.recordFailure(ctx, method, invoiceID, attempt, chargeErr)
	}

	if err := s.applyVersioned(ctx, method, map[string]any{
		"attempt_count":   0,
		"last_error":      "",
		"last_attempt_at": s.clock.Now(),
	}); err != nil {
		return domain.ChargeOutcome{}, err
	}

	paid := s.clock.Now()
	pm := invoicedomain.PaymentMethodRecurrent
	if _, err := s.invoiceSvc.UpdateStatus(ctx, invoiceID, invoicedomain.UpdateStatusRequest{
		Target:        invoicedomain.StatusPaga,
		PaymentMethod: &pm,
		PaidDate:      &paid,
	}); err != nil {
		// The charge went through; the settle failure is surfaced so the
		// operator reconciles instead of the runner re-charging.
		s.log.Error("charged but failed to settle invoice",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("transaction_id", result.TransactionID),
			zap.Error(err),
		)
		return domain.ChargeOutcome{TransactionID: result.TransactionID, AttemptNumber: attempt}, err
	}

	s.log.Info("recurrent charge succeeded",
		zap.String("contract_id", contractID.String()),
		zap.String("invoice_id", invoiceID.String()),
		zap.String("transaction_id", result.TransactionID),
	)
	return domain.ChargeOutcome{TransactionID: result.TransactionID, AttemptNumber: attempt}, nil
}

func (s *Service) recordFailure(
	ctx context.Context,
	method domain.MethodStatus,
	invoiceID snowflake.ID,
	attempt int,
	chargeErr error,
) (domain.ChargeOutcome, error) {
	updates := map[string]any{
		"attempt_count":   attempt,
		"last_error":      chargeErr.Error(),
		"last_attempt_at": s.clock.Now(),
	}

	fellBack := attempt >= s.maxAttempts && method.AutoFallbackEnabled
	if fellBack {
		updates["method"] = domain.MethodManual
	}
	if err := s.applyVersioned(ctx, method, updates); err != nil {
		return domain.ChargeOutcome{}, err
	}

	s.log.Warn("recurrent charge failed",
		zap.String("contract_id", method.ContractID.String()),
		zap.String("invoice_id", invoiceID.String()),
		zap.Int("attempt", attempt),
		zap.Bool("fell_back", fellBack),
		zap.Error(chargeErr),
	)
	return domain.ChargeOutcome{AttemptNumber: attempt, FellBack: fellBack}, chargeErr
}

// applyVersioned updates the aggregate guarded by its version column. A zero
// row count means another writer got there first.
func (s *Service) applyVersioned(ctx context.Context, method domain.MethodStatus, updates map[string]any) error {
	updates["version"] = method.Version + 1
	updates["updated_at"] = s.clock.Now()

	res := s.db.WithContext(ctx).Model(&domain.MethodStatus{}).
		Where("id = ? AND version = ?", method.ID, method.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (s *Service) SetupRecurrent(ctx context.Context, req domain.SetupRecurrentRequest) (domain.MethodStatus, error) {
	contract, err := s.contractSvc.GetByID(ctx, req.ContractID)
	if err != nil {
		return domain.MethodStatus{}, err
	}

	customerName := req.CustomerName
	if customerName == "" {
		customerName = contract.ClientName
	}

	// Gateway first. A failed subscription setup leaves the stored method
	// exactly as it was.
	ref, err := s.gateway.CreateSubscription(ctx, customerName, req.PaymentInstrumentRef)
	if err != nil {
		return domain.MethodStatus{}, err
	}

	return s.upsert(ctx, req.ContractID, func(m *domain.MethodStatus) {
		m.Method = domain.MethodRecurrent
		m.AutoFallbackEnabled = req.AutoFallbackEnabled
		m.AttemptCount = 0
		m.CustomerRef = ref.CustomerRef
		m.SubscriptionRef = ref.SubscriptionRef
		m.LastError = ""
	})
}

func (s *Service) SetupManual(ctx context.Context, contractID snowflake.ID) (domain.MethodStatus, error) {
	if _, err := s.contractSvc.GetByID(ctx, contractID); err != nil {
		return domain.MethodStatus{}, err
	}
	return s.upsert(ctx, contractID, func(m *domain.MethodStatus) {
		m.Method = domain.MethodManual
		m.AttemptCount = 0
		m.LastError = ""
	})
}

func (s *Service) CancelSubscription(ctx context.Context, contractID snowflake.ID) (domain.MethodStatus, error) {
	method, err := s.GetByContract(ctx, contractID)
	if err != nil {
		return domain.MethodStatus{}, err
	}
	if method.SubscriptionRef == "" {
		return domain.MethodStatus{}, domain.ErrNotRecurrent
	}

	if err := s.gateway.CancelSubscription(ctx, gatewaydomain.SubscriptionRef{
		CustomerRef:     method.CustomerRef,
		SubscriptionRef: method.SubscriptionRef,
	}); err != nil {
		return domain.MethodStatus{}, err
	}

	if err := s.applyVersioned(ctx, method, map[string]any{
		"method":           domain.MethodManual,
		"subscription_ref": "",
		"attempt_count":    0,
		"last_error":       "",
	}); err != nil {
		return domain.MethodStatus{}, err
	}
	return s.GetByContract(ctx, contractID)
}

func (s *Service) upsert(ctx context.Context, contractID snowflake.ID, mutate func(*domain.MethodStatus)) (domain.MethodStatus, error) {
	var out domain.MethodStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.MethodStatus
		err := tx.WithContext(ctx).Where("contract_id = ?", contractID).First(&existing).Error
		now := s.clock.Now()

		if err == gorm.ErrRecordNotFound {
			out = domain.MethodStatus{
				ID:         s.genID.Generate(),
				ContractID: contractID,
				IsActive:   true,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			mutate(&out)
			return tx.WithContext(ctx).Create(&out).Error
		}
		if err != nil {
			return err
		}

		out = existing
		mutate(&out)
		out.UpdatedAt = now
		out.Version = existing.Version + 1

		res := tx.WithContext(ctx).Model(&domain.MethodStatus{}).
			Where("id = ? AND version = ?", existing.ID, existing.Version).
			Select("*").Omit("id", "contract_id", "created_at").
			Updates(out)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		return domain.MethodStatus{}, err
	}
	return out, nil
}
