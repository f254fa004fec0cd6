package autobilling

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	billingmethoddomain "github.com/jvcardoso/proteamcare-billing/internal/billingmethod/domain"
	"github.com/jvcardoso/proteamcare-billing/internal/clock"
	contractdomain "github.com/jvcardoso/proteamcare-billing/internal/contract/domain"
	invoicedomain "github.com/jvcardoso/proteamcare-billing/internal/invoice/domain"
	obsmetrics "github.com/jvcardoso/proteamcare-billing/internal/observability/metrics"
	scheduledomain "github.com/jvcardoso/proteamcare-billing/internal/schedule/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress indicates another batch run currently holds the run lock.
var ErrRunInProgress = errors.New("auto billing run already in progress")

// Outcome is the per-contract result of one batch run. Errors on one
// contract never abort the others.
type Outcome struct {
	ContractID       snowflake.ID  `json:"contract_id"`
	InvoiceID        *snowflake.ID `json:"invoice_id,omitempty"`
	InvoiceNumber    string        `json:"invoice_number,omitempty"`
	AlreadyGenerated bool          `json:"already_generated"`
	Charged          bool          `json:"charged"`
	Error            string        `json:"error,omitempty"`
}

// Report aggregates one batch run.
type Report struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	TotalAttempted int       `json:"total_attempted"`
	TotalSucceeded int       `json:"total_succeeded"`
	TotalFailed    int       `json:"total_failed"`
	OverdueMarked  int64     `json:"overdue_marked"`
	Outcomes       []Outcome `json:"outcomes"`
}

// Failures returns the outcomes that carry an error.
func (r Report) Failures() []Outcome {
	failures := make([]Outcome, 0, r.TotalFailed)
	for _, out := range r.Outcomes {
		if out.Error != "" {
			failures = append(failures, out)
		}
	}
	return failures
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Config      Config `optional:"true"`
	ContractSvc contractdomain.Service
	InvoiceSvc  invoicedomain.Service
	MethodSvc   billingmethoddomain.Service
	Redis       *redis.Client `optional:"true"`
}

type Runner struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	contractSvc contractdomain.Service
	invoiceSvc  invoicedomain.Service
	methodSvc   billingmethoddomain.Service
	lock        runLocker
}

func New(p Params) (*Runner, error) {
	if p.Log == nil || p.Clock == nil || p.ContractSvc == nil || p.InvoiceSvc == nil || p.MethodSvc == nil {
		return nil, errors.New("autobilling: missing dependencies")
	}
	cfg := p.Config.withDefaults()

	var lock runLocker = &localRunLock{}
	if p.Redis != nil {
		lock = newRedisRunLock(p.Redis, cfg.RunLockTTL)
	}

	return &Runner{
		log:         p.Log.Named("autobilling.runner"),
		cfg:         cfg,
		clock:       p.Clock,
		contractSvc: p.ContractSvc,
		invoiceSvc:  p.InvoiceSvc,
		methodSvc:   p.MethodSvc,
		lock:        lock,
	}, nil
}

// RunOnce executes one full batch pass: select due contracts, generate
// invoices, charge recurrent contracts, advance billing dates, then run the
// overdue reconciliation. force also selects contracts that opted out of
// automatic invoice generation.
func (r *Runner) RunOnce(ctx context.Context, force bool) (Report, error) {
	release, ok, err := r.lock.TryAcquire(ctx)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{}, ErrRunInProgress
	}
	defer release(ctx)

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	m := obsmetrics.Billing()
	m.IncRun()
	start := r.clock.Now()
	report := Report{StartedAt: start}

	contracts, err := r.contractSvc.GetDueContracts(ctx, start, force)
	if err != nil {
		return report, err
	}
	if len(contracts) > r.cfg.BatchSize {
		contracts = contracts[:r.cfg.BatchSize]
	}

	outcomes := make([]Outcome, len(contracts))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.WorkerCount)
	for i := range contracts {
		i := i
		contract := contracts[i]
		g.Go(func() error {
			outcomes[i] = r.processContract(ctx, contract)
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = outcomes
	report.TotalAttempted = len(outcomes)
	for _, out := range outcomes {
		if out.Error == "" {
			report.TotalSucceeded++
			if out.AlreadyGenerated {
				m.IncContractOutcome(obsmetrics.ContractOutcomeAlreadyGenerated)
			} else {
				m.IncContractOutcome(obsmetrics.ContractOutcomeCreated)
			}
		} else {
			report.TotalFailed++
			m.IncContractOutcome(obsmetrics.ContractOutcomeFailed)
		}
	}

	marked, err := r.invoiceSvc.MarkOverdueInvoices(ctx)
	if err != nil {
		r.log.Warn("overdue reconciliation failed", zap.Error(err))
	} else {
		report.OverdueMarked = marked
		m.AddOverdueMarked(marked)
	}

	report.FinishedAt = r.clock.Now()
	m.ObserveRunDuration(time.Since(start))
	r.log.Info("auto billing run finished",
		zap.Int("attempted", report.TotalAttempted),
		zap.Int("succeeded", report.TotalSucceeded),
		zap.Int("failed", report.TotalFailed),
		zap.Int64("overdue_marked", report.OverdueMarked),
	)
	return report, nil
}

func (r *Runner) processContract(ctx context.Context, contract contractdomain.Contract) Outcome {
	out := Outcome{ContractID: contract.ID}
	if err := ctx.Err(); err != nil {
		out.Error = err.Error()
		return out
	}

	due := contract.NextBillingDate
	periodStart, periodEnd := scheduledomain.PeriodFor(contract.BillingCycle, due)

	inv, err := r.invoiceSvc.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ContractID:  contract.ID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		LivesCount:  contract.LivesCount,
		BaseAmount:  contract.MonthlyValue * int64(contract.BillingCycle.Months()),
		DueDate:     due,
	})
	switch {
	case errors.Is(err, invoicedomain.ErrDuplicatePeriod):
		// The loser of a concurrent run, or a re-run after a partially
		// failed pass. The invoice exists, so this is a success; if it was
		// never charged the charge is retried below.
		out.AlreadyGenerated = true
		existing, lookupErr := r.invoiceSvc.GetByPeriod(ctx, contract.ID, periodStart)
		if lookupErr != nil {
			out.Error = lookupErr.Error()
		} else {
			inv = existing
			out.InvoiceID = &inv.ID
			out.InvoiceNumber = inv.InvoiceNumber
		}
	case err != nil:
		out.Error = err.Error()
		return out
	default:
		out.InvoiceID = &inv.ID
		out.InvoiceNumber = inv.InvoiceNumber
	}

	m := obsmetrics.Billing()
	if out.Error == "" && inv.Status == invoicedomain.StatusPendente {
		method, err := r.methodSvc.GetByContract(ctx, contract.ID)
		switch {
		case errors.Is(err, billingmethoddomain.ErrMethodNotFound):
			// Manual collection by default; nothing to charge.
		case err != nil:
			out.Error = err.Error()
		case method.Method == billingmethoddomain.MethodRecurrent:
			outcome, chargeErr := r.methodSvc.ChargeRecurrent(ctx, contract.ID, inv.ID)
			if chargeErr != nil {
				out.Error = chargeErr.Error()
				if outcome.FellBack {
					m.IncCharge(obsmetrics.ChargeResultFallback)
				} else {
					m.IncCharge(obsmetrics.ChargeResultFailure)
				}
				r.log.Warn("contract charge failed",
					zap.String("contract_id", contract.ID.String()),
					zap.String("invoice_id", inv.ID.String()),
					zap.Int("attempt", outcome.AttemptNumber),
					zap.Error(chargeErr),
				)
			} else {
				out.Charged = true
				m.IncCharge(obsmetrics.ChargeResultSuccess)
			}
		}
	}

	// The billing date always advances once the invoice for the period
	// exists; only its payment status differs.
	next := scheduledomain.NextBillingDate(contract.BillingCycle, contract.BillingDay, due)
	if err := r.contractSvc.AdvanceNextBillingDate(ctx, contract.ID, next); err != nil {
		if out.Error == "" {
			out.Error = err.Error()
		}
		r.log.Error("failed to advance next billing date",
			zap.String("contract_id", contract.ID.String()),
			zap.Error(err),
		)
	}
	return out
}
