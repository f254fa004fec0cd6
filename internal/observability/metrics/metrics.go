package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ContractOutcomeCreated          = "created"
	ContractOutcomeAlreadyGenerated = "already_generated"
	ContractOutcomeFailed           = "failed"
)

const (
	ChargeResultSuccess  = "success"
	ChargeResultFailure  = "failure"
	ChargeResultFallback = "fallback"
)

// BillingMetrics captures batch runner and gateway health signals.
type BillingMetrics struct {
	runsTotal          prometheus.Counter
	runDuration        prometheus.Observer
	contractsProcessed *prometheus.CounterVec
	chargesTotal       *prometheus.CounterVec
	overdueMarked      prometheus.Counter
	gatewayRequests    *prometheus.CounterVec
	gatewayDuration    *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	runsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_runner_runs_total",
		Help: "Batch billing runs started.",
	})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_runner_run_duration_seconds",
		Help:    "Batch billing run latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	contractsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_runner_contracts_total",
		Help: "Contracts processed per run by outcome.",
	}, []string{"outcome"})
	chargesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charges_total",
		Help: "Recurrent charge attempts by result.",
	}, []string{"result"})
	overdueMarked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_invoices_marked_overdue_total",
		Help: "Invoices persisted as VENCIDA by the reconciliation pass.",
	})
	gatewayRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_gateway_requests_total",
		Help: "Gateway calls by operation and result.",
	}, []string{"operation", "result"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_gateway_request_duration_seconds",
		Help:    "Gateway call latency by operation.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"operation"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})

	registerer.MustRegister(
		runsTotal,
		runDuration,
		contractsProcessed,
		chargesTotal,
		overdueMarked,
		gatewayRequests,
		gatewayDuration,
		httpRequests,
		httpDuration,
	)

	return &BillingMetrics{
		runsTotal:          runsTotal,
		runDuration:        runDuration,
		contractsProcessed: contractsProcessed,
		chargesTotal:       chargesTotal,
		overdueMarked:      overdueMarked,
		gatewayRequests:    gatewayRequests,
		gatewayDuration:    gatewayDuration,
		httpRequests:       httpRequests,
		httpDuration:       httpDuration,
	}
}

// IncRun increments the run counter.
func (m *BillingMetrics) IncRun() {
	if m == nil || m.runsTotal == nil {
		return
	}
	m.runsTotal.Inc()
}

// ObserveRunDuration records the latency of one batch run.
func (m *BillingMetrics) ObserveRunDuration(d time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// IncContractOutcome counts one processed contract by outcome.
func (m *BillingMetrics) IncContractOutcome(outcome string) {
	if m == nil || m.contractsProcessed == nil {
		return
	}
	m.contractsProcessed.WithLabelValues(outcome).Inc()
}

// IncCharge counts one recurrent charge attempt by result.
func (m *BillingMetrics) IncCharge(result string) {
	if m == nil || m.chargesTotal == nil {
		return
	}
	m.chargesTotal.WithLabelValues(result).Inc()
}

// AddOverdueMarked counts invoices persisted as overdue.
func (m *BillingMetrics) AddOverdueMarked(count int64) {
	if m == nil || m.overdueMarked == nil || count <= 0 {
		return
	}
	m.overdueMarked.Add(float64(count))
}

// ObserveGatewayCall records one gateway call with its result.
func (m *BillingMetrics) ObserveGatewayCall(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if m.gatewayRequests != nil {
		m.gatewayRequests.WithLabelValues(operation, result).Inc()
	}
	if m.gatewayDuration != nil {
		m.gatewayDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// ObserveHTTPRequest records one handled HTTP request.
func (m *BillingMetrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unmatched"
	}
	if m.httpRequests != nil {
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	}
	if m.httpDuration != nil {
		m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}
