package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/warp/staffing-ledger/ledger"
)

// Metrics exposes Prometheus instruments for the ledger and its HTTP surface.
// It implements ledger.Recorder.
type Metrics struct {
	allocationWrites   *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	settledAllocations *prometheus.CounterVec
	settledAmount      *prometheus.CounterVec
	invoiceTransitions *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var _ ledger.Recorder = (*Metrics)(nil)

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		allocationWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_allocation_writes_total",
			Help: "Allocation writes by operation.",
		}, []string{"op"}),

		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_settlements_total",
			Help: "Worker payments and company invoices created, by side.",
		}, []string{"side"}),

		settledAllocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_settled_allocations_total",
			Help: "Allocations covered by settlements, by side.",
		}, []string{"side"}),

		settledAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_settled_amount_total",
			Help: "Sum of settlement totals, by side.",
		}, []string{"side"}),

		invoiceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_invoice_transitions_total",
			Help: "Invoice status changes.",
		}, []string{"from", "to"}),

		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_rejected_operations_total",
			Help: "Rejected ledger operations by operation and error kind.",
		}, []string{"op", "kind"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.allocationWrites,
		m.settlements,
		m.settledAllocations,
		m.settledAmount,
		m.invoiceTransitions,
		m.rejections,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) AllocationWritten(op string) {
	m.allocationWrites.WithLabelValues(op).Inc()
}

func (m *Metrics) SettlementCreated(side ledger.Side, allocations int, total decimal.Decimal) {
	m.settlements.WithLabelValues(string(side)).Inc()
	m.settledAllocations.WithLabelValues(string(side)).Add(float64(allocations))
	m.settledAmount.WithLabelValues(string(side)).Add(total.InexactFloat64())
}

func (m *Metrics) InvoiceTransition(from, to ledger.InvoiceStatus) {
	m.invoiceTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) OperationRejected(op string, kind ledger.Kind) {
	m.rejections.WithLabelValues(op, string(kind)).Inc()
}

// ObserveRequest records one HTTP request. route is the matched pattern,
// not the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
