package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/warp/staffing-ledger/ledger"
	"github.com/warp/staffing-ledger/ledger/store"
)

func TestMetrics_RecordsLedgerOutcomes(t *testing.T) {
	// GIVEN: A service wired to a fresh registry
	// WHEN: Creating, conflicting and settling allocations
	// THEN: Counters reflect each outcome

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := store.NewTxMemory()
	svc := ledger.NewService(s, ledger.WithRecorder(m))

	w := &ledger.Worker{Name: "Alice"}
	require.NoError(t, s.CreateWorker(ctx, w))
	c := &ledger.Company{Name: "Acme"}
	require.NoError(t, s.CreateCompany(ctx, c))

	newAlloc := ledger.NewAllocation{
		WorkerID:      w.ID,
		CompanyID:     c.ID,
		Date:          ledger.NewDate(2025, time.March, 3),
		PeriodKind:    ledger.PeriodFullDay,
		WorkerAmount:  decimal.NewFromInt(100),
		CompanyAmount: decimal.NewFromInt(150),
	}
	a, err := svc.CreateAllocation(ctx, newAlloc)
	require.NoError(t, err)
	_, err = svc.CreateAllocation(ctx, newAlloc)
	require.ErrorIs(t, err, ledger.ErrConflict)

	_, err = svc.CreateCompanyInvoice(ctx, ledger.CompanyInvoiceRequest{
		CompanyID:     c.ID,
		InvoiceDate:   ledger.NewDate(2025, time.March, 31),
		DueDate:       ledger.NewDate(2025, time.April, 30),
		Period:        ledger.MonthPeriod(2025, time.March),
		AllocationIDs: []ledger.AllocationID{a.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocationWrites.WithLabelValues("create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("create_allocation", string(ledger.KindConflict))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("company")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settledAllocations.WithLabelValues("company")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.settledAmount.WithLabelValues("company")))
	assert.Zero(t, testutil.ToFloat64(m.settlements.WithLabelValues("worker")))
}

func TestMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("GET", "/api/allocations", 200, 20*time.Millisecond)
	m.ObserveRequest("GET", "/api/allocations", 200, 30*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "ledger_http_request_duration_seconds"))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveRequest("GET", "/", 200, time.Millisecond) })
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
