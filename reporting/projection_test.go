package reporting_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-ledger/ledger"
	"github.com/warp/staffing-ledger/ledger/store"
	"github.com/warp/staffing-ledger/reporting"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type world struct {
	ctx    context.Context
	store  *store.TxMemory
	svc    *ledger.Service
	proj   *reporting.Projection
	alice  ledger.WorkerID
	bob    ledger.WorkerID
	acme   ledger.CompanyID
	globex ledger.CompanyID
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	s := store.NewTxMemory()
	w := &world{ctx: ctx, store: s, svc: ledger.NewService(s), proj: reporting.NewProjection(s)}

	for _, p := range []struct {
		name string
		id   *ledger.WorkerID
	}{{"Alice", &w.alice}, {"Bob", &w.bob}} {
		worker := &ledger.Worker{Name: p.name}
		require.NoError(t, s.CreateWorker(ctx, worker))
		*p.id = worker.ID
	}
	for _, p := range []struct {
		name string
		id   *ledger.CompanyID
	}{{"Acme", &w.acme}, {"Globex", &w.globex}} {
		company := &ledger.Company{Name: p.name}
		require.NoError(t, s.CreateCompany(ctx, company))
		*p.id = company.ID
	}
	return w
}

func (w *world) allocate(t *testing.T, worker ledger.WorkerID, company ledger.CompanyID, date ledger.Date, kind ledger.PeriodKind, workerAmt, companyAmt string) ledger.Allocation {
	t.Helper()
	a, err := w.svc.CreateAllocation(w.ctx, ledger.NewAllocation{
		WorkerID:      worker,
		CompanyID:     company,
		Date:          date,
		PeriodKind:    kind,
		WorkerAmount:  decimal.RequireFromString(workerAmt),
		CompanyAmount: decimal.RequireFromString(companyAmt),
	})
	require.NoError(t, err)
	return *a
}

func d(month time.Month, day int) ledger.Date {
	return ledger.NewDate(2025, month, day)
}

func eq(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "%s: want %s, got %s", msg, want, got)
}

// =============================================================================
// TESTS
// =============================================================================

func TestSummary_EmptyPeriod_ZeroTotals(t *testing.T) {
	w := newWorld(t)

	s, err := w.proj.Summary(w.ctx, ledger.MonthPeriod(2025, time.March))

	require.NoError(t, err)
	assert.Zero(t, s.Allocations)
	assert.True(t, s.Revenue.IsZero())
	assert.True(t, s.Profit.IsZero())
	assert.Nil(t, s.Margin)

	rows, err := w.proj.WorkerRollup(w.ctx, ledger.MonthPeriod(2025, time.March))
	require.NoError(t, err)
	assert.Empty(t, rows)

	settlements, err := w.proj.SettlementSummary(w.ctx, ledger.MonthPeriod(2025, time.March))
	require.NoError(t, err)
	assert.Zero(t, settlements.Payments)
	assert.True(t, settlements.InvoiceTotal.IsZero())
}

func TestSummary_RevenueCostProfit(t *testing.T) {
	// GIVEN: Two March allocations and one in April
	// WHEN: Summarising March
	// THEN: Only March counts; profit = revenue - cost

	w := newWorld(t)
	a := w.allocate(t, w.alice, w.acme, d(time.March, 3), ledger.PeriodFullDay, "100", "150")
	w.allocate(t, w.bob, w.globex, d(time.March, 4), ledger.PeriodHalfDay, "40", "60")
	w.allocate(t, w.bob, w.globex, d(time.April, 1), ledger.PeriodFullDay, "999", "999")

	_, err := w.svc.CreateWorkerPayment(w.ctx, ledger.WorkerPaymentRequest{
		WorkerID:      w.alice,
		PaymentDate:   d(time.March, 31),
		Period:        ledger.MonthPeriod(2025, time.March),
		AllocationIDs: []ledger.AllocationID{a.ID},
	})
	require.NoError(t, err)

	s, err := w.proj.Summary(w.ctx, ledger.MonthPeriod(2025, time.March))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Allocations)
	eq(t, "1.5", s.Days, "days")
	eq(t, "210", s.Revenue, "revenue")
	eq(t, "140", s.Cost, "cost")
	eq(t, "70", s.Profit, "profit")
	require.NotNil(t, s.Margin)
	eq(t, "33.33", *s.Margin, "margin")
	eq(t, "100", s.WorkerPaid, "worker paid")
	eq(t, "40", s.WorkerPending, "worker pending")
	eq(t, "210", s.CompanyPending, "company pending")
}

func TestMonthOverMonth(t *testing.T) {
	w := newWorld(t)
	w.allocate(t, w.alice, w.acme, d(time.February, 10), ledger.PeriodFullDay, "100", "200")
	w.allocate(t, w.alice, w.acme, d(time.March, 10), ledger.PeriodFullDay, "100", "250")

	cmp, err := w.proj.MonthOverMonth(w.ctx, 2025, time.March)
	require.NoError(t, err)

	eq(t, "50", cmp.Revenue.Change, "revenue change")
	require.NotNil(t, cmp.Revenue.Percent)
	eq(t, "25", *cmp.Revenue.Percent, "revenue percent")
	eq(t, "0", cmp.Cost.Change, "cost change")
	eq(t, "50", cmp.Profit.Change, "profit change")
	eq(t, "50", *cmp.Profit.Percent, "profit percent")

	// January has nothing before it in the data set
	cmp, err = w.proj.MonthOverMonth(w.ctx, 2025, time.February)
	require.NoError(t, err)
	assert.Nil(t, cmp.Revenue.Percent)
	assert.Equal(t, ledger.MonthPeriod(2025, time.January), cmp.Previous.Period)
}

func TestRollups(t *testing.T) {
	w := newWorld(t)
	w.allocate(t, w.bob, w.acme, d(time.March, 3), ledger.PeriodFullDay, "100", "150")
	w.allocate(t, w.bob, w.globex, d(time.March, 4), ledger.PeriodHalfDay, "50", "80")
	a := w.allocate(t, w.alice, w.globex, d(time.March, 4), ledger.PeriodFullDay, "100", "300")

	_, err := w.svc.CreateCompanyInvoice(w.ctx, ledger.CompanyInvoiceRequest{
		CompanyID:     w.globex,
		InvoiceDate:   d(time.March, 31),
		DueDate:       d(time.April, 30),
		Period:        ledger.MonthPeriod(2025, time.March),
		AllocationIDs: []ledger.AllocationID{a.ID},
	})
	require.NoError(t, err)

	march := ledger.MonthPeriod(2025, time.March)

	workers, err := w.proj.WorkerRollup(w.ctx, march)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "Alice", workers[0].Name)
	assert.Equal(t, "Bob", workers[1].Name)
	assert.Equal(t, 2, workers[1].Allocations)
	eq(t, "1.5", workers[1].Days, "bob days")
	eq(t, "150", workers[1].Outstanding, "bob outstanding")

	companies, err := w.proj.CompanyRollup(w.ctx, march)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, "Globex", companies[0].Name, "largest billed first")
	eq(t, "380", companies[0].Billed, "globex billed")
	eq(t, "300", companies[0].Collected, "globex collected")
	eq(t, "80", companies[0].Outstanding, "globex outstanding")
	assert.NotEmpty(t, companies[0].Color)

	settlements, err := w.proj.SettlementSummary(w.ctx, march)
	require.NoError(t, err)
	assert.Equal(t, 1, settlements.Invoices)
	assert.Equal(t, 1, settlements.ByStatus[ledger.InvoicePending].Count)
	eq(t, "300", settlements.ByStatus[ledger.InvoicePending].Total, "pending invoices")
}

func TestCalendar(t *testing.T) {
	w := newWorld(t)
	w.allocate(t, w.bob, w.acme, d(time.February, 3), ledger.PeriodFullDay, "100", "150")
	w.allocate(t, w.alice, w.acme, d(time.February, 3), ledger.PeriodHalfDay, "50", "75")

	cal, err := w.proj.Calendar(w.ctx, 2025, time.February)
	require.NoError(t, err)

	require.Len(t, cal.Days, 28)
	day := cal.Days[2]
	assert.Equal(t, d(time.February, 3), day.Date)
	require.Len(t, day.Entries, 2)
	assert.Equal(t, "Alice", day.Entries[0].WorkerName)
	assert.Equal(t, "Acme", day.Entries[0].CompanyName)
	assert.Empty(t, cal.Days[0].Entries)

	require.Len(t, cal.Legend, 1)
	assert.Equal(t, w.acme, cal.Legend[0].CompanyID)
	assert.Equal(t, day.Entries[0].Color, cal.Legend[0].Color)

	_, err = w.proj.Calendar(w.ctx, 2025, 13)
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestCompanyColors_StableByID(t *testing.T) {
	a := reporting.CompanyColors([]ledger.Company{{ID: 3}, {ID: 1}, {ID: 2}})
	b := reporting.CompanyColors([]ledger.Company{{ID: 1}, {ID: 2}, {ID: 3}})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a[1], a[2])
}

func TestSummary_InvertedPeriod(t *testing.T) {
	w := newWorld(t)
	_, err := w.proj.Summary(w.ctx, ledger.Period{Start: d(time.March, 31), End: d(time.March, 1)})
	assert.ErrorIs(t, err, ledger.ErrInvalidDateRange)
}
