package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-ledger/ledger"
	"github.com/warp/staffing-ledger/ledger/store"
	"github.com/warp/staffing-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type backend interface {
	ledger.TxStore
	ledger.Directory
}

var fixedNow = time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	store backend
	svc   *ledger.Service
}

// eachStore runs fn once per store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Helper()
	backends := map[string]func(t *testing.T) backend{
		"memory": func(t *testing.T) backend { return store.NewTxMemory() },
		"sqlite": func(t *testing.T) backend {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, newFixture(t, open(t)))
		})
	}
}

func newFixture(t *testing.T, b backend, opts ...ledger.Option) *fixture {
	t.Helper()
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{
		ctx:   context.Background(),
		store: b,
		svc:   ledger.NewService(b, opts...),
	}
}

func (f *fixture) worker(t *testing.T, name string) ledger.WorkerID {
	t.Helper()
	w := &ledger.Worker{Name: name, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, f.store.CreateWorker(f.ctx, w))
	return w.ID
}

func (f *fixture) company(t *testing.T, name string) ledger.CompanyID {
	t.Helper()
	c := &ledger.Company{Name: name, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, f.store.CreateCompany(f.ctx, c))
	return c.ID
}

func (f *fixture) serviceType(t *testing.T, name string) ledger.ServiceTypeID {
	t.Helper()
	st := &ledger.ServiceType{Name: name, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, f.store.CreateServiceType(f.ctx, st))
	return st.ID
}

// allocate creates an allocation and fails the test on error.
func (f *fixture) allocate(t *testing.T, w ledger.WorkerID, c ledger.CompanyID, date ledger.Date, workerAmt, companyAmt string) ledger.Allocation {
	t.Helper()
	a, err := f.svc.CreateAllocation(f.ctx, newAllocation(w, c, date, workerAmt, companyAmt))
	require.NoError(t, err)
	return *a
}

func newAllocation(w ledger.WorkerID, c ledger.CompanyID, date ledger.Date, workerAmt, companyAmt string) ledger.NewAllocation {
	return ledger.NewAllocation{
		WorkerID:      w,
		CompanyID:     c,
		Date:          date,
		PeriodKind:    ledger.PeriodFullDay,
		WorkerAmount:  dec(workerAmt),
		CompanyAmount: dec(companyAmt),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func march(day int) ledger.Date {
	return ledger.NewDate(2025, time.March, day)
}

func marchPeriod() ledger.Period {
	return ledger.MonthPeriod(2025, time.March)
}

func ids(list ...ledger.Allocation) []ledger.AllocationID {
	out := make([]ledger.AllocationID, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func paymentRequest(w ledger.WorkerID, allocs ...ledger.Allocation) ledger.WorkerPaymentRequest {
	return ledger.WorkerPaymentRequest{
		WorkerID:      w,
		PaymentDate:   march(31),
		Period:        marchPeriod(),
		Method:        "bank_transfer",
		AllocationIDs: ids(allocs...),
	}
}

func invoiceRequest(c ledger.CompanyID, allocs ...ledger.Allocation) ledger.CompanyInvoiceRequest {
	return ledger.CompanyInvoiceRequest{
		CompanyID:     c,
		InvoiceDate:   march(31),
		DueDate:       ledger.NewDate(2025, time.April, 30),
		Period:        marchPeriod(),
		AllocationIDs: ids(allocs...),
	}
}

func (f *fixture) get(t *testing.T, id ledger.AllocationID) ledger.Allocation {
	t.Helper()
	a, err := f.svc.GetAllocation(f.ctx, id)
	require.NoError(t, err)
	return *a
}

func strPtr(s string) *string { return &s }
