/*
handlers_test.go - HTTP tests against the full router

Tests for:
- Reference data and allocation CRUD
- Error kind to status mapping
- Settlement endpoints and the invoice status machine
- Reports, audit, health and metrics
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-ledger/ledger"
	"github.com/warp/staffing-ledger/observability"
	"github.com/warp/staffing-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.April, 15, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	svc := ledger.NewService(store,
		ledger.WithClock(func() time.Time { return testNow }),
		ledger.WithRecorder(metrics),
	)
	h := NewHandler(store, svc, nil)
	h.now = func() time.Time { return testNow }

	return &testServer{
		t:       t,
		handler: h,
		router:  NewRouter(h, RouterOptions{Metrics: metrics, Gatherer: reg, Scenarios: true}),
	}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// call performs the request, asserts the status and decodes the body into out.
func (s *testServer) call(method, path string, body any, wantStatus int, out any) {
	s.t.Helper()
	rec := s.do(method, path, body)
	require.Equal(s.t, wantStatus, rec.Code, "%s %s: %s", method, path, rec.Body.String())
	if out != nil {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func (s *testServer) errorKind(method, path string, body any, wantStatus int) string {
	s.t.Helper()
	var resp ErrorResponse
	s.call(method, path, body, wantStatus, &resp)
	return resp.Kind
}

func (s *testServer) worker(name string) ledger.WorkerID {
	var dto WorkerDTO
	s.call("POST", "/api/workers", CreateWorkerRequest{Name: name}, http.StatusCreated, &dto)
	return dto.ID
}

func (s *testServer) company(name string) ledger.CompanyID {
	var dto CompanyDTO
	s.call("POST", "/api/companies", CreateCompanyRequest{Name: name}, http.StatusCreated, &dto)
	return dto.ID
}

func (s *testServer) allocate(w ledger.WorkerID, c ledger.CompanyID, date string) AllocationDTO {
	var dto AllocationDTO
	s.call("POST", "/api/allocations", map[string]any{
		"worker_id":      w,
		"company_id":     c,
		"date":           date,
		"period_kind":    "full_day",
		"worker_amount":  "100.00",
		"company_amount": "150.00",
	}, http.StatusCreated, &dto)
	return dto
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func TestWorkers_CreateListDeactivate(t *testing.T) {
	s := newTestServer(t)
	id := s.worker("Alice")

	var list []WorkerDTO
	s.call("GET", "/api/workers", nil, http.StatusOK, &list)
	require.Len(t, list, 1)
	assert.True(t, list[0].Active)

	s.call("DELETE", "/api/workers/1", nil, http.StatusNoContent, nil)

	var got WorkerDTO
	s.call("GET", "/api/workers/1", nil, http.StatusOK, &got)
	assert.Equal(t, id, got.ID)
	assert.False(t, got.Active)

	assert.Equal(t, "not_found", s.errorKind("GET", "/api/workers/99", nil, http.StatusNotFound))
	assert.Equal(t, "invalid_input", s.errorKind("GET", "/api/workers/abc", nil, http.StatusBadRequest))
	assert.Equal(t, "invalid_input", s.errorKind("POST", "/api/workers", CreateWorkerRequest{}, http.StatusBadRequest))
}

func TestCompanies_HaveColors(t *testing.T) {
	s := newTestServer(t)
	s.company("Acme")
	s.company("Globex")

	var list []CompanyDTO
	s.call("GET", "/api/companies", nil, http.StatusOK, &list)
	require.Len(t, list, 2)
	assert.NotEmpty(t, list[0].Color)
	assert.NotEqual(t, list[0].Color, list[1].Color)
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func TestAllocations_CreateConflictAndInactive(t *testing.T) {
	// GIVEN: A worker allocated on a date
	// WHEN: Allocating the same worker on the same date again
	// THEN: 409 conflict naming the existing allocation

	s := newTestServer(t)
	w := s.worker("Alice")
	c := s.company("Acme")
	first := s.allocate(w, c, "2025-03-03")
	assert.Equal(t, ledger.PaymentPending, first.WorkerPaymentStatus)
	assert.Equal(t, "150", first.CompanyAmount.String())

	var resp ErrorResponse
	s.call("POST", "/api/allocations", map[string]any{
		"worker_id": w, "company_id": c, "date": "2025-03-03", "period_kind": "half_day",
		"worker_amount": "50", "company_amount": "75",
	}, http.StatusConflict, &resp)
	assert.Equal(t, "conflict", resp.Kind)
	details := resp.Details.(map[string]any)
	assert.EqualValues(t, first.ID, details["existing_allocation_id"])

	s.call("DELETE", "/api/companies/1", nil, http.StatusNoContent, nil)
	kind := s.errorKind("POST", "/api/allocations", map[string]any{
		"worker_id": w, "company_id": c, "date": "2025-03-04", "period_kind": "full_day",
		"worker_amount": "100", "company_amount": "150",
	}, http.StatusUnprocessableEntity)
	assert.Equal(t, "inactive", kind)
}

func TestAllocations_Validation(t *testing.T) {
	s := newTestServer(t)
	w := s.worker("Alice")
	c := s.company("Acme")

	cases := []struct {
		name   string
		body   map[string]any
		status int
		kind   string
	}{
		{"negative amount", map[string]any{"worker_id": w, "company_id": c, "date": "2025-03-03", "period_kind": "full_day", "worker_amount": "-1", "company_amount": "1"}, http.StatusBadRequest, "invalid_amount"},
		{"bad period kind", map[string]any{"worker_id": w, "company_id": c, "date": "2025-03-03", "period_kind": "night", "worker_amount": "1", "company_amount": "1"}, http.StatusBadRequest, "invalid_input"},
		{"unknown worker", map[string]any{"worker_id": 77, "company_id": c, "date": "2025-03-03", "period_kind": "full_day", "worker_amount": "1", "company_amount": "1"}, http.StatusNotFound, "not_found"},
		{"malformed date", map[string]any{"worker_id": w, "company_id": c, "date": "03/03/2025"}, http.StatusBadRequest, "invalid_input"},
		{"unknown field", map[string]any{"worker": w}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, s.errorKind("POST", "/api/allocations", tc.body, tc.status))
		})
	}
}

func TestAllocations_UpdateListDelete(t *testing.T) {
	s := newTestServer(t)
	w := s.worker("Alice")
	c := s.company("Acme")
	a := s.allocate(w, c, "2025-03-03")
	s.allocate(w, c, "2025-03-04")
	s.allocate(w, c, "2025-04-01")

	var updated AllocationDTO
	s.call("PUT", "/api/allocations/1", map[string]any{"notes": "late start", "company_amount": "175.50"}, http.StatusOK, &updated)
	assert.Equal(t, "late start", updated.Notes)
	assert.Equal(t, "175.5", updated.CompanyAmount.String())
	assert.Equal(t, a.Date, updated.Date)

	var page AllocationListDTO
	s.call("GET", "/api/allocations?from=2025-03-01&to=2025-03-31&sort=date&order=desc&limit=1", nil, http.StatusOK, &page)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "2025-03-04", page.Items[0].Date.String())

	assert.Equal(t, "invalid_input", s.errorKind("GET", "/api/allocations?sort=salary", nil, http.StatusBadRequest))
	assert.Equal(t, "invalid_input", s.errorKind("GET", "/api/allocations?worker_id=x", nil, http.StatusBadRequest))

	s.call("DELETE", "/api/allocations/1", nil, http.StatusNoContent, nil)
	s.call("GET", "/api/allocations/1", nil, http.StatusNotFound, nil)
}

func TestAllocations_DirectStatusUpdate(t *testing.T) {
	s := newTestServer(t)
	a := s.allocate(s.worker("Alice"), s.company("Acme"), "2025-03-03")

	var got AllocationDTO
	s.call("PUT", "/api/allocations/1/worker-payment-status", PaymentStatusRequest{Status: ledger.PaymentPaid}, http.StatusOK, &got)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, ledger.PaymentPaid, got.WorkerPaymentStatus)
	assert.Equal(t, ledger.PaymentPending, got.CompanyPaymentStatus)

	assert.Equal(t, "invalid_status", s.errorKind("PUT", "/api/allocations/1/company-payment-status",
		PaymentStatusRequest{Status: "maybe"}, http.StatusBadRequest))
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func TestPayments_CreateAndReject(t *testing.T) {
	// GIVEN: Two allocations for Alice and one for Bob
	// WHEN: Paying Alice, then paying Alice again, then paying Bob's as Alice's
	// THEN: 201 with the snapshot total, then 409 already_settled, then 422 ownership

	s := newTestServer(t)
	alice := s.worker("Alice")
	bob := s.worker("Bob")
	c := s.company("Acme")
	a1 := s.allocate(alice, c, "2025-03-03")
	a2 := s.allocate(alice, c, "2025-03-04")
	b1 := s.allocate(bob, c, "2025-03-03")

	req := CreateWorkerPaymentRequest{
		WorkerID:      alice,
		PaymentDate:   ledger.NewDate(2025, time.March, 31),
		PeriodStart:   ledger.NewDate(2025, time.March, 1),
		PeriodEnd:     ledger.NewDate(2025, time.March, 31),
		Method:        "bank_transfer",
		AllocationIDs: []ledger.AllocationID{a1.ID, a2.ID},
	}
	var payment WorkerPaymentDTO
	s.call("POST", "/api/payments", req, http.StatusCreated, &payment)
	assert.Equal(t, "200", payment.Total.String())
	assert.Len(t, payment.Details, 2)

	var got AllocationDTO
	s.call("GET", "/api/allocations/1", nil, http.StatusOK, &got)
	assert.Equal(t, ledger.PaymentPaid, got.WorkerPaymentStatus)

	assert.Equal(t, "already_settled", s.errorKind("POST", "/api/payments", req, http.StatusConflict))

	req.AllocationIDs = []ledger.AllocationID{b1.ID}
	assert.Equal(t, "ownership_mismatch", s.errorKind("POST", "/api/payments", req, http.StatusUnprocessableEntity))

	var list []WorkerPaymentDTO
	s.call("GET", "/api/payments?worker_id=1", nil, http.StatusOK, &list)
	require.Len(t, list, 1)
	s.call("GET", "/api/payments/1", nil, http.StatusOK, &payment)
	assert.Equal(t, "bank_transfer", payment.Method)

	// referenced allocations cannot be deleted
	assert.Equal(t, "already_settled", s.errorKind("DELETE", "/api/allocations/1", nil, http.StatusConflict))
}

func TestInvoices_StatusMachine(t *testing.T) {
	s := newTestServer(t)
	w := s.worker("Alice")
	c := s.company("Acme")
	a := s.allocate(w, c, "2025-03-03")

	var inv CompanyInvoiceDTO
	s.call("POST", "/api/invoices", CreateCompanyInvoiceRequest{
		CompanyID:     c,
		InvoiceDate:   ledger.NewDate(2025, time.March, 31),
		DueDate:       ledger.NewDate(2025, time.April, 30),
		PeriodStart:   ledger.NewDate(2025, time.March, 1),
		PeriodEnd:     ledger.NewDate(2025, time.March, 31),
		AllocationIDs: []ledger.AllocationID{a.ID},
	}, http.StatusCreated, &inv)
	assert.Equal(t, ledger.InvoicePending, inv.Status)
	assert.Equal(t, "150", inv.Total.String())

	method := "cheque"
	s.call("PUT", "/api/invoices/1/status", InvoiceStatusRequest{Status: ledger.InvoicePartial, Method: &method}, http.StatusOK, &inv)
	assert.Equal(t, ledger.InvoicePartial, inv.Status)
	assert.Equal(t, "cheque", inv.Method)

	s.call("PUT", "/api/invoices/1/status", InvoiceStatusRequest{Status: ledger.InvoicePaid}, http.StatusOK, &inv)
	assert.Equal(t, "invalid_status", s.errorKind("PUT", "/api/invoices/1/status",
		InvoiceStatusRequest{Status: ledger.InvoicePending}, http.StatusBadRequest))

	var list []CompanyInvoiceDTO
	s.call("GET", "/api/invoices?status=paid", nil, http.StatusOK, &list)
	assert.Len(t, list, 1)
	s.call("GET", "/api/invoices?status=pending", nil, http.StatusOK, &list)
	assert.Empty(t, list)

	assert.Equal(t, "invalid_date_range", s.errorKind("POST", "/api/invoices", CreateCompanyInvoiceRequest{
		CompanyID:     c,
		InvoiceDate:   ledger.NewDate(2025, time.March, 31),
		DueDate:       ledger.NewDate(2025, time.March, 1),
		PeriodStart:   ledger.NewDate(2025, time.March, 1),
		PeriodEnd:     ledger.NewDate(2025, time.March, 31),
		AllocationIDs: []ledger.AllocationID{a.ID},
	}, http.StatusBadRequest))
}

// =============================================================================
// REPORTS, AUDIT, HEALTH, METRICS
// =============================================================================

func TestReports(t *testing.T) {
	s := newTestServer(t)
	w := s.worker("Alice")
	c := s.company("Acme")
	s.allocate(w, c, "2025-03-03")
	s.allocate(w, c, "2025-04-01")

	var summary map[string]any
	s.call("GET", "/api/reports/summary?year=2025&month=3", nil, http.StatusOK, &summary)
	assert.Equal(t, "150", summary["revenue"])
	assert.Equal(t, "50", summary["profit"])

	// defaults to the current month (April)
	s.call("GET", "/api/reports/summary", nil, http.StatusOK, &summary)
	assert.EqualValues(t, 1, summary["allocations"])

	var cal map[string]any
	s.call("GET", "/api/reports/calendar?year=2025&month=3", nil, http.StatusOK, &cal)
	assert.Len(t, cal["days"], 31)

	var cmp map[string]any
	s.call("GET", "/api/reports/month-over-month?year=2025&month=4", nil, http.StatusOK, &cmp)
	assert.Equal(t, "0", cmp["revenue"].(map[string]any)["change"])

	s.call("GET", "/api/reports/workers?from=2025-03-01&to=2025-04-30", nil, http.StatusOK, nil)
	s.call("GET", "/api/reports/companies?year=2025&month=3", nil, http.StatusOK, nil)
	s.call("GET", "/api/reports/settlements?year=2025&month=3", nil, http.StatusOK, nil)

	assert.Equal(t, "invalid_date_range", s.errorKind("GET", "/api/reports/summary?from=2025-03-01", nil, http.StatusBadRequest))
	assert.Equal(t, "invalid_input", s.errorKind("GET", "/api/reports/calendar?year=2025&month=13", nil, http.StatusBadRequest))
}

func TestAudit(t *testing.T) {
	s := newTestServer(t)
	s.allocate(s.worker("Alice"), s.company("Acme"), "2025-03-03")
	s.call("PUT", "/api/allocations/1", map[string]any{"notes": "x"}, http.StatusOK, nil)

	var entries []AuditEntryDTO
	s.call("GET", "/api/audit?subject_type=allocation&subject_id=1", nil, http.StatusOK, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.AuditAllocationUpdated, entries[0].Action)

	s.call("GET", "/api/audit?action=allocation_created&limit=5", nil, http.StatusOK, &entries)
	assert.Len(t, entries, 1)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	s.call("GET", "/healthz", nil, http.StatusOK, nil)
	s.allocate(s.worker("Alice"), s.company("Acme"), "2025-03-03")

	rec := s.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ledger_allocation_writes_total{op="create"} 1`), body)
	assert.Contains(t, body, "ledger_http_request_duration_seconds")
}
