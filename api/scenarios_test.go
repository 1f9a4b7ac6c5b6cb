/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:

	Each scenario is loaded through the HTTP API and the resulting ledger
	state is checked: allocations per weekday, settlements, invoice statuses.

testNow is 2025-04-15, so "last month" is March 2025: 21 weekdays, four of
them Fridays.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-ledger/ledger"
)

func TestScenario_List(t *testing.T) {
	s := newTestServer(t)

	var list []ScenarioDTO
	s.call("GET", "/api/scenarios", nil, http.StatusOK, &list)
	require.Len(t, list, 3)

	var current *ScenarioDTO
	s.call("GET", "/api/scenarios/current", nil, http.StatusOK, &current)
	assert.Nil(t, current)
}

func TestScenario_BasicMonth(t *testing.T) {
	// GIVEN: The basic-month scenario
	// WHEN: Loading it in April 2025
	// THEN: Three workers on each of April's 22 weekdays, nothing settled

	s := newTestServer(t)
	s.call("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "basic-month"}, http.StatusOK, nil)

	var page AllocationListDTO
	s.call("GET", "/api/allocations?from=2025-04-01&to=2025-04-30", nil, http.StatusOK, &page)
	assert.Equal(t, 66, page.Total)

	s.call("GET", "/api/allocations?worker_payment_status=paid", nil, http.StatusOK, &page)
	assert.Equal(t, 0, page.Total)

	var current ScenarioDTO
	s.call("GET", "/api/scenarios/current", nil, http.StatusOK, &current)
	assert.Equal(t, "basic-month", current.ID)
}

func TestScenario_PartiallySettled(t *testing.T) {
	// GIVEN: The partially-settled scenario
	// WHEN: Loading it
	// THEN: Alice is paid for March (17 full days, 4 half days) and one invoice is pending

	s := newTestServer(t)
	s.call("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "partially-settled"}, http.StatusOK, nil)

	var payments []WorkerPaymentDTO
	s.call("GET", "/api/payments", nil, http.StatusOK, &payments)
	require.Len(t, payments, 1)
	assert.Equal(t, "2280", payments[0].Total.String())
	assert.Len(t, payments[0].Details, 21)
	assert.Equal(t, "PAY-202503-1", payments[0].ReferenceNumber)

	var page AllocationListDTO
	s.call("GET", "/api/allocations?worker_id=1&worker_payment_status=pending", nil, http.StatusOK, &page)
	assert.Equal(t, 0, page.Total)

	var invoices []CompanyInvoiceDTO
	s.call("GET", "/api/invoices", nil, http.StatusOK, &invoices)
	require.Len(t, invoices, 1)
	assert.Equal(t, ledger.InvoicePending, invoices[0].Status)
	assert.Equal(t, "2025-04-30", invoices[0].DueDate.String())
}

func TestScenario_InvoiceLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.call("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "invoice-lifecycle"}, http.StatusOK, nil)

	for _, status := range []ledger.InvoiceStatus{ledger.InvoicePending, ledger.InvoicePartial, ledger.InvoicePaid} {
		var invoices []CompanyInvoiceDTO
		s.call("GET", "/api/invoices?status="+string(status), nil, http.StatusOK, &invoices)
		assert.Len(t, invoices, 1, "status %s", status)
	}

	// invoicing marks every allocation paid; the reopened one stays pending
	// under the partial invoice and is flipped back by the paid one
	var page AllocationListDTO
	s.call("GET", "/api/allocations?company_payment_status=paid", nil, http.StatusOK, &page)
	assert.Equal(t, 62, page.Total)
	s.call("GET", "/api/allocations?company_id=1&company_payment_status=paid", nil, http.StatusOK, &page)
	assert.Equal(t, 21, page.Total)
	s.call("GET", "/api/allocations?company_id=2&company_payment_status=pending", nil, http.StatusOK, &page)
	assert.Equal(t, 1, page.Total)
	s.call("GET", "/api/allocations?company_id=3&company_payment_status=paid", nil, http.StatusOK, &page)
	assert.Equal(t, 21, page.Total)
}

func TestScenario_ReloadReplacesData(t *testing.T) {
	s := newTestServer(t)
	s.call("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "partially-settled"}, http.StatusOK, nil)
	s.call("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "partially-settled"}, http.StatusOK, nil)

	var workers []WorkerDTO
	s.call("GET", "/api/workers", nil, http.StatusOK, &workers)
	assert.Len(t, workers, 3)
	assert.Equal(t, ledger.WorkerID(1), workers[0].ID)
}

func TestScenario_UnknownAndReset(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, "invalid_input", s.errorKind("POST", "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "nope"}, http.StatusBadRequest))

	s.call("POST", "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "basic-month"}, http.StatusOK, nil)
	s.call("POST", "/api/scenarios/reset", nil, http.StatusOK, nil)

	var page AllocationListDTO
	s.call("GET", "/api/allocations", nil, http.StatusOK, &page)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Items)

	var current *ScenarioDTO
	s.call("GET", "/api/scenarios/current", nil, http.StatusOK, &current)
	assert.Nil(t, current)
}

func TestScenarios_NotMountedWhenDisabled(t *testing.T) {
	s := newTestServer(t)
	s.router = NewRouter(s.handler, RouterOptions{})
	s.call("GET", "/api/scenarios", nil, http.StatusNotFound, nil)
	s.call("GET", "/metrics", nil, http.StatusNotFound, nil)
}
