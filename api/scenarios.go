/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Populates the database with realistic staffing data. Every scenario is
	built through the ledger service, so it obeys the same rules as API
	traffic.

AVAILABLE SCENARIOS:

	basic-month:       Three workers across three companies, this month
	partially-settled: Last month, one worker paid and one company invoiced
	invoice-lifecycle: Last month, one invoice per status, one allocation
	                   reopened on the partial and paid invoices

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create workers, companies and service types
 3. Allocate every weekday of the month
 4. Optionally create payments and invoices, and move invoice statuses

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "partially-settled"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and helpers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/staffing-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-month",
		Name:        "Basic Month",
		Description: "Three workers rotating across three companies for the current month, nothing settled",
	},
	{
		ID:          "partially-settled",
		Name:        "Partially Settled",
		Description: "Last month with one worker paid in full and one company invoiced",
	},
	{
		ID:          "invoice-lifecycle",
		Name:        "Invoice Lifecycle",
		Description: "Last month invoiced per company: one pending, one partial with a reopened allocation, one paid",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	loaders := map[string]func(context.Context) error{
		"basic-month":       h.loadBasicMonthScenario,
		"partially-settled": h.loadPartiallySettledScenario,
		"invoice-lifecycle": h.loadInvoiceLifecycleScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Store.Reset(ctx); err != nil {
		h.writeLedgerError(w, &ledger.StorageError{Op: "reset", Err: err})
		return
	}
	if err := load(ctx); err != nil {
		h.log.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		h.writeLedgerError(w, err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeLedgerError(w, &ledger.StorageError{Op: "reset", Err: err})
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadBasicMonthScenario(ctx context.Context) error {
	today := ledger.DateOf(h.now())
	dir, err := h.seedDirectory(ctx)
	if err != nil {
		return err
	}
	_, err = h.seedMonth(ctx, dir, ledger.MonthPeriod(today.Year(), today.Month()))
	return err
}

func (h *Handler) loadPartiallySettledScenario(ctx context.Context) error {
	period := h.lastMonth()
	dir, err := h.seedDirectory(ctx)
	if err != nil {
		return err
	}
	allocs, err := h.seedMonth(ctx, dir, period)
	if err != nil {
		return err
	}

	// First worker is paid for the whole month
	worker := dir.workers[0]
	if _, err := h.Service.CreateWorkerPayment(ctx, ledger.WorkerPaymentRequest{
		WorkerID:        worker,
		PaymentDate:     period.End,
		Period:          period,
		Method:          "bank_transfer",
		ReferenceNumber: fmt.Sprintf("PAY-%s-%d", period.Start.Time.Format("200601"), worker),
		AllocationIDs:   selectIDs(allocs, func(a ledger.Allocation) bool { return a.WorkerID == worker }),
	}); err != nil {
		return fmt.Errorf("worker payment: %w", err)
	}

	// First company is invoiced, still pending
	company := dir.companies[0]
	if _, err := h.Service.CreateCompanyInvoice(ctx, ledger.CompanyInvoiceRequest{
		CompanyID:     company,
		InvoiceDate:   period.End,
		DueDate:       period.End.AddDays(30),
		Period:        period,
		AllocationIDs: selectIDs(allocs, func(a ledger.Allocation) bool { return a.CompanyID == company }),
	}); err != nil {
		return fmt.Errorf("company invoice: %w", err)
	}
	return nil
}

func (h *Handler) loadInvoiceLifecycleScenario(ctx context.Context) error {
	period := h.lastMonth()
	dir, err := h.seedDirectory(ctx)
	if err != nil {
		return err
	}
	allocs, err := h.seedMonth(ctx, dir, period)
	if err != nil {
		return err
	}

	targets := []ledger.InvoiceStatus{ledger.InvoicePending, ledger.InvoicePartial, ledger.InvoicePaid}
	for i, company := range dir.companies {
		inv, err := h.Service.CreateCompanyInvoice(ctx, ledger.CompanyInvoiceRequest{
			CompanyID:     company,
			InvoiceDate:   period.End,
			DueDate:       period.End.AddDays(30),
			Period:        period,
			AllocationIDs: selectIDs(allocs, func(a ledger.Allocation) bool { return a.CompanyID == company }),
		})
		if err != nil {
			return fmt.Errorf("invoice for company %d: %w", company, err)
		}
		if targets[i] == ledger.InvoicePending {
			continue
		}
		// Creating the invoice already marked its allocations paid. Reopen the
		// first one so the status change has something to show: partial leaves
		// it pending, paid flips it back.
		if _, err := h.Service.UpdateCompanyPaymentStatus(ctx, inv.Details[0].AllocationID, ledger.PaymentPending); err != nil {
			return fmt.Errorf("reopen allocation on invoice %d: %w", inv.ID, err)
		}
		method := "bank_transfer"
		ref := fmt.Sprintf("INV-%d-%s", inv.ID, targets[i])
		if _, err := h.Service.SetInvoiceStatus(ctx, ledger.InvoiceStatusChange{
			InvoiceID:       inv.ID,
			Status:          targets[i],
			Method:          &method,
			ReferenceNumber: &ref,
		}); err != nil {
			return fmt.Errorf("invoice %d status: %w", inv.ID, err)
		}
	}
	return nil
}

// =============================================================================
// SEED DATA
// =============================================================================

type directory struct {
	workers      []ledger.WorkerID
	companies    []ledger.CompanyID
	serviceTypes []ledger.ServiceTypeID
}

func (h *Handler) seedDirectory(ctx context.Context) (*directory, error) {
	now := h.now().UTC()
	dir := &directory{}

	for _, w := range []ledger.Worker{
		{Name: "Alice Johnson", Email: "alice@example.com", Phone: "+1-555-0101"},
		{Name: "Bruno Silva", Email: "bruno@example.com", Phone: "+1-555-0102"},
		{Name: "Chen Wei", Email: "chen@example.com", Phone: "+1-555-0103"},
	} {
		w.CreatedAt, w.UpdatedAt = now, now
		if err := h.Store.CreateWorker(ctx, &w); err != nil {
			return nil, fmt.Errorf("worker %s: %w", w.Name, err)
		}
		dir.workers = append(dir.workers, w.ID)
	}

	for _, c := range []ledger.Company{
		{Name: "Northwind Logistics", ContactName: "Dana Reyes", Email: "ops@northwind.example"},
		{Name: "Harbor Events", ContactName: "Sam Okafor", Email: "staffing@harbor.example"},
		{Name: "Summit Catering", ContactName: "Lee Park", Email: "kitchen@summit.example"},
	} {
		c.CreatedAt, c.UpdatedAt = now, now
		if err := h.Store.CreateCompany(ctx, &c); err != nil {
			return nil, fmt.Errorf("company %s: %w", c.Name, err)
		}
		dir.companies = append(dir.companies, c.ID)
	}

	for _, st := range []ledger.ServiceType{
		{Name: "Warehouse", Description: "Picking, packing and loading"},
		{Name: "Event staff", Description: "Setup, service and teardown"},
	} {
		st.CreatedAt, st.UpdatedAt = now, now
		if err := h.Store.CreateServiceType(ctx, &st); err != nil {
			return nil, fmt.Errorf("service type %s: %w", st.Name, err)
		}
		dir.serviceTypes = append(dir.serviceTypes, st.ID)
	}
	return dir, nil
}

// seedMonth allocates every worker on every weekday of the period, rotating
// companies. Fridays are half days.
func (h *Handler) seedMonth(ctx context.Context, dir *directory, period ledger.Period) ([]ledger.Allocation, error) {
	var out []ledger.Allocation
	for _, day := range period.Days() {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		kind := ledger.PeriodFullDay
		workerAmt, companyAmt := decimal.NewFromInt(120), decimal.NewFromInt(180)
		if day.Weekday() == time.Friday {
			kind = ledger.PeriodHalfDay
			workerAmt, companyAmt = decimal.NewFromInt(60), decimal.NewFromInt(90)
		}

		for i, worker := range dir.workers {
			company := dir.companies[(day.Day()+i)%len(dir.companies)]
			st := dir.serviceTypes[i%len(dir.serviceTypes)]
			a, err := h.Service.CreateAllocation(ctx, ledger.NewAllocation{
				WorkerID:      worker,
				CompanyID:     company,
				Date:          day,
				PeriodKind:    kind,
				WorkerAmount:  workerAmt,
				CompanyAmount: companyAmt,
				ServiceTypeID: &st,
				Location:      "On site",
			})
			if err != nil {
				return nil, fmt.Errorf("allocate worker %d on %s: %w", worker, day, err)
			}
			out = append(out, *a)
		}
	}
	return out, nil
}

func (h *Handler) lastMonth() ledger.Period {
	today := ledger.DateOf(h.now())
	return ledger.MonthPeriod(today.Year(), today.Month()).Previous()
}

func selectIDs(allocs []ledger.Allocation, keep func(ledger.Allocation) bool) []ledger.AllocationID {
	var ids []ledger.AllocationID
	for _, a := range allocs {
		if keep(a) {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
