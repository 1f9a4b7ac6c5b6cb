/*
handlers.go - HTTP API handlers for the staffing ledger

PURPOSE:
  Exposes the ledger service, reference data and reports via REST API.
  Handles HTTP request/response and JSON serialization; every rule lives
  in the ledger package.

ENDPOINTS:
  Reference data:
    GET/POST   /api/workers, /api/companies, /api/service-types
    GET/DELETE /api/workers/{id}, /api/companies/{id}  (DELETE deactivates)

  Allocations:
    GET/POST       /api/allocations
    GET/PUT/DELETE /api/allocations/{id}
    PUT            /api/allocations/{id}/worker-payment-status
    PUT            /api/allocations/{id}/company-payment-status

  Settlements:
    GET/POST /api/payments, GET /api/payments/{id}
    GET/POST /api/invoices, GET /api/invoices/{id}
    PUT      /api/invoices/{id}/status

  Audit:
    GET /api/audit?subject_type=&subject_id=&action=&limit=

REQUEST FLOW:
  1. Parse path, query and body
  2. Call the ledger service
  3. Map the result to a DTO, or the error to a status

ERROR HANDLING:
  Ledger errors map by kind:
  - 400: invalid_input, invalid_amount, invalid_date_range, invalid_status
  - 404: not_found
  - 409: conflict, already_settled
  - 422: inactive, ownership_mismatch
  - 500: storage and anything unclassified

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - reports.go: Reporting endpoints
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/staffing-ledger/ledger"
	"github.com/warp/staffing-ledger/reporting"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the storage the HTTP layer needs beyond the ledger service.
// Both store/sqlite.Store and ledger/store.TxMemory satisfy it.
type Backend interface {
	ledger.TxStore
	ledger.Directory
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Backend
	Service *ledger.Service
	Reports *reporting.Projection

	log *zap.Logger
	now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store and svc. svc must be built on the
// same store.
func NewHandler(store Backend, svc *ledger.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:   store,
		Service: svc,
		Reports: reporting.NewProjection(store),
		log:     log.Named("api"),
		now:     time.Now,
	}
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// ListWorkers returns all workers, active and inactive.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Store.Workers(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = toWorkerDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	worker, err := h.Store.Worker(r.Context(), ledger.WorkerID(id))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if worker == nil {
		h.writeLedgerError(w, &ledger.NotFoundError{Entity: "worker", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(*worker))
}

func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	now := h.now().UTC()
	worker := &ledger.Worker{Name: strings.TrimSpace(req.Name), Email: req.Email, Phone: req.Phone, CreatedAt: now, UpdatedAt: now}
	if err := h.Store.CreateWorker(r.Context(), worker); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(*worker))
}

// DeactivateWorker soft-deletes a worker. Existing allocations are kept.
func (h *Handler) DeactivateWorker(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeactivateWorker(r.Context(), ledger.WorkerID(id), h.now().UTC()); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COMPANY HANDLERS
// =============================================================================

func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.Store.Companies(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	colors := reporting.CompanyColors(companies)
	dtos := make([]CompanyDTO, len(companies))
	for i, c := range companies {
		dtos[i] = toCompanyDTO(c, colors[c.ID])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	company, err := h.Store.Company(ctx, ledger.CompanyID(id))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if company == nil {
		h.writeLedgerError(w, &ledger.NotFoundError{Entity: "company", ID: id})
		return
	}
	all, err := h.Store.Companies(ctx)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyDTO(*company, reporting.CompanyColors(all)[company.ID]))
}

func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	ctx := r.Context()
	now := h.now().UTC()
	company := &ledger.Company{Name: strings.TrimSpace(req.Name), ContactName: req.ContactName, Email: req.Email, CreatedAt: now, UpdatedAt: now}
	if err := h.Store.CreateCompany(ctx, company); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	all, err := h.Store.Companies(ctx)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompanyDTO(*company, reporting.CompanyColors(all)[company.ID]))
}

func (h *Handler) DeactivateCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeactivateCompany(r.Context(), ledger.CompanyID(id), h.now().UTC()); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SERVICE TYPE HANDLERS
// =============================================================================

func (h *Handler) ListServiceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ServiceTypes(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]ServiceTypeDTO, len(types))
	for i, st := range types {
		dtos[i] = toServiceTypeDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateServiceType(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceTypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	now := h.now().UTC()
	st := &ledger.ServiceType{Name: strings.TrimSpace(req.Name), Description: req.Description, CreatedAt: now, UpdatedAt: now}
	if err := h.Store.CreateServiceType(r.Context(), st); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceTypeDTO(*st))
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// ListAllocations returns a page of allocations with the unpaged total.
// GET /api/allocations?worker_id=&company_id=&from=&to=
//
//	&worker_payment_status=&company_payment_status=&sort=&order=&limit=&offset=
func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAllocationFilter(r)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	ctx := r.Context()
	items, err := h.Service.ListAllocations(ctx, filter)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	total, err := h.Service.CountAllocations(ctx, filter)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]AllocationDTO, len(items))
	for i, a := range items {
		dtos[i] = toAllocationDTO(a)
	}
	writeJSON(w, http.StatusOK, AllocationListDTO{Items: dtos, Total: total})
}

func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.Service.GetAllocation(r.Context(), ledger.AllocationID(id))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(*a))
}

func (h *Handler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	var req CreateAllocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.Service.CreateAllocation(r.Context(), ledger.NewAllocation{
		WorkerID:      req.WorkerID,
		CompanyID:     req.CompanyID,
		Date:          req.Date,
		PeriodKind:    req.PeriodKind,
		WorkerAmount:  req.WorkerAmount,
		CompanyAmount: req.CompanyAmount,
		ServiceTypeID: req.ServiceTypeID,
		Location:      req.Location,
		Description:   req.Description,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationDTO(*a))
}

func (h *Handler) UpdateAllocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateAllocationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.Service.UpdateAllocation(r.Context(), ledger.AllocationID(id), ledger.AllocationPatch{
		WorkerID:         req.WorkerID,
		CompanyID:        req.CompanyID,
		Date:             req.Date,
		PeriodKind:       req.PeriodKind,
		WorkerAmount:     req.WorkerAmount,
		CompanyAmount:    req.CompanyAmount,
		ServiceTypeID:    req.ServiceTypeID,
		ClearServiceType: req.ClearServiceType,
		Location:         req.Location,
		Description:      req.Description,
		Notes:            req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(*a))
}

func (h *Handler) DeleteAllocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteAllocation(r.Context(), ledger.AllocationID(id)); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateWorkerPaymentStatus sets one allocation's worker side directly.
// PUT /api/allocations/{id}/worker-payment-status {"status": "paid"}
func (h *Handler) UpdateWorkerPaymentStatus(w http.ResponseWriter, r *http.Request) {
	h.updatePaymentStatus(w, r, h.Service.UpdateWorkerPaymentStatus)
}

// UpdateCompanyPaymentStatus sets one allocation's company side directly.
func (h *Handler) UpdateCompanyPaymentStatus(w http.ResponseWriter, r *http.Request) {
	h.updatePaymentStatus(w, r, h.Service.UpdateCompanyPaymentStatus)
}

func (h *Handler) updatePaymentStatus(w http.ResponseWriter, r *http.Request,
	update func(context.Context, ledger.AllocationID, ledger.PaymentStatus) (*ledger.Allocation, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PaymentStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := update(r.Context(), ledger.AllocationID(id), req.Status)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(*a))
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// ListPayments returns worker payments, newest payment date first.
// GET /api/payments?worker_id=&from=&to=
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := queryParser{values: r.URL.Query()}
	var filter ledger.PaymentFilter
	if id := q.integer("worker_id"); id != nil {
		wid := ledger.WorkerID(*id)
		filter.WorkerID = &wid
	}
	filter.From = q.dateParam("from")
	filter.To = q.dateParam("to")
	if q.err != nil {
		h.writeLedgerError(w, q.err)
		return
	}

	payments, err := h.Service.ListWorkerPayments(r.Context(), filter)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]WorkerPaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toWorkerPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Service.GetWorkerPayment(r.Context(), ledger.PaymentID(id))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerPaymentDTO(*p))
}

// CreatePayment settles the selected allocations' worker side.
// POST /api/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Service.CreateWorkerPayment(r.Context(), ledger.WorkerPaymentRequest{
		WorkerID:        req.WorkerID,
		PaymentDate:     req.PaymentDate,
		Period:          ledger.Period{Start: req.PeriodStart, End: req.PeriodEnd},
		Method:          req.Method,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
		AllocationIDs:   req.AllocationIDs,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerPaymentDTO(*p))
}

// ListInvoices returns company invoices, newest invoice date first.
// GET /api/invoices?company_id=&status=&from=&to=
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := queryParser{values: r.URL.Query()}
	var filter ledger.InvoiceFilter
	if id := q.integer("company_id"); id != nil {
		cid := ledger.CompanyID(*id)
		filter.CompanyID = &cid
	}
	if s := q.get("status"); s != "" {
		status := ledger.InvoiceStatus(s)
		filter.Status = &status
	}
	filter.From = q.dateParam("from")
	filter.To = q.dateParam("to")
	if q.err != nil {
		h.writeLedgerError(w, q.err)
		return
	}

	invoices, err := h.Service.ListCompanyInvoices(r.Context(), filter)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]CompanyInvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toCompanyInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.GetCompanyInvoice(r.Context(), ledger.InvoiceID(id))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyInvoiceDTO(*inv))
}

// CreateInvoice settles the selected allocations' company side.
// POST /api/invoices
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyInvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := h.Service.CreateCompanyInvoice(r.Context(), ledger.CompanyInvoiceRequest{
		CompanyID:       req.CompanyID,
		InvoiceDate:     req.InvoiceDate,
		DueDate:         req.DueDate,
		Period:          ledger.Period{Start: req.PeriodStart, End: req.PeriodEnd},
		Method:          req.Method,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
		AllocationIDs:   req.AllocationIDs,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompanyInvoiceDTO(*inv))
}

// SetInvoiceStatus moves an invoice through its status machine.
// PUT /api/invoices/{id}/status {"status": "paid", "method": "wire"}
func (h *Handler) SetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req InvoiceStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := h.Service.SetInvoiceStatus(r.Context(), ledger.InvoiceStatusChange{
		InvoiceID:       ledger.InvoiceID(id),
		Status:          req.Status,
		Method:          req.Method,
		ReferenceNumber: req.ReferenceNumber,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyInvoiceDTO(*inv))
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAudit returns audit entries, newest first.
// GET /api/audit?subject_type=allocation&subject_id=4&action=allocation_created&limit=50
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := queryParser{values: r.URL.Query()}
	filter := ledger.AuditFilter{
		SubjectType: q.get("subject_type"),
		SubjectID:   q.integer("subject_id"),
	}
	for _, a := range q.values["action"] {
		filter.Actions = append(filter.Actions, ledger.AuditAction(a))
	}
	if limit := q.integer("limit"); limit != nil {
		filter.Limit = int(*limit)
	}
	if q.err != nil {
		h.writeLedgerError(w, q.err)
		return
	}

	entries, err := h.Service.ListAudit(r.Context(), filter)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a request-level failure (bad path, bad body).
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Kind: string(ledger.KindInvalidInput)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps a ledger error to its status and body. Server-side
// failures are logged and their cause is not echoed.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	kind := ledger.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err), zap.String("kind", string(kind)))
		writeJSON(w, status, ErrorResponse{Error: "internal error", Kind: string(kind)})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: string(kind), Details: errorDetails(err)})
}

func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindInactive, ledger.KindOwnershipMismatch:
		return http.StatusUnprocessableEntity
	case ledger.KindInvalidInput, ledger.KindInvalidAmount, ledger.KindInvalidDateRange, ledger.KindInvalidStatus:
		return http.StatusBadRequest
	case ledger.KindConflict, ledger.KindAlreadySettled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorDetails exposes the structured fields of a ledger error.
func errorDetails(err error) map[string]any {
	var (
		validation *ledger.ValidationError
		conflict   *ledger.ConflictError
		ownership  *ledger.OwnershipError
		settled    *ledger.AlreadySettledError
		notFound   *ledger.NotFoundError
		inactive   *ledger.InactiveError
	)
	switch {
	case errors.As(err, &validation):
		return map[string]any{"field": validation.Field, "message": validation.Message}
	case errors.As(err, &conflict):
		d := map[string]any{"worker_id": conflict.WorkerID, "date": conflict.Date.String()}
		if conflict.ExistingID != 0 {
			d["existing_allocation_id"] = conflict.ExistingID
		}
		return d
	case errors.As(err, &ownership):
		return map[string]any{"allocation_id": ownership.AllocationID, "side": ownership.Side}
	case errors.As(err, &settled):
		return map[string]any{"allocation_id": settled.AllocationID, "side": settled.Side}
	case errors.As(err, &notFound):
		return map[string]any{"entity": notFound.Entity, "id": notFound.ID}
	case errors.As(err, &inactive):
		return map[string]any{"entity": inactive.Entity, "id": inactive.ID}
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid id %q", raw), nil)
		return 0, false
	}
	return id, true
}

// queryParser collects the first parse error so handlers check once.
type queryParser struct {
	values map[string][]string
	err    error
}

func (q *queryParser) get(key string) string {
	if v := q.values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (q *queryParser) integer(key string) *int64 {
	raw := q.get(key)
	if raw == "" || q.err != nil {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		q.err = &ledger.ValidationError{Err: ledger.ErrInvalidInput, Field: key, Message: "must be an integer"}
		return nil
	}
	return &v
}

func (q *queryParser) dateParam(key string) *ledger.Date {
	raw := q.get(key)
	if raw == "" || q.err != nil {
		return nil
	}
	d, err := ledger.ParseDate(raw)
	if err != nil {
		q.err = &ledger.ValidationError{Err: ledger.ErrInvalidInput, Field: key, Message: "must be YYYY-MM-DD"}
		return nil
	}
	return &d
}

func parseAllocationFilter(r *http.Request) (ledger.AllocationFilter, error) {
	q := queryParser{values: r.URL.Query()}
	var f ledger.AllocationFilter
	if id := q.integer("worker_id"); id != nil {
		wid := ledger.WorkerID(*id)
		f.WorkerID = &wid
	}
	if id := q.integer("company_id"); id != nil {
		cid := ledger.CompanyID(*id)
		f.CompanyID = &cid
	}
	f.From = q.dateParam("from")
	f.To = q.dateParam("to")
	if s := q.get("worker_payment_status"); s != "" {
		st := ledger.PaymentStatus(s)
		f.WorkerPaymentStatus = &st
	}
	if s := q.get("company_payment_status"); s != "" {
		st := ledger.PaymentStatus(s)
		f.CompanyPaymentStatus = &st
	}
	if v := q.integer("limit"); v != nil {
		f.Limit = int(*v)
	}
	if v := q.integer("offset"); v != nil {
		f.Offset = int(*v)
	}
	f.Sort = ledger.SortField(q.get("sort"))
	f.Descending = strings.EqualFold(q.get("order"), "desc")
	return f, q.err
}
