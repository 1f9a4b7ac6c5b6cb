// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/staffing-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *state
}

// state holds every table. All methods assume the caller holds the lock.
type state struct {
	workers      map[ledger.WorkerID]ledger.Worker
	companies    map[ledger.CompanyID]ledger.Company
	serviceTypes map[ledger.ServiceTypeID]ledger.ServiceType
	allocations  map[ledger.AllocationID]ledger.Allocation
	slots        map[slot]ledger.AllocationID
	payments     map[ledger.PaymentID]ledger.WorkerPayment
	invoices     map[ledger.InvoiceID]ledger.CompanyInvoice
	paidBy       map[ledger.AllocationID]ledger.PaymentID // worker detail per allocation
	billedBy     map[ledger.AllocationID]ledger.InvoiceID // invoice detail per allocation
	audit        []ledger.AuditEntry
	seq          int64
}

type slot struct {
	worker ledger.WorkerID
	date   string
}

func newState() *state {
	return &state{
		workers:      make(map[ledger.WorkerID]ledger.Worker),
		companies:    make(map[ledger.CompanyID]ledger.Company),
		serviceTypes: make(map[ledger.ServiceTypeID]ledger.ServiceType),
		allocations:  make(map[ledger.AllocationID]ledger.Allocation),
		slots:        make(map[slot]ledger.AllocationID),
		payments:     make(map[ledger.PaymentID]ledger.WorkerPayment),
		invoices:     make(map[ledger.InvoiceID]ledger.CompanyInvoice),
		paidBy:       make(map[ledger.AllocationID]ledger.PaymentID),
		billedBy:     make(map[ledger.AllocationID]ledger.InvoiceID),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// Reset drops every row.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

func (m *Memory) read(fn func(v *view) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&view{st: m.st})
}

func (m *Memory) write(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{st: m.st})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx runs fn against a copy of the state and swaps it in on success.
// Transactions are serialized by the write lock.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	working := tm.st.clone()
	if err := fn(&view{st: working}); err != nil {
		return err
	}
	tm.st = working
	return nil
}

func (s *state) clone() *state {
	c := &state{
		workers:      make(map[ledger.WorkerID]ledger.Worker, len(s.workers)),
		companies:    make(map[ledger.CompanyID]ledger.Company, len(s.companies)),
		serviceTypes: make(map[ledger.ServiceTypeID]ledger.ServiceType, len(s.serviceTypes)),
		allocations:  make(map[ledger.AllocationID]ledger.Allocation, len(s.allocations)),
		slots:        make(map[slot]ledger.AllocationID, len(s.slots)),
		payments:     make(map[ledger.PaymentID]ledger.WorkerPayment, len(s.payments)),
		invoices:     make(map[ledger.InvoiceID]ledger.CompanyInvoice, len(s.invoices)),
		paidBy:       make(map[ledger.AllocationID]ledger.PaymentID, len(s.paidBy)),
		billedBy:     make(map[ledger.AllocationID]ledger.InvoiceID, len(s.billedBy)),
		audit:        append([]ledger.AuditEntry(nil), s.audit...),
		seq:          s.seq,
	}
	for k, v := range s.workers {
		c.workers[k] = v
	}
	for k, v := range s.companies {
		c.companies[k] = v
	}
	for k, v := range s.serviceTypes {
		c.serviceTypes[k] = v
	}
	for k, v := range s.allocations {
		c.allocations[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	// Payments and invoices are never mutated in place, so sharing their
	// detail slices is safe.
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.paidBy {
		c.paidBy[k] = v
	}
	for k, v := range s.billedBy {
		c.billedBy[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// =============================================================================
// LOCKED DELEGATES - Memory satisfies ledger.Store outside transactions
// =============================================================================

func (m *Memory) Worker(ctx context.Context, id ledger.WorkerID) (out *ledger.Worker, err error) {
	err = m.read(func(v *view) error { out, err = v.Worker(ctx, id); return err })
	return
}

func (m *Memory) Company(ctx context.Context, id ledger.CompanyID) (out *ledger.Company, err error) {
	err = m.read(func(v *view) error { out, err = v.Company(ctx, id); return err })
	return
}

func (m *Memory) ServiceType(ctx context.Context, id ledger.ServiceTypeID) (out *ledger.ServiceType, err error) {
	err = m.read(func(v *view) error { out, err = v.ServiceType(ctx, id); return err })
	return
}

func (m *Memory) Workers(ctx context.Context) (out []ledger.Worker, err error) {
	err = m.read(func(v *view) error { out, err = v.Workers(ctx); return err })
	return
}

func (m *Memory) Companies(ctx context.Context) (out []ledger.Company, err error) {
	err = m.read(func(v *view) error { out, err = v.Companies(ctx); return err })
	return
}

func (m *Memory) ServiceTypes(ctx context.Context) (out []ledger.ServiceType, err error) {
	err = m.read(func(v *view) error { out, err = v.ServiceTypes(ctx); return err })
	return
}

func (m *Memory) CreateWorker(ctx context.Context, w *ledger.Worker) error {
	return m.write(func(v *view) error { return v.CreateWorker(ctx, w) })
}

func (m *Memory) CreateCompany(ctx context.Context, c *ledger.Company) error {
	return m.write(func(v *view) error { return v.CreateCompany(ctx, c) })
}

func (m *Memory) CreateServiceType(ctx context.Context, st *ledger.ServiceType) error {
	return m.write(func(v *view) error { return v.CreateServiceType(ctx, st) })
}

func (m *Memory) DeactivateWorker(ctx context.Context, id ledger.WorkerID, at time.Time) error {
	return m.write(func(v *view) error { return v.DeactivateWorker(ctx, id, at) })
}

func (m *Memory) DeactivateCompany(ctx context.Context, id ledger.CompanyID, at time.Time) error {
	return m.write(func(v *view) error { return v.DeactivateCompany(ctx, id, at) })
}

func (m *Memory) DeactivateServiceType(ctx context.Context, id ledger.ServiceTypeID, at time.Time) error {
	return m.write(func(v *view) error { return v.DeactivateServiceType(ctx, id, at) })
}

func (m *Memory) InsertAllocation(ctx context.Context, a *ledger.Allocation) error {
	return m.write(func(v *view) error { return v.InsertAllocation(ctx, a) })
}

func (m *Memory) UpdateAllocation(ctx context.Context, a ledger.Allocation) error {
	return m.write(func(v *view) error { return v.UpdateAllocation(ctx, a) })
}

func (m *Memory) DeleteAllocation(ctx context.Context, id ledger.AllocationID) error {
	return m.write(func(v *view) error { return v.DeleteAllocation(ctx, id) })
}

func (m *Memory) Allocation(ctx context.Context, id ledger.AllocationID) (out *ledger.Allocation, err error) {
	err = m.read(func(v *view) error { out, err = v.Allocation(ctx, id); return err })
	return
}

func (m *Memory) AllocationsByID(ctx context.Context, ids []ledger.AllocationID) (out []ledger.Allocation, err error) {
	err = m.read(func(v *view) error { out, err = v.AllocationsByID(ctx, ids); return err })
	return
}

func (m *Memory) ListAllocations(ctx context.Context, f ledger.AllocationFilter) (out []ledger.Allocation, err error) {
	err = m.read(func(v *view) error { out, err = v.ListAllocations(ctx, f); return err })
	return
}

func (m *Memory) CountAllocations(ctx context.Context, f ledger.AllocationFilter) (n int, err error) {
	err = m.read(func(v *view) error { n, err = v.CountAllocations(ctx, f); return err })
	return
}

func (m *Memory) AllocationAt(ctx context.Context, workerID ledger.WorkerID, date ledger.Date, exclude ledger.AllocationID) (out *ledger.Allocation, err error) {
	err = m.read(func(v *view) error { out, err = v.AllocationAt(ctx, workerID, date, exclude); return err })
	return
}

func (m *Memory) IsAllocationReferenced(ctx context.Context, id ledger.AllocationID) (ok bool, err error) {
	err = m.read(func(v *view) error { ok, err = v.IsAllocationReferenced(ctx, id); return err })
	return
}

func (m *Memory) SetWorkerPaymentStatus(ctx context.Context, ids []ledger.AllocationID, to ledger.PaymentStatus, onlyFrom *ledger.PaymentStatus, at time.Time) (n int64, err error) {
	err = m.write(func(v *view) error { n, err = v.SetWorkerPaymentStatus(ctx, ids, to, onlyFrom, at); return err })
	return
}

func (m *Memory) SetCompanyPaymentStatus(ctx context.Context, ids []ledger.AllocationID, to ledger.PaymentStatus, onlyFrom *ledger.PaymentStatus, at time.Time) (n int64, err error) {
	err = m.write(func(v *view) error { n, err = v.SetCompanyPaymentStatus(ctx, ids, to, onlyFrom, at); return err })
	return
}

func (m *Memory) InsertWorkerPayment(ctx context.Context, p *ledger.WorkerPayment) error {
	return m.write(func(v *view) error { return v.InsertWorkerPayment(ctx, p) })
}

func (m *Memory) WorkerPayment(ctx context.Context, id ledger.PaymentID) (out *ledger.WorkerPayment, err error) {
	err = m.read(func(v *view) error { out, err = v.WorkerPayment(ctx, id); return err })
	return
}

func (m *Memory) ListWorkerPayments(ctx context.Context, f ledger.PaymentFilter) (out []ledger.WorkerPayment, err error) {
	err = m.read(func(v *view) error { out, err = v.ListWorkerPayments(ctx, f); return err })
	return
}

func (m *Memory) InsertCompanyInvoice(ctx context.Context, inv *ledger.CompanyInvoice) error {
	return m.write(func(v *view) error { return v.InsertCompanyInvoice(ctx, inv) })
}

func (m *Memory) CompanyInvoice(ctx context.Context, id ledger.InvoiceID) (out *ledger.CompanyInvoice, err error) {
	err = m.read(func(v *view) error { out, err = v.CompanyInvoice(ctx, id); return err })
	return
}

func (m *Memory) ListCompanyInvoices(ctx context.Context, f ledger.InvoiceFilter) (out []ledger.CompanyInvoice, err error) {
	err = m.read(func(v *view) error { out, err = v.ListCompanyInvoices(ctx, f); return err })
	return
}

func (m *Memory) UpdateInvoiceStatus(ctx context.Context, id ledger.InvoiceID, status ledger.InvoiceStatus, method, ref string, at time.Time) error {
	return m.write(func(v *view) error { return v.UpdateInvoiceStatus(ctx, id, status, method, ref, at) })
}

func (m *Memory) InvoiceAllocationIDs(ctx context.Context, id ledger.InvoiceID) (out []ledger.AllocationID, err error) {
	err = m.read(func(v *view) error { out, err = v.InvoiceAllocationIDs(ctx, id); return err })
	return
}

func (m *Memory) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	return m.write(func(v *view) error { return v.AppendAudit(ctx, e) })
}

func (m *Memory) ListAudit(ctx context.Context, f ledger.AuditFilter) (out []ledger.AuditEntry, err error) {
	err = m.read(func(v *view) error { out, err = v.ListAudit(ctx, f); return err })
	return
}

// =============================================================================
// VIEW - Unlocked operations on one state
// =============================================================================

type view struct {
	st *state
}

func (v *view) Worker(_ context.Context, id ledger.WorkerID) (*ledger.Worker, error) {
	w, ok := v.st.workers[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (v *view) Company(_ context.Context, id ledger.CompanyID) (*ledger.Company, error) {
	c, ok := v.st.companies[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (v *view) ServiceType(_ context.Context, id ledger.ServiceTypeID) (*ledger.ServiceType, error) {
	st, ok := v.st.serviceTypes[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (v *view) Workers(_ context.Context) ([]ledger.Worker, error) {
	out := make([]ledger.Worker, 0, len(v.st.workers))
	for _, w := range v.st.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) Companies(_ context.Context) ([]ledger.Company, error) {
	out := make([]ledger.Company, 0, len(v.st.companies))
	for _, c := range v.st.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) ServiceTypes(_ context.Context) ([]ledger.ServiceType, error) {
	out := make([]ledger.ServiceType, 0, len(v.st.serviceTypes))
	for _, st := range v.st.serviceTypes {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) CreateWorker(_ context.Context, w *ledger.Worker) error {
	w.ID = ledger.WorkerID(v.st.nextID())
	v.st.workers[w.ID] = *w
	return nil
}

func (v *view) CreateCompany(_ context.Context, c *ledger.Company) error {
	c.ID = ledger.CompanyID(v.st.nextID())
	v.st.companies[c.ID] = *c
	return nil
}

func (v *view) CreateServiceType(_ context.Context, st *ledger.ServiceType) error {
	st.ID = ledger.ServiceTypeID(v.st.nextID())
	v.st.serviceTypes[st.ID] = *st
	return nil
}

func (v *view) DeactivateWorker(_ context.Context, id ledger.WorkerID, at time.Time) error {
	w, ok := v.st.workers[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "worker", ID: int64(id)}
	}
	w.DeletedAt, w.UpdatedAt = &at, at
	v.st.workers[id] = w
	return nil
}

func (v *view) DeactivateCompany(_ context.Context, id ledger.CompanyID, at time.Time) error {
	c, ok := v.st.companies[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "company", ID: int64(id)}
	}
	c.DeletedAt, c.UpdatedAt = &at, at
	v.st.companies[id] = c
	return nil
}

func (v *view) DeactivateServiceType(_ context.Context, id ledger.ServiceTypeID, at time.Time) error {
	st, ok := v.st.serviceTypes[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "service_type", ID: int64(id)}
	}
	st.DeletedAt, st.UpdatedAt = &at, at
	v.st.serviceTypes[id] = st
	return nil
}

// -----------------------------------------------------------------------------
// Allocations
// -----------------------------------------------------------------------------

func slotOf(a ledger.Allocation) slot {
	return slot{worker: a.WorkerID, date: a.Date.String()}
}

func (v *view) InsertAllocation(_ context.Context, a *ledger.Allocation) error {
	if _, taken := v.st.slots[slotOf(*a)]; taken {
		return ledger.ErrUniqueWorkerDate
	}
	a.ID = ledger.AllocationID(v.st.nextID())
	v.st.allocations[a.ID] = copyAllocation(*a)
	v.st.slots[slotOf(*a)] = a.ID
	return nil
}

func (v *view) UpdateAllocation(_ context.Context, a ledger.Allocation) error {
	prev, ok := v.st.allocations[a.ID]
	if !ok {
		return fmt.Errorf("update allocation %d: no such row", a.ID)
	}
	if holder, taken := v.st.slots[slotOf(a)]; taken && holder != a.ID {
		return ledger.ErrUniqueWorkerDate
	}
	delete(v.st.slots, slotOf(prev))
	v.st.slots[slotOf(a)] = a.ID
	v.st.allocations[a.ID] = copyAllocation(a)
	return nil
}

func (v *view) DeleteAllocation(_ context.Context, id ledger.AllocationID) error {
	a, ok := v.st.allocations[id]
	if !ok {
		return nil
	}
	if v.referenced(id) {
		return ledger.ErrAllocationReferenced
	}
	delete(v.st.slots, slotOf(a))
	delete(v.st.allocations, id)
	return nil
}

func (v *view) Allocation(_ context.Context, id ledger.AllocationID) (*ledger.Allocation, error) {
	a, ok := v.st.allocations[id]
	if !ok {
		return nil, nil
	}
	a = copyAllocation(a)
	return &a, nil
}

func (v *view) AllocationsByID(_ context.Context, ids []ledger.AllocationID) ([]ledger.Allocation, error) {
	out := make([]ledger.Allocation, 0, len(ids))
	for _, id := range ids {
		if a, ok := v.st.allocations[id]; ok {
			out = append(out, copyAllocation(a))
		}
	}
	return out, nil
}

func (v *view) ListAllocations(_ context.Context, f ledger.AllocationFilter) ([]ledger.Allocation, error) {
	var out []ledger.Allocation
	for _, a := range v.st.allocations {
		if f.Matches(a) {
			out = append(out, copyAllocation(a))
		}
	}
	sortAllocations(out, f.Sort, f.Descending)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (v *view) CountAllocations(_ context.Context, f ledger.AllocationFilter) (int, error) {
	n := 0
	for _, a := range v.st.allocations {
		if f.Matches(a) {
			n++
		}
	}
	return n, nil
}

func (v *view) AllocationAt(_ context.Context, workerID ledger.WorkerID, date ledger.Date, exclude ledger.AllocationID) (*ledger.Allocation, error) {
	id, ok := v.st.slots[slot{worker: workerID, date: date.String()}]
	if !ok || id == exclude {
		return nil, nil
	}
	a := copyAllocation(v.st.allocations[id])
	return &a, nil
}

func (v *view) IsAllocationReferenced(_ context.Context, id ledger.AllocationID) (bool, error) {
	return v.referenced(id), nil
}

func (v *view) referenced(id ledger.AllocationID) bool {
	_, paid := v.st.paidBy[id]
	_, billed := v.st.billedBy[id]
	return paid || billed
}

func (v *view) SetWorkerPaymentStatus(_ context.Context, ids []ledger.AllocationID, to ledger.PaymentStatus, onlyFrom *ledger.PaymentStatus, at time.Time) (int64, error) {
	return v.setStatus(ids, ledger.SideWorker, to, onlyFrom, at), nil
}

func (v *view) SetCompanyPaymentStatus(_ context.Context, ids []ledger.AllocationID, to ledger.PaymentStatus, onlyFrom *ledger.PaymentStatus, at time.Time) (int64, error) {
	return v.setStatus(ids, ledger.SideCompany, to, onlyFrom, at), nil
}

func (v *view) setStatus(ids []ledger.AllocationID, side ledger.Side, to ledger.PaymentStatus, onlyFrom *ledger.PaymentStatus, at time.Time) int64 {
	var n int64
	for _, id := range ids {
		a, ok := v.st.allocations[id]
		if !ok {
			continue
		}
		if onlyFrom != nil && a.StatusFor(side) != *onlyFrom {
			continue
		}
		if side == ledger.SideCompany {
			a.CompanyPaymentStatus = to
		} else {
			a.WorkerPaymentStatus = to
		}
		a.UpdatedAt = at
		v.st.allocations[id] = a
		n++
	}
	return n
}

// -----------------------------------------------------------------------------
// Settlements
// -----------------------------------------------------------------------------

func (v *view) InsertWorkerPayment(_ context.Context, p *ledger.WorkerPayment) error {
	for _, d := range p.Details {
		if _, exists := v.st.paidBy[d.AllocationID]; exists {
			return &ledger.DetailExistsError{AllocationID: d.AllocationID}
		}
	}
	p.ID = ledger.PaymentID(v.st.nextID())
	for i := range p.Details {
		p.Details[i].ID = v.st.nextID()
		p.Details[i].PaymentID = p.ID
		v.st.paidBy[p.Details[i].AllocationID] = p.ID
	}
	stored := *p
	stored.Details = append([]ledger.PaymentDetail(nil), p.Details...)
	v.st.payments[p.ID] = stored
	return nil
}

func (v *view) WorkerPayment(_ context.Context, id ledger.PaymentID) (*ledger.WorkerPayment, error) {
	p, ok := v.st.payments[id]
	if !ok {
		return nil, nil
	}
	p.Details = append([]ledger.PaymentDetail(nil), p.Details...)
	return &p, nil
}

func (v *view) ListWorkerPayments(_ context.Context, f ledger.PaymentFilter) ([]ledger.WorkerPayment, error) {
	var out []ledger.WorkerPayment
	for _, p := range v.st.payments {
		if f.WorkerID != nil && p.WorkerID != *f.WorkerID {
			continue
		}
		if !inRange(p.PaymentDate, f.From, f.To) {
			continue
		}
		p.Details = append([]ledger.PaymentDetail(nil), p.Details...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.After(out[j].PaymentDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (v *view) InsertCompanyInvoice(_ context.Context, inv *ledger.CompanyInvoice) error {
	for _, d := range inv.Details {
		if _, exists := v.st.billedBy[d.AllocationID]; exists {
			return &ledger.DetailExistsError{AllocationID: d.AllocationID}
		}
	}
	inv.ID = ledger.InvoiceID(v.st.nextID())
	for i := range inv.Details {
		inv.Details[i].ID = v.st.nextID()
		inv.Details[i].InvoiceID = inv.ID
		v.st.billedBy[inv.Details[i].AllocationID] = inv.ID
	}
	stored := *inv
	stored.Details = append([]ledger.InvoiceDetail(nil), inv.Details...)
	v.st.invoices[inv.ID] = stored
	return nil
}

func (v *view) CompanyInvoice(_ context.Context, id ledger.InvoiceID) (*ledger.CompanyInvoice, error) {
	inv, ok := v.st.invoices[id]
	if !ok {
		return nil, nil
	}
	inv.Details = append([]ledger.InvoiceDetail(nil), inv.Details...)
	return &inv, nil
}

func (v *view) ListCompanyInvoices(_ context.Context, f ledger.InvoiceFilter) ([]ledger.CompanyInvoice, error) {
	var out []ledger.CompanyInvoice
	for _, inv := range v.st.invoices {
		if f.CompanyID != nil && inv.CompanyID != *f.CompanyID {
			continue
		}
		if f.Status != nil && inv.Status != *f.Status {
			continue
		}
		if !inRange(inv.InvoiceDate, f.From, f.To) {
			continue
		}
		inv.Details = append([]ledger.InvoiceDetail(nil), inv.Details...)
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvoiceDate.Equal(out[j].InvoiceDate) {
			return out[i].InvoiceDate.After(out[j].InvoiceDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (v *view) UpdateInvoiceStatus(_ context.Context, id ledger.InvoiceID, status ledger.InvoiceStatus, method, ref string, at time.Time) error {
	inv, ok := v.st.invoices[id]
	if !ok {
		return fmt.Errorf("update invoice %d: no such row", id)
	}
	inv.Status, inv.Method, inv.ReferenceNumber, inv.UpdatedAt = status, method, ref, at
	v.st.invoices[id] = inv
	return nil
}

func (v *view) InvoiceAllocationIDs(_ context.Context, id ledger.InvoiceID) ([]ledger.AllocationID, error) {
	inv, ok := v.st.invoices[id]
	if !ok {
		return nil, nil
	}
	out := make([]ledger.AllocationID, len(inv.Details))
	for i, d := range inv.Details {
		out[i] = d.AllocationID
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Audit
// -----------------------------------------------------------------------------

func (v *view) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	v.st.audit = append(v.st.audit, e)
	return nil
}

func (v *view) ListAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var out []ledger.AuditEntry
	for i := len(v.st.audit) - 1; i >= 0; i-- {
		e := v.st.audit[i]
		if f.SubjectType != "" && e.SubjectType != f.SubjectType {
			continue
		}
		if f.SubjectID != nil && e.SubjectID != *f.SubjectID {
			continue
		}
		if len(f.Actions) > 0 && !hasAction(f.Actions, e.Action) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func copyAllocation(a ledger.Allocation) ledger.Allocation {
	if a.ServiceTypeID != nil {
		st := *a.ServiceTypeID
		a.ServiceTypeID = &st
	}
	return a
}

func sortAllocations(list []ledger.Allocation, by ledger.SortField, desc bool) {
	less := func(a, b ledger.Allocation) bool {
		switch by {
		case ledger.SortByWorker:
			if a.WorkerID != b.WorkerID {
				return a.WorkerID < b.WorkerID
			}
		case ledger.SortByCompany:
			if a.CompanyID != b.CompanyID {
				return a.CompanyID < b.CompanyID
			}
		case ledger.SortByCreatedAt:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		case ledger.SortByID:
			return a.ID < b.ID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	}
	sort.SliceStable(list, func(i, j int) bool {
		if desc {
			return less(list[j], list[i])
		}
		return less(list[i], list[j])
	})
}

func inRange(d ledger.Date, from, to *ledger.Date) bool {
	if from != nil && d.Before(*from) {
		return false
	}
	if to != nil && d.After(*to) {
		return false
	}
	return true
}

func hasAction(actions []ledger.AuditAction, a ledger.AuditAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

var (
	_ ledger.TxStore   = (*TxMemory)(nil)
	_ ledger.Directory = (*Memory)(nil)
)
