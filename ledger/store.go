/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the boundary between ledger rules and storage. The ledger is
  specified independently of any engine; store/sqlite and ledger/store
  implement these interfaces.

KEY INTERFACES:
  ReferenceData: Worker / company / service type lookups (read-only)
  Directory:     ReferenceData + create / deactivate
  Store:         Allocations, settlements, status flips, audit
  TxStore:       Store + atomic WithTx

CONTRACT FOR IMPLEMENTATIONS:
  - Lookups of a single entity return (nil, nil) when it does not exist.
  - InsertAllocation / UpdateAllocation enforce uniqueness of
    (worker_id, date) and report a violation as ErrUniqueWorkerDate.
  - Inserting a detail row for an allocation that already has one on the
    same side reports ErrDetailExists.
  - DeleteAllocation of a referenced allocation reports
    ErrAllocationReferenced.
  - SetWorkerPaymentStatus / SetCompanyPaymentStatus are conditional: when
    onlyFrom is non-nil, rows whose current status differs are skipped. The
    number of rows changed is returned.
  - WithTx commits when fn returns nil and rolls back otherwise. The Store
    passed to fn must only be used inside fn.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - ledger/store/memory.go: In-memory implementation for tests
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

type ReferenceData interface {
	Worker(ctx context.Context, id WorkerID) (*Worker, error)
	Company(ctx context.Context, id CompanyID) (*Company, error)
	ServiceType(ctx context.Context, id ServiceTypeID) (*ServiceType, error)

	Workers(ctx context.Context) ([]Worker, error)
	Companies(ctx context.Context) ([]Company, error)
}

// Directory maintains reference data for the HTTP surface and demo
// scenarios. The ledger itself only reads through ReferenceData.
// Deactivate* return a *NotFoundError for unknown ids.
type Directory interface {
	ReferenceData

	ServiceTypes(ctx context.Context) ([]ServiceType, error)

	CreateWorker(ctx context.Context, w *Worker) error // assigns w.ID
	CreateCompany(ctx context.Context, c *Company) error
	CreateServiceType(ctx context.Context, st *ServiceType) error

	DeactivateWorker(ctx context.Context, id WorkerID, at time.Time) error
	DeactivateCompany(ctx context.Context, id CompanyID, at time.Time) error
	DeactivateServiceType(ctx context.Context, id ServiceTypeID, at time.Time) error
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	ReferenceData

	// Allocations
	InsertAllocation(ctx context.Context, a *Allocation) error // assigns a.ID
	UpdateAllocation(ctx context.Context, a Allocation) error
	DeleteAllocation(ctx context.Context, id AllocationID) error
	Allocation(ctx context.Context, id AllocationID) (*Allocation, error)
	AllocationsByID(ctx context.Context, ids []AllocationID) ([]Allocation, error)
	ListAllocations(ctx context.Context, filter AllocationFilter) ([]Allocation, error)
	CountAllocations(ctx context.Context, filter AllocationFilter) (int, error)

	// AllocationAt returns the allocation occupying (worker, date), ignoring
	// exclude. Returns (nil, nil) when the slot is free.
	AllocationAt(ctx context.Context, workerID WorkerID, date Date, exclude AllocationID) (*Allocation, error)

	// IsAllocationReferenced reports whether any payment or invoice detail
	// references the allocation.
	IsAllocationReferenced(ctx context.Context, id AllocationID) (bool, error)

	SetWorkerPaymentStatus(ctx context.Context, ids []AllocationID, to PaymentStatus, onlyFrom *PaymentStatus, at time.Time) (int64, error)
	SetCompanyPaymentStatus(ctx context.Context, ids []AllocationID, to PaymentStatus, onlyFrom *PaymentStatus, at time.Time) (int64, error)

	// Worker payments (insert assigns IDs to the payment and its details)
	InsertWorkerPayment(ctx context.Context, p *WorkerPayment) error
	WorkerPayment(ctx context.Context, id PaymentID) (*WorkerPayment, error)
	ListWorkerPayments(ctx context.Context, filter PaymentFilter) ([]WorkerPayment, error)

	// Company invoices (insert assigns IDs to the invoice and its details)
	InsertCompanyInvoice(ctx context.Context, inv *CompanyInvoice) error
	CompanyInvoice(ctx context.Context, id InvoiceID) (*CompanyInvoice, error)
	ListCompanyInvoices(ctx context.Context, filter InvoiceFilter) ([]CompanyInvoice, error)
	UpdateInvoiceStatus(ctx context.Context, id InvoiceID, status InvoiceStatus, method, referenceNumber string, at time.Time) error
	InvoiceAllocationIDs(ctx context.Context, id InvoiceID) ([]AllocationID, error)

	// Audit
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// FILTERS
// =============================================================================

// SortField is a whitelisted allocation ordering.
type SortField string

const (
	SortByDate      SortField = "date"
	SortByWorker    SortField = "worker"
	SortByCompany   SortField = "company"
	SortByCreatedAt SortField = "created_at"
	SortByID        SortField = "id"
)

func (f SortField) Valid() bool {
	switch f {
	case SortByDate, SortByWorker, SortByCompany, SortByCreatedAt, SortByID, "":
		return true
	}
	return false
}

type AllocationFilter struct {
	WorkerID             *WorkerID
	CompanyID            *CompanyID
	From                 *Date
	To                   *Date
	WorkerPaymentStatus  *PaymentStatus
	CompanyPaymentStatus *PaymentStatus

	Limit      int // 0 = no limit
	Offset     int
	Sort       SortField // default: date
	Descending bool
}

// Matches applies the non-paging criteria to a single allocation.
func (f AllocationFilter) Matches(a Allocation) bool {
	if f.WorkerID != nil && a.WorkerID != *f.WorkerID {
		return false
	}
	if f.CompanyID != nil && a.CompanyID != *f.CompanyID {
		return false
	}
	if f.From != nil && a.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Date.After(*f.To) {
		return false
	}
	if f.WorkerPaymentStatus != nil && a.WorkerPaymentStatus != *f.WorkerPaymentStatus {
		return false
	}
	if f.CompanyPaymentStatus != nil && a.CompanyPaymentStatus != *f.CompanyPaymentStatus {
		return false
	}
	return true
}

// PaymentFilter selects worker payments by payment date.
type PaymentFilter struct {
	WorkerID *WorkerID
	From     *Date
	To       *Date
}

// InvoiceFilter selects company invoices by invoice date.
type InvoiceFilter struct {
	CompanyID *CompanyID
	Status    *InvoiceStatus
	From      *Date
	To        *Date
}
