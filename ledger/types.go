/*
Package ledger provides the allocation and settlement ledger.

PURPOSE:
  Tracks daily staffing allocations (a worker placed at a client company on
  a given date) and settles them into aggregate Worker Payments and Company
  Invoices. Everything that has a real invariant lives here; HTTP, rendering
  and reference-data maintenance sit outside and talk to the Service.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: integer surrogate ids, one type per entity
  - Money: decimal.Decimal amounts, never floats
  - Allocation: one worker, one company, one date, two payment statuses
  - WorkerPayment / CompanyInvoice: settlements with snapshot detail rows
  - Worker / Company / ServiceType: read-only reference data

DUAL STATUS:
  An allocation carries two independent statuses. The worker side flips to
  paid when the allocation is settled into a WorkerPayment; the company side
  flips to paid when it is settled into a CompanyInvoice, or when that
  invoice is later marked paid. The two never influence each other.

SNAPSHOTS:
  Detail rows copy the allocation amount at settlement time. Later edits to
  the allocation never change a settled total.

SEE ALSO:
  - errors.go: Error taxonomy
  - store.go: Persistence interfaces
  - settlement.go: Aggregation into payments and invoices
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID int64
type CompanyID int64
type ServiceTypeID int64
type AllocationID int64
type PaymentID int64
type InvoiceID int64

// =============================================================================
// MONEY
// =============================================================================

// SumAmounts adds amounts exactly. An empty input sums to zero.
func SumAmounts(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ParseAmount parses a decimal amount from its text form.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// =============================================================================
// ENUMERATIONS
// =============================================================================

// PeriodKind is how much of the day an allocation covers.
// It does not participate in conflict detection.
type PeriodKind string

const (
	PeriodFullDay PeriodKind = "full_day"
	PeriodHalfDay PeriodKind = "half_day"
)

func (k PeriodKind) Valid() bool {
	return k == PeriodFullDay || k == PeriodHalfDay
}

// Days returns the day weight used by productivity rollups.
func (k PeriodKind) Days() decimal.Decimal {
	if k == PeriodHalfDay {
		return decimal.NewFromFloat(0.5)
	}
	return decimal.NewFromInt(1)
}

// PaymentStatus is the settlement state of one side of an allocation.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentPaid
}

// InvoiceStatus is the lifecycle state of a CompanyInvoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePartial InvoiceStatus = "partial"
	InvoicePaid    InvoiceStatus = "paid"
)

func (s InvoiceStatus) Valid() bool {
	return s == InvoicePending || s == InvoicePartial || s == InvoicePaid
}

// Side names which half of an allocation a settlement concerns.
type Side string

const (
	SideWorker  Side = "worker"
	SideCompany Side = "company"
)

// =============================================================================
// REFERENCE DATA - owned by the surrounding system, read by the ledger
// =============================================================================

type Worker struct {
	ID        WorkerID
	Name      string
	Email     string
	Phone     string
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w Worker) Active() bool { return w.DeletedAt == nil }

type Company struct {
	ID          CompanyID
	Name        string
	ContactName string
	Email       string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c Company) Active() bool { return c.DeletedAt == nil }

type ServiceType struct {
	ID          ServiceTypeID
	Name        string
	Description string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s ServiceType) Active() bool { return s.DeletedAt == nil }

// =============================================================================
// ALLOCATION
// =============================================================================

// Allocation is one worker's assignment to one company on one date.
//
// INVARIANT: at most one Allocation per (WorkerID, Date).
type Allocation struct {
	ID            AllocationID
	WorkerID      WorkerID
	CompanyID     CompanyID
	Date          Date
	PeriodKind    PeriodKind
	WorkerAmount  decimal.Decimal // owed to the worker
	CompanyAmount decimal.Decimal // billable to the company
	ServiceTypeID *ServiceTypeID
	Location      string
	Description   string
	Notes         string

	WorkerPaymentStatus  PaymentStatus
	CompanyPaymentStatus PaymentStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusFor returns the payment status of the given side.
func (a Allocation) StatusFor(side Side) PaymentStatus {
	if side == SideCompany {
		return a.CompanyPaymentStatus
	}
	return a.WorkerPaymentStatus
}

// AmountFor returns the amount of the given side.
func (a Allocation) AmountFor(side Side) decimal.Decimal {
	if side == SideCompany {
		return a.CompanyAmount
	}
	return a.WorkerAmount
}

// NewAllocation is the input to CreateAllocation.
type NewAllocation struct {
	WorkerID      WorkerID
	CompanyID     CompanyID
	Date          Date
	PeriodKind    PeriodKind
	WorkerAmount  decimal.Decimal
	CompanyAmount decimal.Decimal
	ServiceTypeID *ServiceTypeID
	Location      string
	Description   string
	Notes         string
}

// AllocationPatch is a partial update. Nil fields are left unchanged.
// ClearServiceType removes the service type reference.
type AllocationPatch struct {
	WorkerID         *WorkerID
	CompanyID        *CompanyID
	Date             *Date
	PeriodKind       *PeriodKind
	WorkerAmount     *decimal.Decimal
	CompanyAmount    *decimal.Decimal
	ServiceTypeID    *ServiceTypeID
	ClearServiceType bool
	Location         *string
	Description      *string
	Notes            *string
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// PaymentDetail links a WorkerPayment to one allocation.
// Amount is the allocation's worker amount at settlement time.
type PaymentDetail struct {
	ID           int64
	PaymentID    PaymentID
	AllocationID AllocationID
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// WorkerPayment is an aggregate disbursement to one worker. Immutable.
type WorkerPayment struct {
	ID              PaymentID
	WorkerID        WorkerID
	PaymentDate     Date
	Period          Period
	Total           decimal.Decimal
	Method          string
	ReferenceNumber string
	Notes           string
	Details         []PaymentDetail
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InvoiceDetail links a CompanyInvoice to one allocation.
// Amount is the allocation's company amount at settlement time.
type InvoiceDetail struct {
	ID           int64
	InvoiceID    InvoiceID
	AllocationID AllocationID
	Amount       decimal.Decimal
	CreatedAt    time.Time
}

// CompanyInvoice is an aggregate bill to one company.
// Only the status machine mutates it after creation.
type CompanyInvoice struct {
	ID              InvoiceID
	CompanyID       CompanyID
	InvoiceDate     Date
	DueDate         Date
	Period          Period
	Total           decimal.Decimal
	Status          InvoiceStatus
	Method          string
	ReferenceNumber string
	Notes           string
	Details         []InvoiceDetail
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WorkerPaymentRequest is the input to CreateWorkerPayment.
type WorkerPaymentRequest struct {
	WorkerID        WorkerID
	PaymentDate     Date
	Period          Period
	Method          string
	ReferenceNumber string
	Notes           string
	AllocationIDs   []AllocationID
}

// CompanyInvoiceRequest is the input to CreateCompanyInvoice.
type CompanyInvoiceRequest struct {
	CompanyID       CompanyID
	InvoiceDate     Date
	DueDate         Date
	Period          Period
	Method          string
	ReferenceNumber string
	Notes           string
	AllocationIDs   []AllocationID
}

// InvoiceStatusChange is the input to SetInvoiceStatus.
// Nil Method/ReferenceNumber keep the stored values.
type InvoiceStatusChange struct {
	InvoiceID       InvoiceID
	Status          InvoiceStatus
	Method          *string
	ReferenceNumber *string
}
