/*
errors.go - Error taxonomy for the ledger

PURPOSE:
  Every ledger operation either succeeds or fails with exactly one Kind.
  Callers classify with errors.Is against the sentinels, or with KindOf.

ERROR CATEGORIES:
  1. Reference errors - NotFound, Inactive
  2. Input errors - InvalidAmount, InvalidDateRange, InvalidStatus, InvalidInput
  3. Invariant errors - Conflict, OwnershipMismatch, AlreadySettled
  4. Storage errors - anything the store could not do

STORE SENTINELS:
  Store implementations report constraint violations with ErrUniqueWorkerDate,
  ErrDetailExists (as a *DetailExistsError naming the allocation) and
  ErrAllocationReferenced. The Service translates them
  into Conflict / AlreadySettled; store callers never see them.

RETRIES:
  The ledger never retries. A settlement retried after a transient failure
  must be re-validated, so blind retry is the caller's decision.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrInactive          = errors.New("inactive")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("worker already allocated on date")
	ErrOwnershipMismatch = errors.New("allocation ownership mismatch")
	ErrAlreadySettled    = errors.New("allocation already settled")
	ErrStorage           = errors.New("storage failure")
)

// Store-level constraint violations.
var (
	ErrUniqueWorkerDate     = errors.New("unique (worker, date) violated")
	ErrDetailExists         = errors.New("allocation already has a settlement detail")
	ErrAllocationReferenced = errors.New("allocation referenced by settlement detail")
)

// =============================================================================
// KIND
// =============================================================================

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInactive          Kind = "inactive"
	KindInvalidAmount     Kind = "invalid_amount"
	KindInvalidDateRange  Kind = "invalid_date_range"
	KindInvalidStatus     Kind = "invalid_status"
	KindInvalidInput      Kind = "invalid_input"
	KindConflict          Kind = "conflict"
	KindOwnershipMismatch Kind = "ownership_mismatch"
	KindAlreadySettled    Kind = "already_settled"
	KindStorage           Kind = "storage"
	KindUnknown           Kind = "unknown"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrInactive, KindInactive},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInvalidDateRange, KindInvalidDateRange},
	{ErrInvalidStatus, KindInvalidStatus},
	{ErrInvalidInput, KindInvalidInput},
	{ErrConflict, KindConflict},
	{ErrOwnershipMismatch, KindOwnershipMismatch},
	{ErrAlreadySettled, KindAlreadySettled},
	{ErrStorage, KindStorage},
}

// KindOf classifies err. Returns "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InactiveError names the soft-deleted entity.
type InactiveError struct {
	Entity string
	ID     int64
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("%s %d is inactive", e.Entity, e.ID)
}

func (e *InactiveError) Unwrap() error { return ErrInactive }

// ValidationError is a caller-supplied value that violates a constraint.
// Err is one of ErrInvalidAmount, ErrInvalidDateRange, ErrInvalidStatus,
// ErrInvalidInput.
type ValidationError struct {
	Err     error
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError is a second allocation for a worker-date slot.
type ConflictError struct {
	WorkerID   WorkerID
	Date       Date
	ExistingID AllocationID // zero when detected by the storage constraint
}

func (e *ConflictError) Error() string {
	if e.ExistingID != 0 {
		return fmt.Sprintf("worker %d already allocated on %s (allocation %d)", e.WorkerID, e.Date, e.ExistingID)
	}
	return fmt.Sprintf("worker %d already allocated on %s", e.WorkerID, e.Date)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// OwnershipError is an allocation selected into another party's settlement.
type OwnershipError struct {
	AllocationID AllocationID
	Side         Side
	Expected     int64
	Actual       int64
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("allocation %d belongs to %s %d, not %d",
		e.AllocationID, e.Side, e.Actual, e.Expected)
}

func (e *OwnershipError) Unwrap() error { return ErrOwnershipMismatch }

// AlreadySettledError is an allocation whose side is already paid, or one
// referenced by a settlement detail when deletion is attempted.
type AlreadySettledError struct {
	AllocationID AllocationID
	Side         Side // empty when the allocation is merely referenced
}

func (e *AlreadySettledError) Error() string {
	if e.Side == "" {
		return fmt.Sprintf("allocation %d is referenced by a settlement", e.AllocationID)
	}
	return fmt.Sprintf("allocation %d already settled on %s side", e.AllocationID, e.Side)
}

func (e *AlreadySettledError) Unwrap() error { return ErrAlreadySettled }

// DetailExistsError is returned by stores when an allocation already has a
// settlement detail on the side being written.
type DetailExistsError struct {
	AllocationID AllocationID
}

func (e *DetailExistsError) Error() string {
	return fmt.Sprintf("allocation %d: %v", e.AllocationID, ErrDetailExists)
}

func (e *DetailExistsError) Unwrap() error { return ErrDetailExists }

// StorageError wraps a store failure. It matches both ErrStorage and the
// underlying error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the caller can fix the request.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindStorage, KindUnknown, "":
		return false
	default:
		return true
	}
}

func invalid(sentinel error, field, message string) error {
	return &ValidationError{Err: sentinel, Field: field, Message: message}
}

// storageErr passes ledger errors through and wraps everything else.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
