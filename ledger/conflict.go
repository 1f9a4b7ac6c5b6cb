/*
conflict.go - One allocation per worker per day

INVARIANT:
  No two allocations share (WorkerID, Date). Period kind does not matter:
  a half-day at one company and a half-day at another on the same date is
  still a conflict.

TWO LAYERS:
  1. ConflictGuard: application-level check, excluding the record being
     updated, so callers get a ConflictError naming the occupying allocation.
  2. Storage unique index on (worker_id, date): closes the race between two
     concurrent creates. The store reports ErrUniqueWorkerDate and the
     Service converts it to a ConflictError without ExistingID.
*/
package ledger

import (
	"context"
	"errors"
)

// slotReader is the part of Store the guard needs.
type slotReader interface {
	AllocationAt(ctx context.Context, workerID WorkerID, date Date, exclude AllocationID) (*Allocation, error)
}

type ConflictGuard struct {
	store slotReader
}

func NewConflictGuard(store slotReader) *ConflictGuard {
	return &ConflictGuard{store: store}
}

// Occupied reports whether an allocation other than exclude holds the slot.
// Pass exclude = 0 on create.
func (g *ConflictGuard) Occupied(ctx context.Context, workerID WorkerID, date Date, exclude AllocationID) (bool, AllocationID, error) {
	existing, err := g.store.AllocationAt(ctx, workerID, date, exclude)
	if err != nil {
		return false, 0, storageErr("allocation at", err)
	}
	if existing == nil {
		return false, 0, nil
	}
	return true, existing.ID, nil
}

// Check returns a *ConflictError when the slot is taken.
func (g *ConflictGuard) Check(ctx context.Context, workerID WorkerID, date Date, exclude AllocationID) error {
	taken, existingID, err := g.Occupied(ctx, workerID, date, exclude)
	if err != nil {
		return err
	}
	if taken {
		return &ConflictError{WorkerID: workerID, Date: date, ExistingID: existingID}
	}
	return nil
}

// with binds the guard to a transaction-scoped store.
func (g *ConflictGuard) with(store slotReader) *ConflictGuard {
	return &ConflictGuard{store: store}
}

// translateUnique converts a storage uniqueness violation into a ConflictError.
func translateUnique(err error, workerID WorkerID, date Date) error {
	if errors.Is(err, ErrUniqueWorkerDate) {
		return &ConflictError{WorkerID: workerID, Date: date}
	}
	return err
}
