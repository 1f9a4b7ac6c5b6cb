/*
allocation.go - Allocation Store operations

OPERATIONS:
  CreateAllocation     NotFound / Inactive / InvalidAmount / Conflict
  UpdateAllocation     NotFound, then re-validates whatever changed
  DeleteAllocation     NotFound / AlreadySettled (referenced by any detail)
  GetAllocation, ListAllocations, CountAllocations
  UpdateWorkerPaymentStatus / UpdateCompanyPaymentStatus
                       manual status correction outside the aggregator

SETTLED OWNERSHIP:
  Moving a worker-paid allocation to another worker, or a company-paid
  allocation to another company, fails with AlreadySettled. Amount and text
  edits stay allowed; settled totals are protected by the detail snapshots.
*/
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// CREATE
// =============================================================================

func (s *Service) CreateAllocation(ctx context.Context, in NewAllocation) (*Allocation, error) {
	const op = "create_allocation"

	if in.Date.IsZero() {
		return nil, s.reject(op, invalid(ErrInvalidInput, "date", "is required"))
	}
	if !in.PeriodKind.Valid() {
		return nil, s.reject(op, invalid(ErrInvalidInput, "period_kind", "must be full_day or half_day"))
	}

	var created Allocation
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := requireWorker(ctx, tx, in.WorkerID); err != nil {
			return err
		}
		if err := requireCompany(ctx, tx, in.CompanyID); err != nil {
			return err
		}
		if in.ServiceTypeID != nil {
			if err := requireServiceType(ctx, tx, *in.ServiceTypeID); err != nil {
				return err
			}
		}
		if err := requirePositive("worker_amount", in.WorkerAmount); err != nil {
			return err
		}
		if err := requirePositive("company_amount", in.CompanyAmount); err != nil {
			return err
		}
		if err := s.guard.with(tx).Check(ctx, in.WorkerID, in.Date, 0); err != nil {
			return err
		}

		now := s.timestamp()
		created = Allocation{
			WorkerID:             in.WorkerID,
			CompanyID:            in.CompanyID,
			Date:                 in.Date,
			PeriodKind:           in.PeriodKind,
			WorkerAmount:         in.WorkerAmount,
			CompanyAmount:        in.CompanyAmount,
			ServiceTypeID:        in.ServiceTypeID,
			Location:             in.Location,
			Description:          in.Description,
			Notes:                in.Notes,
			WorkerPaymentStatus:  PaymentPending,
			CompanyPaymentStatus: PaymentPending,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := tx.InsertAllocation(ctx, &created); err != nil {
			return storageErr("insert allocation", translateUnique(err, in.WorkerID, in.Date))
		}

		return appendAudit(ctx, tx, newAuditEntry(now, AuditAllocationCreated, SubjectAllocation, int64(created.ID), map[string]any{
			"worker_id":      int64(created.WorkerID),
			"company_id":     int64(created.CompanyID),
			"date":           created.Date.String(),
			"worker_amount":  created.WorkerAmount.String(),
			"company_amount": created.CompanyAmount.String(),
		}))
	})
	if err != nil {
		return nil, s.reject(op, storageErr(op, err),
			zap.Int64("worker_id", int64(in.WorkerID)), zap.Stringer("date", in.Date))
	}

	s.recorder.AllocationWritten("create")
	s.log.Debug("allocation created",
		zap.Int64("allocation_id", int64(created.ID)),
		zap.Int64("worker_id", int64(created.WorkerID)),
		zap.Stringer("date", created.Date))
	return &created, nil
}

// =============================================================================
// UPDATE
// =============================================================================

func (s *Service) UpdateAllocation(ctx context.Context, id AllocationID, patch AllocationPatch) (*Allocation, error) {
	const op = "update_allocation"

	var updated Allocation
	err := s.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.Allocation(ctx, id)
		if err != nil {
			return storageErr("get allocation", err)
		}
		if current == nil {
			return &NotFoundError{Entity: "allocation", ID: int64(id)}
		}

		next := *current
		var changed []string

		if patch.WorkerID != nil && *patch.WorkerID != current.WorkerID {
			if current.WorkerPaymentStatus == PaymentPaid {
				return &AlreadySettledError{AllocationID: id, Side: SideWorker}
			}
			if err := requireWorker(ctx, tx, *patch.WorkerID); err != nil {
				return err
			}
			next.WorkerID = *patch.WorkerID
			changed = append(changed, "worker_id")
		}
		if patch.CompanyID != nil && *patch.CompanyID != current.CompanyID {
			if current.CompanyPaymentStatus == PaymentPaid {
				return &AlreadySettledError{AllocationID: id, Side: SideCompany}
			}
			if err := requireCompany(ctx, tx, *patch.CompanyID); err != nil {
				return err
			}
			next.CompanyID = *patch.CompanyID
			changed = append(changed, "company_id")
		}
		if patch.ClearServiceType {
			if next.ServiceTypeID != nil {
				changed = append(changed, "service_type_id")
			}
			next.ServiceTypeID = nil
		} else if patch.ServiceTypeID != nil && (current.ServiceTypeID == nil || *current.ServiceTypeID != *patch.ServiceTypeID) {
			if err := requireServiceType(ctx, tx, *patch.ServiceTypeID); err != nil {
				return err
			}
			st := *patch.ServiceTypeID
			next.ServiceTypeID = &st
			changed = append(changed, "service_type_id")
		}
		if patch.Date != nil && !patch.Date.Equal(current.Date) {
			if patch.Date.IsZero() {
				return invalid(ErrInvalidInput, "date", "is required")
			}
			next.Date = *patch.Date
			changed = append(changed, "date")
		}
		if patch.PeriodKind != nil && *patch.PeriodKind != current.PeriodKind {
			if !patch.PeriodKind.Valid() {
				return invalid(ErrInvalidInput, "period_kind", "must be full_day or half_day")
			}
			next.PeriodKind = *patch.PeriodKind
			changed = append(changed, "period_kind")
		}
		if patch.WorkerAmount != nil && !patch.WorkerAmount.Equal(current.WorkerAmount) {
			if err := requirePositive("worker_amount", *patch.WorkerAmount); err != nil {
				return err
			}
			next.WorkerAmount = *patch.WorkerAmount
			changed = append(changed, "worker_amount")
		}
		if patch.CompanyAmount != nil && !patch.CompanyAmount.Equal(current.CompanyAmount) {
			if err := requirePositive("company_amount", *patch.CompanyAmount); err != nil {
				return err
			}
			next.CompanyAmount = *patch.CompanyAmount
			changed = append(changed, "company_amount")
		}
		if patch.Location != nil && *patch.Location != current.Location {
			next.Location = *patch.Location
			changed = append(changed, "location")
		}
		if patch.Description != nil && *patch.Description != current.Description {
			next.Description = *patch.Description
			changed = append(changed, "description")
		}
		if patch.Notes != nil && *patch.Notes != current.Notes {
			next.Notes = *patch.Notes
			changed = append(changed, "notes")
		}

		if len(changed) == 0 {
			updated = *current
			return nil
		}

		if next.WorkerID != current.WorkerID || !next.Date.Equal(current.Date) {
			if err := s.guard.with(tx).Check(ctx, next.WorkerID, next.Date, id); err != nil {
				return err
			}
		}

		next.UpdatedAt = s.timestamp()
		if err := tx.UpdateAllocation(ctx, next); err != nil {
			return storageErr("update allocation", translateUnique(err, next.WorkerID, next.Date))
		}
		updated = next

		return appendAudit(ctx, tx, newAuditEntry(next.UpdatedAt, AuditAllocationUpdated, SubjectAllocation, int64(id), map[string]any{
			"changed": changed,
		}))
	})
	if err != nil {
		return nil, s.reject(op, storageErr(op, err), zap.Int64("allocation_id", int64(id)))
	}

	s.recorder.AllocationWritten("update")
	return &updated, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteAllocation removes an allocation that no settlement references.
func (s *Service) DeleteAllocation(ctx context.Context, id AllocationID) error {
	const op = "delete_allocation"

	err := s.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.Allocation(ctx, id)
		if err != nil {
			return storageErr("get allocation", err)
		}
		if current == nil {
			return &NotFoundError{Entity: "allocation", ID: int64(id)}
		}

		referenced, err := tx.IsAllocationReferenced(ctx, id)
		if err != nil {
			return storageErr("check references", err)
		}
		if referenced {
			return &AlreadySettledError{AllocationID: id}
		}

		if err := tx.DeleteAllocation(ctx, id); err != nil {
			if errors.Is(err, ErrAllocationReferenced) {
				return &AlreadySettledError{AllocationID: id}
			}
			return storageErr("delete allocation", err)
		}

		return appendAudit(ctx, tx, newAuditEntry(s.timestamp(), AuditAllocationDeleted, SubjectAllocation, int64(id), map[string]any{
			"worker_id":  int64(current.WorkerID),
			"company_id": int64(current.CompanyID),
			"date":       current.Date.String(),
		}))
	})
	if err != nil {
		return s.reject(op, storageErr(op, err), zap.Int64("allocation_id", int64(id)))
	}

	s.recorder.AllocationWritten("delete")
	return nil
}

// =============================================================================
// READ
// =============================================================================

func (s *Service) GetAllocation(ctx context.Context, id AllocationID) (*Allocation, error) {
	a, err := s.store.Allocation(ctx, id)
	if err != nil {
		return nil, storageErr("get allocation", err)
	}
	if a == nil {
		return nil, &NotFoundError{Entity: "allocation", ID: int64(id)}
	}
	return a, nil
}

func (s *Service) ListAllocations(ctx context.Context, filter AllocationFilter) ([]Allocation, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	out, err := s.store.ListAllocations(ctx, filter)
	if err != nil {
		return nil, storageErr("list allocations", err)
	}
	return out, nil
}

func (s *Service) CountAllocations(ctx context.Context, filter AllocationFilter) (int, error) {
	if err := validateFilter(filter); err != nil {
		return 0, err
	}
	n, err := s.store.CountAllocations(ctx, filter)
	if err != nil {
		return 0, storageErr("count allocations", err)
	}
	return n, nil
}

func validateFilter(f AllocationFilter) error {
	if !f.Sort.Valid() {
		return invalid(ErrInvalidInput, "sort", "unknown sort field "+string(f.Sort))
	}
	if f.Limit < 0 || f.Offset < 0 {
		return invalid(ErrInvalidInput, "pagination", "limit and offset must not be negative")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return invalid(ErrInvalidDateRange, "to", "is before from")
	}
	if f.WorkerPaymentStatus != nil && !f.WorkerPaymentStatus.Valid() {
		return invalid(ErrInvalidStatus, "worker_payment_status", "must be pending or paid")
	}
	if f.CompanyPaymentStatus != nil && !f.CompanyPaymentStatus.Valid() {
		return invalid(ErrInvalidStatus, "company_payment_status", "must be pending or paid")
	}
	return nil
}

// =============================================================================
// DIRECT STATUS FLIPS
// =============================================================================

// UpdateWorkerPaymentStatus sets the worker side without creating a payment.
func (s *Service) UpdateWorkerPaymentStatus(ctx context.Context, id AllocationID, status PaymentStatus) (*Allocation, error) {
	return s.updatePaymentStatus(ctx, id, SideWorker, status)
}

// UpdateCompanyPaymentStatus sets the company side without an invoice.
func (s *Service) UpdateCompanyPaymentStatus(ctx context.Context, id AllocationID, status PaymentStatus) (*Allocation, error) {
	return s.updatePaymentStatus(ctx, id, SideCompany, status)
}

func (s *Service) updatePaymentStatus(ctx context.Context, id AllocationID, side Side, status PaymentStatus) (*Allocation, error) {
	op := "update_" + string(side) + "_payment_status"

	if !status.Valid() {
		return nil, s.reject(op, invalid(ErrInvalidStatus, "status", "must be pending or paid"))
	}

	var result *Allocation
	err := s.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.Allocation(ctx, id)
		if err != nil {
			return storageErr("get allocation", err)
		}
		if current == nil {
			return &NotFoundError{Entity: "allocation", ID: int64(id)}
		}

		now := s.timestamp()
		ids := []AllocationID{id}
		action := AuditWorkerStatusChanged
		if side == SideCompany {
			action = AuditCompanyStatusChanged
			_, err = tx.SetCompanyPaymentStatus(ctx, ids, status, nil, now)
		} else {
			_, err = tx.SetWorkerPaymentStatus(ctx, ids, status, nil, now)
		}
		if err != nil {
			return storageErr("set payment status", err)
		}

		if err := appendAudit(ctx, tx, newAuditEntry(now, action, SubjectAllocation, int64(id), map[string]any{
			"from": string(current.StatusFor(side)),
			"to":   string(status),
		})); err != nil {
			return err
		}

		result, err = tx.Allocation(ctx, id)
		return storageErr("get allocation", err)
	})
	if err != nil {
		return nil, s.reject(op, storageErr(op, err), zap.Int64("allocation_id", int64(id)))
	}

	s.recorder.AllocationWritten("status")
	return result, nil
}

// =============================================================================
// REFERENCE CHECKS
// =============================================================================

func requireWorker(ctx context.Context, rd ReferenceData, id WorkerID) error {
	w, err := rd.Worker(ctx, id)
	if err != nil {
		return storageErr("get worker", err)
	}
	if w == nil {
		return &NotFoundError{Entity: "worker", ID: int64(id)}
	}
	if !w.Active() {
		return &InactiveError{Entity: "worker", ID: int64(id)}
	}
	return nil
}

func requireCompany(ctx context.Context, rd ReferenceData, id CompanyID) error {
	c, err := rd.Company(ctx, id)
	if err != nil {
		return storageErr("get company", err)
	}
	if c == nil {
		return &NotFoundError{Entity: "company", ID: int64(id)}
	}
	if !c.Active() {
		return &InactiveError{Entity: "company", ID: int64(id)}
	}
	return nil
}

func requireServiceType(ctx context.Context, rd ReferenceData, id ServiceTypeID) error {
	st, err := rd.ServiceType(ctx, id)
	if err != nil {
		return storageErr("get service type", err)
	}
	if st == nil {
		return &NotFoundError{Entity: "service_type", ID: int64(id)}
	}
	if !st.Active() {
		return &InactiveError{Entity: "service_type", ID: int64(id)}
	}
	return nil
}

func requirePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid(ErrInvalidAmount, field, "must be greater than zero")
	}
	return nil
}

func appendAudit(ctx context.Context, tx Store, entry AuditEntry) error {
	return storageErr("append audit", tx.AppendAudit(ctx, entry))
}
