/*
settlement.go - Settlement Aggregator

PURPOSE:
  Rolls a caller-chosen set of allocations into one WorkerPayment or one
  CompanyInvoice and flips the matching allocation status to paid.

STEPS (both settlement kinds):
  1. Reject empty allocation lists, duplicate ids and unknown parties
     (InvalidInput)
  2. Reject inverted periods (and, for invoices, due date < invoice date)
     with InvalidDateRange
  3. Resolve every id (NotFound)
  4. Check ownership (OwnershipMismatch) and status (AlreadySettled)
  5. Total = sum of snapshot amounts
  6. In ONE transaction: insert the settlement, its details, flip statuses
  7. Return the settlement with its details

DOUBLE SETTLEMENT:
  The status flip only touches rows still pending. If fewer rows change
  than were selected, a concurrent settlement got there first and the whole
  transaction rolls back with AlreadySettled. Detail rows are additionally
  unique per allocation in storage.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// WORKER PAYMENT
// =============================================================================

func (s *Service) CreateWorkerPayment(ctx context.Context, req WorkerPaymentRequest) (*WorkerPayment, error) {
	const op = "create_worker_payment"

	if err := validateSelection(req.AllocationIDs); err != nil {
		return nil, s.reject(op, err)
	}
	if req.PaymentDate.IsZero() {
		return nil, s.reject(op, invalid(ErrInvalidInput, "payment_date", "is required"))
	}

	var payment WorkerPayment
	err := s.store.WithTx(ctx, func(tx Store) error {
		worker, err := tx.Worker(ctx, req.WorkerID)
		if err != nil {
			return storageErr("get worker", err)
		}
		if worker == nil {
			return invalid(ErrInvalidInput, "worker_id", fmt.Sprintf("worker %d does not exist", req.WorkerID))
		}
		if err := req.Period.Validate(); err != nil {
			return err
		}

		allocations, err := resolveAllocations(ctx, tx, req.AllocationIDs)
		if err != nil {
			return err
		}
		amounts := make([]decimal.Decimal, 0, len(allocations))
		for _, a := range allocations {
			if a.WorkerID != req.WorkerID {
				return &OwnershipError{AllocationID: a.ID, Side: SideWorker, Expected: int64(req.WorkerID), Actual: int64(a.WorkerID)}
			}
			if a.WorkerPaymentStatus == PaymentPaid {
				return &AlreadySettledError{AllocationID: a.ID, Side: SideWorker}
			}
			amounts = append(amounts, a.WorkerAmount)
		}

		now := s.timestamp()
		payment = WorkerPayment{
			WorkerID:        req.WorkerID,
			PaymentDate:     req.PaymentDate,
			Period:          req.Period,
			Total:           SumAmounts(amounts...),
			Method:          req.Method,
			ReferenceNumber: req.ReferenceNumber,
			Notes:           req.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, a := range allocations {
			payment.Details = append(payment.Details, PaymentDetail{
				AllocationID: a.ID,
				Amount:       a.WorkerAmount,
				CreatedAt:    now,
			})
		}

		if err := tx.InsertWorkerPayment(ctx, &payment); err != nil {
			return translateDetail(ctx, tx, req.AllocationIDs, err, SideWorker, "insert worker payment")
		}

		pending := PaymentPending
		flipped, err := tx.SetWorkerPaymentStatus(ctx, req.AllocationIDs, PaymentPaid, &pending, now)
		if err != nil {
			return storageErr("flip worker status", err)
		}
		if flipped != int64(len(req.AllocationIDs)) {
			return raceLoser(ctx, tx, req.AllocationIDs, SideWorker)
		}

		return appendAudit(ctx, tx, newAuditEntry(now, AuditWorkerPaymentCreated, SubjectWorkerPayment, int64(payment.ID), map[string]any{
			"worker_id":      int64(payment.WorkerID),
			"total":          payment.Total.String(),
			"allocation_ids": allocationIDsPayload(req.AllocationIDs),
		}))
	})
	if err != nil {
		return nil, s.reject(op, storageErr(op, err), zap.Int64("worker_id", int64(req.WorkerID)))
	}

	s.recorder.SettlementCreated(SideWorker, len(payment.Details), payment.Total)
	s.log.Info("worker payment created",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.Int64("worker_id", int64(payment.WorkerID)),
		zap.Int("allocations", len(payment.Details)),
		zap.String("total", payment.Total.String()))
	return &payment, nil
}

// =============================================================================
// COMPANY INVOICE
// =============================================================================

func (s *Service) CreateCompanyInvoice(ctx context.Context, req CompanyInvoiceRequest) (*CompanyInvoice, error) {
	const op = "create_company_invoice"

	if err := validateSelection(req.AllocationIDs); err != nil {
		return nil, s.reject(op, err)
	}
	if req.InvoiceDate.IsZero() || req.DueDate.IsZero() {
		return nil, s.reject(op, invalid(ErrInvalidInput, "invoice_date", "invoice and due dates are required"))
	}

	var invoice CompanyInvoice
	err := s.store.WithTx(ctx, func(tx Store) error {
		company, err := tx.Company(ctx, req.CompanyID)
		if err != nil {
			return storageErr("get company", err)
		}
		if company == nil {
			return invalid(ErrInvalidInput, "company_id", fmt.Sprintf("company %d does not exist", req.CompanyID))
		}
		if err := req.Period.Validate(); err != nil {
			return err
		}
		if req.DueDate.Before(req.InvoiceDate) {
			return invalid(ErrInvalidDateRange, "due_date",
				"due date "+req.DueDate.String()+" is before invoice date "+req.InvoiceDate.String())
		}

		allocations, err := resolveAllocations(ctx, tx, req.AllocationIDs)
		if err != nil {
			return err
		}
		amounts := make([]decimal.Decimal, 0, len(allocations))
		for _, a := range allocations {
			if a.CompanyID != req.CompanyID {
				return &OwnershipError{AllocationID: a.ID, Side: SideCompany, Expected: int64(req.CompanyID), Actual: int64(a.CompanyID)}
			}
			if a.CompanyPaymentStatus == PaymentPaid {
				return &AlreadySettledError{AllocationID: a.ID, Side: SideCompany}
			}
			amounts = append(amounts, a.CompanyAmount)
		}

		now := s.timestamp()
		invoice = CompanyInvoice{
			CompanyID:       req.CompanyID,
			InvoiceDate:     req.InvoiceDate,
			DueDate:         req.DueDate,
			Period:          req.Period,
			Total:           SumAmounts(amounts...),
			Status:          InvoicePending,
			Method:          req.Method,
			ReferenceNumber: req.ReferenceNumber,
			Notes:           req.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, a := range allocations {
			invoice.Details = append(invoice.Details, InvoiceDetail{
				AllocationID: a.ID,
				Amount:       a.CompanyAmount,
				CreatedAt:    now,
			})
		}

		if err := tx.InsertCompanyInvoice(ctx, &invoice); err != nil {
			return translateDetail(ctx, tx, req.AllocationIDs, err, SideCompany, "insert company invoice")
		}

		pending := PaymentPending
		flipped, err := tx.SetCompanyPaymentStatus(ctx, req.AllocationIDs, PaymentPaid, &pending, now)
		if err != nil {
			return storageErr("flip company status", err)
		}
		if flipped != int64(len(req.AllocationIDs)) {
			return raceLoser(ctx, tx, req.AllocationIDs, SideCompany)
		}

		return appendAudit(ctx, tx, newAuditEntry(now, AuditCompanyInvoiceCreated, SubjectCompanyInvoice, int64(invoice.ID), map[string]any{
			"company_id":     int64(invoice.CompanyID),
			"total":          invoice.Total.String(),
			"allocation_ids": allocationIDsPayload(req.AllocationIDs),
		}))
	})
	if err != nil {
		return nil, s.reject(op, storageErr(op, err), zap.Int64("company_id", int64(req.CompanyID)))
	}

	s.recorder.SettlementCreated(SideCompany, len(invoice.Details), invoice.Total)
	s.log.Info("company invoice created",
		zap.Int64("invoice_id", int64(invoice.ID)),
		zap.Int64("company_id", int64(invoice.CompanyID)),
		zap.Int("allocations", len(invoice.Details)),
		zap.String("total", invoice.Total.String()))
	return &invoice, nil
}

// =============================================================================
// READ
// =============================================================================

func (s *Service) GetWorkerPayment(ctx context.Context, id PaymentID) (*WorkerPayment, error) {
	p, err := s.store.WorkerPayment(ctx, id)
	if err != nil {
		return nil, storageErr("get worker payment", err)
	}
	if p == nil {
		return nil, &NotFoundError{Entity: "worker_payment", ID: int64(id)}
	}
	return p, nil
}

func (s *Service) ListWorkerPayments(ctx context.Context, filter PaymentFilter) ([]WorkerPayment, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, invalid(ErrInvalidDateRange, "to", "is before from")
	}
	out, err := s.store.ListWorkerPayments(ctx, filter)
	if err != nil {
		return nil, storageErr("list worker payments", err)
	}
	return out, nil
}

func (s *Service) GetCompanyInvoice(ctx context.Context, id InvoiceID) (*CompanyInvoice, error) {
	inv, err := s.store.CompanyInvoice(ctx, id)
	if err != nil {
		return nil, storageErr("get company invoice", err)
	}
	if inv == nil {
		return nil, &NotFoundError{Entity: "company_invoice", ID: int64(id)}
	}
	return inv, nil
}

func (s *Service) ListCompanyInvoices(ctx context.Context, filter InvoiceFilter) ([]CompanyInvoice, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, invalid(ErrInvalidStatus, "status", "must be pending, partial or paid")
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, invalid(ErrInvalidDateRange, "to", "is before from")
	}
	out, err := s.store.ListCompanyInvoices(ctx, filter)
	if err != nil {
		return nil, storageErr("list company invoices", err)
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func validateSelection(ids []AllocationID) error {
	if len(ids) == 0 {
		return invalid(ErrInvalidInput, "allocation_ids", "at least one allocation is required")
	}
	seen := make(map[AllocationID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return invalid(ErrInvalidInput, "allocation_ids", fmt.Sprintf("allocation %d listed twice", id))
		}
		seen[id] = true
	}
	return nil
}

// resolveAllocations loads ids in request order, failing on the first
// missing one.
func resolveAllocations(ctx context.Context, tx Store, ids []AllocationID) ([]Allocation, error) {
	found, err := tx.AllocationsByID(ctx, ids)
	if err != nil {
		return nil, storageErr("resolve allocations", err)
	}
	byID := make(map[AllocationID]Allocation, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	out := make([]Allocation, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, &NotFoundError{Entity: "allocation", ID: int64(id)}
		}
		out = append(out, a)
	}
	return out, nil
}

// raceLoser names the first allocation that is no longer pending.
func raceLoser(ctx context.Context, tx Store, ids []AllocationID, side Side) error {
	current, err := tx.AllocationsByID(ctx, ids)
	if err == nil {
		for _, a := range current {
			if a.StatusFor(side) != PaymentPending {
				return &AlreadySettledError{AllocationID: a.ID, Side: side}
			}
		}
	}
	return &AlreadySettledError{AllocationID: ids[0], Side: side}
}

// translateDetail maps the one-detail-per-side backstop to AlreadySettled.
func translateDetail(ctx context.Context, tx Store, ids []AllocationID, err error, side Side, op string) error {
	var (
		settled *AlreadySettledError
		exists  *DetailExistsError
	)
	switch {
	case errors.As(err, &settled):
		return err
	case errors.As(err, &exists):
		return &AlreadySettledError{AllocationID: exists.AllocationID, Side: side}
	case errors.Is(err, ErrDetailExists):
		return raceLoser(ctx, tx, ids, side)
	}
	return storageErr(op, err)
}
