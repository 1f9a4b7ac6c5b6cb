/*
invoice.go - Invoice Status Machine

STATES:
  pending -> partial | paid
  partial -> paid
  paid    (terminal)

  Re-asserting the current state is accepted; it rewrites method and
  reference number. WithInvoiceDowngrade(true) accepts every pair.

SIDE EFFECT:
  Only a target of paid touches allocations: company_payment_status is set
  to paid on every allocation the invoice details reference, in the same
  transaction as the status update. Leaving paid never reverts them.
*/
package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoicePending: {InvoicePending, InvoicePartial, InvoicePaid},
	InvoicePartial: {InvoicePartial, InvoicePaid},
	InvoicePaid:    {InvoicePaid},
}

// CanTransition reports whether the strict state machine allows from -> to.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Service) SetInvoiceStatus(ctx context.Context, change InvoiceStatusChange) (*CompanyInvoice, error) {
	const op = "set_invoice_status"

	if !change.Status.Valid() {
		return nil, s.reject(op, invalid(ErrInvalidStatus, "status", "must be pending, partial or paid"))
	}

	var (
		result  *CompanyInvoice
		from    InvoiceStatus
		flipped int64
	)
	err := s.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.CompanyInvoice(ctx, change.InvoiceID)
		if err != nil {
			return storageErr("get company invoice", err)
		}
		if current == nil {
			return &NotFoundError{Entity: "company_invoice", ID: int64(change.InvoiceID)}
		}
		from = current.Status

		if !s.allowDowngrade && !CanTransition(from, change.Status) {
			return invalid(ErrInvalidStatus, "status",
				fmt.Sprintf("cannot move invoice from %s to %s", from, change.Status))
		}

		method, ref := current.Method, current.ReferenceNumber
		if change.Method != nil {
			method = *change.Method
		}
		if change.ReferenceNumber != nil {
			ref = *change.ReferenceNumber
		}

		now := s.timestamp()
		if err := tx.UpdateInvoiceStatus(ctx, change.InvoiceID, change.Status, method, ref, now); err != nil {
			return storageErr("update invoice status", err)
		}

		if change.Status == InvoicePaid {
			ids, err := tx.InvoiceAllocationIDs(ctx, change.InvoiceID)
			if err != nil {
				return storageErr("invoice allocations", err)
			}
			if len(ids) > 0 {
				flipped, err = tx.SetCompanyPaymentStatus(ctx, ids, PaymentPaid, nil, now)
				if err != nil {
					return storageErr("flip company status", err)
				}
			}
		}

		if err := appendAudit(ctx, tx, newAuditEntry(now, AuditInvoiceStatusChanged, SubjectCompanyInvoice, int64(change.InvoiceID), map[string]any{
			"from":   string(from),
			"to":     string(change.Status),
			"method": method,
		})); err != nil {
			return err
		}

		result, err = tx.CompanyInvoice(ctx, change.InvoiceID)
		return storageErr("get company invoice", err)
	})
	if err != nil {
		return nil, s.reject(op, storageErr(op, err), zap.Int64("invoice_id", int64(change.InvoiceID)))
	}

	s.recorder.InvoiceTransition(from, change.Status)
	s.log.Info("invoice status changed",
		zap.Int64("invoice_id", int64(change.InvoiceID)),
		zap.String("from", string(from)),
		zap.String("to", string(change.Status)),
		zap.Int64("allocations_flipped", flipped))
	return result, nil
}
