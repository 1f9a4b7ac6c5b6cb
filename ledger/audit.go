package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AUDIT LOG - Who changed what, written in the same transaction as the change
// =============================================================================

type AuditEntry struct {
	ID          string
	OccurredAt  time.Time
	Action      AuditAction
	SubjectType string // "allocation", "worker_payment", "company_invoice"
	SubjectID   int64
	Payload     map[string]any
}

type AuditAction string

const (
	AuditAllocationCreated     AuditAction = "allocation_created"
	AuditAllocationUpdated     AuditAction = "allocation_updated"
	AuditAllocationDeleted     AuditAction = "allocation_deleted"
	AuditWorkerStatusChanged   AuditAction = "worker_payment_status_changed"
	AuditCompanyStatusChanged  AuditAction = "company_payment_status_changed"
	AuditWorkerPaymentCreated  AuditAction = "worker_payment_created"
	AuditCompanyInvoiceCreated AuditAction = "company_invoice_created"
	AuditInvoiceStatusChanged  AuditAction = "invoice_status_changed"
)

const (
	SubjectAllocation     = "allocation"
	SubjectWorkerPayment  = "worker_payment"
	SubjectCompanyInvoice = "company_invoice"
)

type AuditFilter struct {
	SubjectType string
	SubjectID   *int64
	Actions     []AuditAction
	Limit       int
}

func newAuditEntry(at time.Time, action AuditAction, subjectType string, subjectID int64, payload map[string]any) AuditEntry {
	return AuditEntry{
		ID:          uuid.NewString(),
		OccurredAt:  at,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Payload:     payload,
	}
}

func allocationIDsPayload(ids []AllocationID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// ListAudit returns entries newest first.
func (s *Service) ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	if filter.Limit < 0 {
		return nil, invalid(ErrInvalidInput, "limit", "must not be negative")
	}
	out, err := s.store.ListAudit(ctx, filter)
	if err != nil {
		return nil, storageErr("list audit", err)
	}
	return out, nil
}
