package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-ledger/ledger"
	"github.com/warp/staffing-ledger/ledger/store"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ledger.InvoiceStatus
		ok       bool
	}{
		{ledger.InvoicePending, ledger.InvoicePartial, true},
		{ledger.InvoicePending, ledger.InvoicePaid, true},
		{ledger.InvoicePartial, ledger.InvoicePaid, true},
		{ledger.InvoicePartial, ledger.InvoicePartial, true},
		{ledger.InvoicePartial, ledger.InvoicePending, false},
		{ledger.InvoicePaid, ledger.InvoicePending, false},
		{ledger.InvoicePaid, ledger.InvoicePartial, false},
		{ledger.InvoicePaid, ledger.InvoicePaid, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, ledger.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

// invoiceWithStatusReset builds an invoice whose allocations were put back
// to pending by hand, so the paid side effect is observable.
func invoiceWithStatusReset(t *testing.T, f *fixture) (*ledger.CompanyInvoice, []ledger.Allocation) {
	t.Helper()
	c := f.company(t, "Acme")
	w := f.worker(t, "Alice")
	a1 := f.allocate(t, w, c, march(3), "100", "150")
	a2 := f.allocate(t, w, c, march(4), "100", "150")
	inv, err := f.svc.CreateCompanyInvoice(f.ctx, invoiceRequest(c, a1, a2))
	require.NoError(t, err)
	for _, a := range []ledger.Allocation{a1, a2} {
		_, err := f.svc.UpdateCompanyPaymentStatus(f.ctx, a.ID, ledger.PaymentPending)
		require.NoError(t, err)
	}
	return inv, []ledger.Allocation{a1, a2}
}

func TestSetInvoiceStatus_Partial_LeavesAllocationsAlone(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		inv, allocs := invoiceWithStatusReset(t, f)

		updated, err := f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{
			InvoiceID:       inv.ID,
			Status:          ledger.InvoicePartial,
			Method:          strPtr("cheque"),
			ReferenceNumber: strPtr("CHQ-77"),
		})
		require.NoError(t, err)

		assert.Equal(t, ledger.InvoicePartial, updated.Status)
		assert.Equal(t, "cheque", updated.Method)
		assert.Equal(t, "CHQ-77", updated.ReferenceNumber)
		for _, a := range allocs {
			assert.Equal(t, ledger.PaymentPending, f.get(t, a.ID).CompanyPaymentStatus)
		}
	})
}

func TestSetInvoiceStatus_Paid_FlipsEveryReferencedAllocation(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		inv, allocs := invoiceWithStatusReset(t, f)
		outsider := f.allocate(t, f.worker(t, "Bob"), inv.CompanyID, march(3), "100", "150")

		updated, err := f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{InvoiceID: inv.ID, Status: ledger.InvoicePaid})
		require.NoError(t, err)

		assert.Equal(t, ledger.InvoicePaid, updated.Status)
		for _, a := range allocs {
			assert.Equal(t, ledger.PaymentPaid, f.get(t, a.ID).CompanyPaymentStatus)
			assert.Equal(t, ledger.PaymentPending, f.get(t, a.ID).WorkerPaymentStatus)
		}
		assert.Equal(t, ledger.PaymentPending, f.get(t, outsider.ID).CompanyPaymentStatus)
	})
}

func TestSetInvoiceStatus_KeepsMethodWhenOmitted(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		c := f.company(t, "Acme")
		a := f.allocate(t, f.worker(t, "Alice"), c, march(3), "100", "150")
		req := invoiceRequest(c, a)
		req.Method = "wire"
		inv, err := f.svc.CreateCompanyInvoice(f.ctx, req)
		require.NoError(t, err)

		updated, err := f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{InvoiceID: inv.ID, Status: ledger.InvoicePartial})
		require.NoError(t, err)
		assert.Equal(t, "wire", updated.Method)
	})
}

func TestSetInvoiceStatus_Rejections(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		inv, _ := invoiceWithStatusReset(t, f)

		_, err := f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{InvoiceID: 9999, Status: ledger.InvoicePaid})
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		_, err = f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{InvoiceID: inv.ID, Status: "void"})
		assert.ErrorIs(t, err, ledger.ErrInvalidStatus)

		_, err = f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{InvoiceID: inv.ID, Status: ledger.InvoicePaid})
		require.NoError(t, err)

		// paid is terminal in the strict machine
		_, err = f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{InvoiceID: inv.ID, Status: ledger.InvoicePending})
		assert.ErrorIs(t, err, ledger.ErrInvalidStatus)

		stored, err := f.svc.GetCompanyInvoice(f.ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.InvoicePaid, stored.Status)
	})
}

func TestSetInvoiceStatus_Downgrade_DoesNotRevertAllocations(t *testing.T) {
	// GIVEN: A service that accepts downgrades, and a paid invoice
	// WHEN: Moving the invoice back to pending
	// THEN: The invoice changes but its allocations stay paid

	f := newFixture(t, store.NewTxMemory(), ledger.WithInvoiceDowngrade(true))
	inv, allocs := invoiceWithStatusReset(t, f)

	_, err := f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{InvoiceID: inv.ID, Status: ledger.InvoicePaid})
	require.NoError(t, err)

	updated, err := f.svc.SetInvoiceStatus(f.ctx, ledger.InvoiceStatusChange{InvoiceID: inv.ID, Status: ledger.InvoicePending})
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoicePending, updated.Status)

	for _, a := range allocs {
		assert.Equal(t, ledger.PaymentPaid, f.get(t, a.ID).CompanyPaymentStatus)
	}

	entries, err := f.svc.ListAudit(f.ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditInvoiceStatusChanged}})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "paid", entries[0].Payload["from"])
	assert.Equal(t, "pending", entries[0].Payload["to"])
}
