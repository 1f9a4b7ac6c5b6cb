package ledger_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-ledger/ledger"
)

// =============================================================================
// DATES AND PERIODS
// =============================================================================

func TestParseDate(t *testing.T) {
	d, err := ledger.ParseDate(" 2025-03-07 ")
	require.NoError(t, err)
	assert.Equal(t, ledger.NewDate(2025, time.March, 7), d)
	assert.Equal(t, "2025-03-07", d.String())

	_, err = ledger.ParseDate("07/03/2025")
	assert.Error(t, err)
}

func TestDate_TextRoundTrip(t *testing.T) {
	var d ledger.Date
	require.NoError(t, d.UnmarshalText([]byte("2024-02-29")))
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", string(b))

	require.NoError(t, d.UnmarshalText(nil))
	assert.True(t, d.IsZero())
	assert.Equal(t, "", d.String())
}

func TestEndOfMonth(t *testing.T) {
	assert.Equal(t, ledger.NewDate(2024, time.February, 29), ledger.EndOfMonth(2024, time.February))
	assert.Equal(t, ledger.NewDate(2025, time.February, 28), ledger.EndOfMonth(2025, time.February))
	assert.Equal(t, ledger.NewDate(2025, time.December, 31), ledger.EndOfMonth(2025, time.December))
}

func TestPeriod(t *testing.T) {
	p := ledger.MonthPeriod(2025, time.March)
	assert.Len(t, p.Days(), 31)
	assert.True(t, p.Contains(ledger.NewDate(2025, time.March, 31)))
	assert.False(t, p.Contains(ledger.NewDate(2025, time.April, 1)))
	assert.NoError(t, p.Validate())

	prev := ledger.MonthPeriod(2025, time.January).Previous()
	assert.Equal(t, ledger.MonthPeriod(2024, time.December), prev)

	inverted := ledger.Period{Start: p.End, End: p.Start}
	assert.ErrorIs(t, inverted.Validate(), ledger.ErrInvalidDateRange)
	assert.ErrorIs(t, ledger.Period{}.Validate(), ledger.ErrInvalidDateRange)
}

// =============================================================================
// MONEY AND ENUMS
// =============================================================================

func TestSumAmounts_Exact(t *testing.T) {
	// 0.1 + 0.2 is exactly 0.3 in decimal
	assert.True(t, dec("0.3").Equal(ledger.SumAmounts(dec("0.1"), dec("0.2"))))
	assert.True(t, ledger.SumAmounts().IsZero())
}

func TestPeriodKind(t *testing.T) {
	assert.True(t, ledger.PeriodHalfDay.Valid())
	assert.False(t, ledger.PeriodKind("night").Valid())
	assert.True(t, dec("0.5").Equal(ledger.PeriodHalfDay.Days()))
	assert.True(t, dec("1").Equal(ledger.PeriodFullDay.Days()))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ledger.Kind
	}{
		{nil, ""},
		{&ledger.NotFoundError{Entity: "worker", ID: 1}, ledger.KindNotFound},
		{&ledger.InactiveError{Entity: "company", ID: 2}, ledger.KindInactive},
		{&ledger.ConflictError{WorkerID: 1, Date: march(3)}, ledger.KindConflict},
		{&ledger.OwnershipError{AllocationID: 1, Side: ledger.SideWorker}, ledger.KindOwnershipMismatch},
		{&ledger.AlreadySettledError{AllocationID: 1}, ledger.KindAlreadySettled},
		{&ledger.ValidationError{Err: ledger.ErrInvalidAmount, Field: "x"}, ledger.KindInvalidAmount},
		{&ledger.StorageError{Op: "insert", Err: errors.New("disk full")}, ledger.KindStorage},
		{fmt.Errorf("wrapped: %w", &ledger.NotFoundError{Entity: "allocation", ID: 3}), ledger.KindNotFound},
		{errors.New("mystery"), ledger.KindUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ledger.KindOf(tc.err), "%v", tc.err)
	}
}

func TestStorageError_UnwrapsBoth(t *testing.T) {
	cause := errors.New("database is locked")
	err := &ledger.StorageError{Op: "commit", Err: cause}

	assert.ErrorIs(t, err, ledger.ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.False(t, ledger.IsClientError(err))
	assert.True(t, ledger.IsClientError(&ledger.ConflictError{}))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "worker 4 already allocated on 2025-03-03 (allocation 9)",
		(&ledger.ConflictError{WorkerID: 4, Date: march(3), ExistingID: 9}).Error())
	assert.Equal(t, "allocation 9 is referenced by a settlement",
		(&ledger.AlreadySettledError{AllocationID: 9}).Error())
	assert.Equal(t, "allocation 9 already settled on company side",
		(&ledger.AlreadySettledError{AllocationID: 9, Side: ledger.SideCompany}).Error())
}
