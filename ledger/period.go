package ledger

import "time"

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is the inclusive range [Start, End]. Settlements declare one, and
// reports aggregate over one.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// MonthPeriod returns the calendar month containing year/month.
func MonthPeriod(year int, month time.Month) Period {
	return Period{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// Validate rejects a period whose end precedes its start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return &ValidationError{Err: ErrInvalidDateRange, Field: "period", Message: "start and end are required"}
	}
	if p.End.Before(p.Start) {
		return &ValidationError{
			Err:     ErrInvalidDateRange,
			Field:   "period",
			Message: "end " + p.End.String() + " is before start " + p.Start.String(),
		}
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns every day in the period.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Previous returns the calendar month before the one containing Start.
func (p Period) Previous() Period {
	prev := StartOfMonth(p.Start.Year(), p.Start.Month()).AddMonths(-1)
	return MonthPeriod(prev.Year(), prev.Month())
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
