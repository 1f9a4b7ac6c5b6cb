/*
Package reporting derives read-only views over the ledger.

PURPOSE:
  Answers "how did the month go?" without ever writing. Every view is a
  pure fold over allocations and settlements inside a Period.

VIEWS:
  Calendar:          Allocations bucketed by day for one month
  Summary:           Revenue, cost, profit and paid/pending splits
  MonthOverMonth:    Summary for a month vs the month before
  WorkerRollup:      Per-worker days, earned, paid, outstanding
  CompanyRollup:     Per-company billed, collected, outstanding
  SettlementSummary: Payment and invoice totals, invoices by status

DEFINITIONS:
  Revenue = sum of company amounts of allocations dated in the period
  Cost    = sum of worker amounts of the same allocations
  Profit  = Revenue - Cost

  Paid/pending splits use the allocation statuses, not the settlement
  tables, so a manual status correction shows up immediately.

EMPTY PERIODS:
  Every view returns zero totals and empty slices, never an error.

SEE ALSO:
  - ledger/store.go: Source of the data
  - api/reports.go: HTTP surface
*/
package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/staffing-ledger/ledger"
)

// Source is the read side the projection needs. ledger.Store satisfies it.
type Source interface {
	Workers(ctx context.Context) ([]ledger.Worker, error)
	Companies(ctx context.Context) ([]ledger.Company, error)
	ListAllocations(ctx context.Context, filter ledger.AllocationFilter) ([]ledger.Allocation, error)
	ListWorkerPayments(ctx context.Context, filter ledger.PaymentFilter) ([]ledger.WorkerPayment, error)
	ListCompanyInvoices(ctx context.Context, filter ledger.InvoiceFilter) ([]ledger.CompanyInvoice, error)
}

type Projection struct {
	source Source
}

func NewProjection(source Source) *Projection {
	return &Projection{source: source}
}

// =============================================================================
// CALENDAR
// =============================================================================

type CalendarEntry struct {
	AllocationID         ledger.AllocationID  `json:"allocation_id"`
	WorkerID             ledger.WorkerID      `json:"worker_id"`
	WorkerName           string               `json:"worker_name"`
	CompanyID            ledger.CompanyID     `json:"company_id"`
	CompanyName          string               `json:"company_name"`
	Color                string               `json:"color"`
	PeriodKind           ledger.PeriodKind    `json:"period_kind"`
	WorkerPaymentStatus  ledger.PaymentStatus `json:"worker_payment_status"`
	CompanyPaymentStatus ledger.PaymentStatus `json:"company_payment_status"`
}

type CalendarDay struct {
	Date    ledger.Date     `json:"date"`
	Entries []CalendarEntry `json:"entries"`
}

type LegendEntry struct {
	CompanyID ledger.CompanyID `json:"company_id"`
	Name      string           `json:"name"`
	Color     string           `json:"color"`
}

type Calendar struct {
	Year   int           `json:"year"`
	Month  time.Month    `json:"month"`
	Days   []CalendarDay `json:"days"`
	Legend []LegendEntry `json:"legend"` // companies with at least one allocation this month
}

// Calendar lists every day of the month, each with its allocations.
func (p *Projection) Calendar(ctx context.Context, year int, month time.Month) (*Calendar, error) {
	if month < time.January || month > time.December {
		return nil, &ledger.ValidationError{Err: ledger.ErrInvalidInput, Field: "month", Message: "must be 1-12"}
	}
	period := ledger.MonthPeriod(year, month)

	allocations, err := p.allocations(ctx, period)
	if err != nil {
		return nil, err
	}
	workers, companies, err := p.names(ctx)
	if err != nil {
		return nil, err
	}
	colors := CompanyColors(companies)

	byDay := make(map[string][]CalendarEntry)
	used := make(map[ledger.CompanyID]bool)
	for _, a := range allocations {
		byDay[a.Date.String()] = append(byDay[a.Date.String()], CalendarEntry{
			AllocationID:         a.ID,
			WorkerID:             a.WorkerID,
			WorkerName:           workers[a.WorkerID],
			CompanyID:            a.CompanyID,
			CompanyName:          nameOf(companies, a.CompanyID),
			Color:                colors[a.CompanyID],
			PeriodKind:           a.PeriodKind,
			WorkerPaymentStatus:  a.WorkerPaymentStatus,
			CompanyPaymentStatus: a.CompanyPaymentStatus,
		})
		used[a.CompanyID] = true
	}

	cal := &Calendar{Year: year, Month: month, Legend: []LegendEntry{}}
	for _, day := range period.Days() {
		entries := byDay[day.String()]
		if entries == nil {
			entries = []CalendarEntry{}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].WorkerName < entries[j].WorkerName })
		cal.Days = append(cal.Days, CalendarDay{Date: day, Entries: entries})
	}
	for _, c := range companies {
		if used[c.ID] {
			cal.Legend = append(cal.Legend, LegendEntry{CompanyID: c.ID, Name: c.Name, Color: colors[c.ID]})
		}
	}
	return cal, nil
}

// palette is assigned to companies in id order and wraps around.
var palette = []string{
	"#4E79A7", "#F28E2B", "#E15759", "#76B7B2", "#59A14F",
	"#EDC948", "#B07AA1", "#FF9DA7", "#9C755F", "#BAB0AC",
}

// CompanyColors assigns a stable colour per company. The result depends only
// on the set of company ids.
func CompanyColors(companies []ledger.Company) map[ledger.CompanyID]string {
	ids := make([]ledger.CompanyID, len(companies))
	for i, c := range companies {
		ids[i] = c.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make(map[ledger.CompanyID]string, len(ids))
	for i, id := range ids {
		out[id] = palette[i%len(palette)]
	}
	return out
}

// =============================================================================
// SUMMARY
// =============================================================================

type Summary struct {
	Period      ledger.Period    `json:"period"`
	Allocations int              `json:"allocations"`
	Days        decimal.Decimal  `json:"days"`        // full day = 1, half day = 0.5
	Revenue     decimal.Decimal  `json:"revenue"`
	Cost        decimal.Decimal  `json:"cost"`
	Profit      decimal.Decimal  `json:"profit"`
	Margin      *decimal.Decimal `json:"margin"`      // percent of revenue; nil when revenue is zero

	WorkerPaid     decimal.Decimal `json:"worker_paid"`
	WorkerPending  decimal.Decimal `json:"worker_pending"`
	CompanyPaid    decimal.Decimal `json:"company_paid"`
	CompanyPending decimal.Decimal `json:"company_pending"`
}

func (p *Projection) Summary(ctx context.Context, period ledger.Period) (*Summary, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	allocations, err := p.allocations(ctx, period)
	if err != nil {
		return nil, err
	}
	return summarize(period, allocations), nil
}

func summarize(period ledger.Period, allocations []ledger.Allocation) *Summary {
	s := &Summary{
		Period:         period,
		Days:           decimal.Zero,
		Revenue:        decimal.Zero,
		Cost:           decimal.Zero,
		WorkerPaid:     decimal.Zero,
		WorkerPending:  decimal.Zero,
		CompanyPaid:    decimal.Zero,
		CompanyPending: decimal.Zero,
	}
	for _, a := range allocations {
		s.Allocations++
		s.Days = s.Days.Add(a.PeriodKind.Days())
		s.Revenue = s.Revenue.Add(a.CompanyAmount)
		s.Cost = s.Cost.Add(a.WorkerAmount)
		if a.WorkerPaymentStatus == ledger.PaymentPaid {
			s.WorkerPaid = s.WorkerPaid.Add(a.WorkerAmount)
		} else {
			s.WorkerPending = s.WorkerPending.Add(a.WorkerAmount)
		}
		if a.CompanyPaymentStatus == ledger.PaymentPaid {
			s.CompanyPaid = s.CompanyPaid.Add(a.CompanyAmount)
		} else {
			s.CompanyPending = s.CompanyPending.Add(a.CompanyAmount)
		}
	}
	s.Profit = s.Revenue.Sub(s.Cost)
	s.Margin = percentOf(s.Profit, s.Revenue)
	return s
}

// =============================================================================
// MONTH OVER MONTH
// =============================================================================

type Variance struct {
	Change  decimal.Decimal  `json:"change"`
	Percent *decimal.Decimal `json:"percent"` // nil when the previous value is zero
}

type MonthComparison struct {
	Current  *Summary `json:"current"`
	Previous *Summary `json:"previous"`
	Revenue  Variance `json:"revenue"`
	Cost     Variance `json:"cost"`
	Profit   Variance `json:"profit"`
}

func (p *Projection) MonthOverMonth(ctx context.Context, year int, month time.Month) (*MonthComparison, error) {
	if month < time.January || month > time.December {
		return nil, &ledger.ValidationError{Err: ledger.ErrInvalidInput, Field: "month", Message: "must be 1-12"}
	}
	current := ledger.MonthPeriod(year, month)
	cur, err := p.Summary(ctx, current)
	if err != nil {
		return nil, err
	}
	prev, err := p.Summary(ctx, current.Previous())
	if err != nil {
		return nil, err
	}
	return &MonthComparison{
		Current:  cur,
		Previous: prev,
		Revenue:  variance(cur.Revenue, prev.Revenue),
		Cost:     variance(cur.Cost, prev.Cost),
		Profit:   variance(cur.Profit, prev.Profit),
	}, nil
}

func variance(current, previous decimal.Decimal) Variance {
	change := current.Sub(previous)
	return Variance{Change: change, Percent: percentOf(change, previous.Abs())}
}

// percentOf returns part/whole*100 rounded to two places, or nil for a zero whole.
func percentOf(part, whole decimal.Decimal) *decimal.Decimal {
	if whole.IsZero() {
		return nil
	}
	pct := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2)
	return &pct
}

// =============================================================================
// ROLLUPS
// =============================================================================

type WorkerRow struct {
	WorkerID    ledger.WorkerID `json:"worker_id"`
	Name        string          `json:"name"`
	Allocations int             `json:"allocations"`
	Days        decimal.Decimal `json:"days"`
	Earned      decimal.Decimal `json:"earned"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// WorkerRollup returns one row per worker with allocations in the period,
// ordered by name.
func (p *Projection) WorkerRollup(ctx context.Context, period ledger.Period) ([]WorkerRow, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	allocations, err := p.allocations(ctx, period)
	if err != nil {
		return nil, err
	}
	workers, _, err := p.names(ctx)
	if err != nil {
		return nil, err
	}

	rows := make(map[ledger.WorkerID]*WorkerRow)
	for _, a := range allocations {
		row, ok := rows[a.WorkerID]
		if !ok {
			row = &WorkerRow{
				WorkerID:    a.WorkerID,
				Name:        workers[a.WorkerID],
				Days:        decimal.Zero,
				Earned:      decimal.Zero,
				Paid:        decimal.Zero,
				Outstanding: decimal.Zero,
			}
			rows[a.WorkerID] = row
		}
		row.Allocations++
		row.Days = row.Days.Add(a.PeriodKind.Days())
		row.Earned = row.Earned.Add(a.WorkerAmount)
		if a.WorkerPaymentStatus == ledger.PaymentPaid {
			row.Paid = row.Paid.Add(a.WorkerAmount)
		} else {
			row.Outstanding = row.Outstanding.Add(a.WorkerAmount)
		}
	}

	out := make([]WorkerRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out, nil
}

type CompanyRow struct {
	CompanyID   ledger.CompanyID `json:"company_id"`
	Name        string           `json:"name"`
	Color       string           `json:"color"`
	Allocations int              `json:"allocations"`
	Billed      decimal.Decimal  `json:"billed"`
	Collected   decimal.Decimal  `json:"collected"`
	Outstanding decimal.Decimal  `json:"outstanding"`
}

// CompanyRollup returns one row per company with allocations in the period,
// ordered by billed amount, largest first.
func (p *Projection) CompanyRollup(ctx context.Context, period ledger.Period) ([]CompanyRow, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	allocations, err := p.allocations(ctx, period)
	if err != nil {
		return nil, err
	}
	_, companies, err := p.names(ctx)
	if err != nil {
		return nil, err
	}
	colors := CompanyColors(companies)

	rows := make(map[ledger.CompanyID]*CompanyRow)
	for _, a := range allocations {
		row, ok := rows[a.CompanyID]
		if !ok {
			row = &CompanyRow{
				CompanyID:   a.CompanyID,
				Name:        nameOf(companies, a.CompanyID),
				Color:       colors[a.CompanyID],
				Billed:      decimal.Zero,
				Collected:   decimal.Zero,
				Outstanding: decimal.Zero,
			}
			rows[a.CompanyID] = row
		}
		row.Allocations++
		row.Billed = row.Billed.Add(a.CompanyAmount)
		if a.CompanyPaymentStatus == ledger.PaymentPaid {
			row.Collected = row.Collected.Add(a.CompanyAmount)
		} else {
			row.Outstanding = row.Outstanding.Add(a.CompanyAmount)
		}
	}

	out := make([]CompanyRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Billed.Equal(out[j].Billed) {
			return out[i].Billed.GreaterThan(out[j].Billed)
		}
		return out[i].CompanyID < out[j].CompanyID
	})
	return out, nil
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

type StatusTotal struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type Settlements struct {
	Period       ledger.Period                        `json:"period"`
	Payments     int                                  `json:"payments"`
	PaymentTotal decimal.Decimal                      `json:"payment_total"`
	Invoices     int                                  `json:"invoices"`
	InvoiceTotal decimal.Decimal                      `json:"invoice_total"`
	ByStatus     map[ledger.InvoiceStatus]StatusTotal `json:"by_status"`
}

// SettlementSummary counts payments by payment date and invoices by invoice
// date within the period.
func (p *Projection) SettlementSummary(ctx context.Context, period ledger.Period) (*Settlements, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	from, to := period.Start, period.End

	payments, err := p.source.ListWorkerPayments(ctx, ledger.PaymentFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	invoices, err := p.source.ListCompanyInvoices(ctx, ledger.InvoiceFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	s := &Settlements{
		Period:       period,
		PaymentTotal: decimal.Zero,
		InvoiceTotal: decimal.Zero,
		ByStatus: map[ledger.InvoiceStatus]StatusTotal{
			ledger.InvoicePending: {Total: decimal.Zero},
			ledger.InvoicePartial: {Total: decimal.Zero},
			ledger.InvoicePaid:    {Total: decimal.Zero},
		},
	}
	for _, pay := range payments {
		s.Payments++
		s.PaymentTotal = s.PaymentTotal.Add(pay.Total)
	}
	for _, inv := range invoices {
		s.Invoices++
		s.InvoiceTotal = s.InvoiceTotal.Add(inv.Total)
		st := s.ByStatus[inv.Status]
		st.Count++
		st.Total = st.Total.Add(inv.Total)
		s.ByStatus[inv.Status] = st
	}
	return s, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (p *Projection) allocations(ctx context.Context, period ledger.Period) ([]ledger.Allocation, error) {
	from, to := period.Start, period.End
	out, err := p.source.ListAllocations(ctx, ledger.AllocationFilter{From: &from, To: &to, Sort: ledger.SortByDate})
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return out, nil
}

func (p *Projection) names(ctx context.Context) (map[ledger.WorkerID]string, []ledger.Company, error) {
	workers, err := p.source.Workers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list workers: %w", err)
	}
	companies, err := p.source.Companies(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list companies: %w", err)
	}
	names := make(map[ledger.WorkerID]string, len(workers))
	for _, w := range workers {
		names[w.ID] = w.Name
	}
	return names, companies, nil
}

func nameOf(companies []ledger.Company, id ledger.CompanyID) string {
	for _, c := range companies {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}
