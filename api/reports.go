package api

import (
	"net/http"
	"time"

	"github.com/warp/staffing-ledger/ledger"
)

// =============================================================================
// REPORT HANDLERS - read-only views from the reporting package
// =============================================================================
//
// Month-based reports take ?year=&month=. Period-based reports take
// ?from=&to=, or ?year=&month= for a whole month; with neither, the
// current month is used.

// Calendar - GET /api/reports/calendar?year=2025&month=3
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	year, month, err := h.parseMonth(r)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	cal, err := h.Reports.Calendar(r.Context(), year, month)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// Summary - GET /api/reports/summary?from=2025-03-01&to=2025-03-31
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	s, err := h.Reports.Summary(r.Context(), period)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// MonthOverMonth - GET /api/reports/month-over-month?year=2025&month=3
func (h *Handler) MonthOverMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := h.parseMonth(r)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	cmp, err := h.Reports.MonthOverMonth(r.Context(), year, month)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// WorkerRollup - GET /api/reports/workers
func (h *Handler) WorkerRollup(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	rows, err := h.Reports.WorkerRollup(r.Context(), period)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// CompanyRollup - GET /api/reports/companies
func (h *Handler) CompanyRollup(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	rows, err := h.Reports.CompanyRollup(r.Context(), period)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// SettlementSummary - GET /api/reports/settlements
func (h *Handler) SettlementSummary(w http.ResponseWriter, r *http.Request) {
	period, err := h.parsePeriod(r)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	s, err := h.Reports.SettlementSummary(r.Context(), period)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) parseMonth(r *http.Request) (int, time.Month, error) {
	q := queryParser{values: r.URL.Query()}
	today := ledger.DateOf(h.now())
	year, month := today.Year(), today.Month()
	if y := q.integer("year"); y != nil {
		year = int(*y)
	}
	if m := q.integer("month"); m != nil {
		month = time.Month(*m)
	}
	return year, month, q.err
}

func (h *Handler) parsePeriod(r *http.Request) (ledger.Period, error) {
	q := queryParser{values: r.URL.Query()}
	from, to := q.dateParam("from"), q.dateParam("to")
	if q.err != nil {
		return ledger.Period{}, q.err
	}
	if from != nil || to != nil {
		if from == nil || to == nil {
			return ledger.Period{}, &ledger.ValidationError{
				Err: ledger.ErrInvalidDateRange, Field: "period", Message: "from and to must be given together",
			}
		}
		return ledger.Period{Start: *from, End: *to}, nil
	}

	year, month, err := h.parseMonth(r)
	if err != nil {
		return ledger.Period{}, err
	}
	if month < time.January || month > time.December {
		return ledger.Period{}, &ledger.ValidationError{Err: ledger.ErrInvalidInput, Field: "month", Message: "must be 1-12"}
	}
	return ledger.MonthPeriod(year, month), nil
}
