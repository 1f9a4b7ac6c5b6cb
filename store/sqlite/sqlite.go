/*
Package sqlite provides a SQLite-backed implementation of the ledger storage
interfaces.

INTERFACES IMPLEMENTED:
  ledger.TxStore:    Allocations, settlements, status flips, audit
  ledger.Directory:  Workers, companies, service types

KEY TABLES:
  allocations:              One row per worker-day engagement
  worker_payments:          Aggregate payouts
  worker_payment_details:   Snapshot amount per settled allocation
  company_invoices:         Aggregate bills with status
  company_invoice_details:  Snapshot amount per billed allocation
  audit_log:                Append-only mutation history

CONSTRAINTS:
  - idx_allocations_worker_date: one allocation per (worker, date)
  - *_details.allocation_id UNIQUE: an allocation settles once per side
  - details -> allocations ON DELETE RESTRICT: settled rows cannot vanish

  Violations come back as ledger.ErrUniqueWorkerDate, ledger.ErrDetailExists
  and ledger.ErrAllocationReferenced.

CONCURRENCY:
  The pool is capped at one connection, so every transaction is serialized
  by database/sql and ":memory:" databases share one schema. Inside WithTx
  every read and write goes through the *sql.Tx.

STORAGE FORMATS:
  Dates as YYYY-MM-DD, timestamps as fixed-width UTC text, amounts as
  decimal strings (shopspring/decimal implements Scanner and Valuer).

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - migrate.go: Versioned schema via golang-migrate
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/staffing-ledger/ledger"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements ledger.TxStore and ledger.Directory using SQLite.
type Store struct {
	conn
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries every query. Store binds it to the pool, WithTx to a *sql.Tx.
type conn struct {
	q queryer
}

// New opens the database at dbPath and applies migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{conn: conn{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"audit_log",
		"company_invoice_details", "company_invoices",
		"worker_payment_details", "worker_payments",
		"allocations", "service_types", "companies", "workers",
		"sqlite_sequence",
	}
	return s.WithTx(ctx, func(tx ledger.Store) error {
		q := tx.(*conn).q
		for _, table := range tables {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// =============================================================================
// REFERENCE DATA (ledger.Directory interface)
// =============================================================================

func (c *conn) Worker(ctx context.Context, id ledger.WorkerID) (*ledger.Worker, error) {
	var (
		w                    ledger.Worker
		deletedAt            sql.NullString
		createdAt, updatedAt string
	)
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, email, phone, deleted_at, created_at, updated_at FROM workers WHERE id = ?", id,
	).Scan(&w.ID, &w.Name, &w.Email, &w.Phone, &deletedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	w.DeletedAt = parseNullTime(deletedAt)
	w.CreatedAt, w.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return &w, nil
}

func (c *conn) Workers(ctx context.Context) ([]ledger.Worker, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, name, email, phone, deleted_at, created_at, updated_at FROM workers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var out []ledger.Worker
	for rows.Next() {
		var (
			w                    ledger.Worker
			deletedAt            sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.Email, &w.Phone, &deletedAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		w.DeletedAt = parseNullTime(deletedAt)
		w.CreatedAt, w.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (c *conn) CreateWorker(ctx context.Context, w *ledger.Worker) error {
	now := stamp(w.CreatedAt)
	res, err := c.q.ExecContext(ctx,
		"INSERT INTO workers (name, email, phone, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		w.Name, w.Email, w.Phone, now, now)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	w.ID = ledger.WorkerID(id)
	w.CreatedAt = parseTime(now)
	w.UpdatedAt = w.CreatedAt
	return nil
}

func (c *conn) DeactivateWorker(ctx context.Context, id ledger.WorkerID, at time.Time) error {
	return c.deactivate(ctx, "workers", "worker", int64(id), at)
}

func (c *conn) Company(ctx context.Context, id ledger.CompanyID) (*ledger.Company, error) {
	var (
		co                   ledger.Company
		deletedAt            sql.NullString
		createdAt, updatedAt string
	)
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, contact_name, email, deleted_at, created_at, updated_at FROM companies WHERE id = ?", id,
	).Scan(&co.ID, &co.Name, &co.ContactName, &co.Email, &deletedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	co.DeletedAt = parseNullTime(deletedAt)
	co.CreatedAt, co.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return &co, nil
}

func (c *conn) Companies(ctx context.Context) ([]ledger.Company, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, name, contact_name, email, deleted_at, created_at, updated_at FROM companies ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var out []ledger.Company
	for rows.Next() {
		var (
			co                   ledger.Company
			deletedAt            sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&co.ID, &co.Name, &co.ContactName, &co.Email, &deletedAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		co.DeletedAt = parseNullTime(deletedAt)
		co.CreatedAt, co.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		out = append(out, co)
	}
	return out, rows.Err()
}

func (c *conn) CreateCompany(ctx context.Context, co *ledger.Company) error {
	now := stamp(co.CreatedAt)
	res, err := c.q.ExecContext(ctx,
		"INSERT INTO companies (name, contact_name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		co.Name, co.ContactName, co.Email, now, now)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	co.ID = ledger.CompanyID(id)
	co.CreatedAt = parseTime(now)
	co.UpdatedAt = co.CreatedAt
	return nil
}

func (c *conn) DeactivateCompany(ctx context.Context, id ledger.CompanyID, at time.Time) error {
	return c.deactivate(ctx, "companies", "company", int64(id), at)
}

func (c *conn) ServiceType(ctx context.Context, id ledger.ServiceTypeID) (*ledger.ServiceType, error) {
	var (
		st                   ledger.ServiceType
		deletedAt            sql.NullString
		createdAt, updatedAt string
	)
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, description, deleted_at, created_at, updated_at FROM service_types WHERE id = ?", id,
	).Scan(&st.ID, &st.Name, &st.Description, &deletedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service type: %w", err)
	}
	st.DeletedAt = parseNullTime(deletedAt)
	st.CreatedAt, st.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return &st, nil
}

func (c *conn) ServiceTypes(ctx context.Context) ([]ledger.ServiceType, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, name, description, deleted_at, created_at, updated_at FROM service_types ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list service types: %w", err)
	}
	defer rows.Close()

	var out []ledger.ServiceType
	for rows.Next() {
		var (
			st                   ledger.ServiceType
			deletedAt            sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Description, &deletedAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan service type: %w", err)
		}
		st.DeletedAt = parseNullTime(deletedAt)
		st.CreatedAt, st.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (c *conn) CreateServiceType(ctx context.Context, st *ledger.ServiceType) error {
	now := stamp(st.CreatedAt)
	res, err := c.q.ExecContext(ctx,
		"INSERT INTO service_types (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)",
		st.Name, st.Description, now, now)
	if err != nil {
		return fmt.Errorf("failed to create service type: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to create service type: %w", err)
	}
	st.ID = ledger.ServiceTypeID(id)
	st.CreatedAt = parseTime(now)
	st.UpdatedAt = st.CreatedAt
	return nil
}

func (c *conn) DeactivateServiceType(ctx context.Context, id ledger.ServiceTypeID, at time.Time) error {
	return c.deactivate(ctx, "service_types", "service_type", int64(id), at)
}

func (c *conn) deactivate(ctx context.Context, table, entity string, id int64, at time.Time) error {
	ts := at.UTC().Format(timeLayout)
	res, err := c.q.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = ?, updated_at = ? WHERE id = ?", ts, ts, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate %s: %w", entity, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

const allocationColumns = `id, worker_id, company_id, work_date, period_kind, worker_amount, company_amount,
	service_type_id, location, description, notes, worker_payment_status, company_payment_status,
	created_at, updated_at`

func (c *conn) InsertAllocation(ctx context.Context, a *ledger.Allocation) error {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO allocations
		(worker_id, company_id, work_date, period_kind, worker_amount, company_amount,
		 service_type_id, location, description, notes, worker_payment_status, company_payment_status,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.WorkerID, a.CompanyID, a.Date.String(), a.PeriodKind, a.WorkerAmount, a.CompanyAmount,
		nullServiceType(a.ServiceTypeID), a.Location, a.Description, a.Notes,
		a.WorkerPaymentStatus, a.CompanyPaymentStatus,
		stamp(a.CreatedAt), stamp(a.UpdatedAt),
	)
	if err != nil {
		return translate(err, "failed to insert allocation")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	a.ID = ledger.AllocationID(id)
	return nil
}

func (c *conn) UpdateAllocation(ctx context.Context, a ledger.Allocation) error {
	_, err := c.q.ExecContext(ctx, `
		UPDATE allocations SET
			worker_id = ?, company_id = ?, work_date = ?, period_kind = ?,
			worker_amount = ?, company_amount = ?, service_type_id = ?,
			location = ?, description = ?, notes = ?,
			worker_payment_status = ?, company_payment_status = ?, updated_at = ?
		WHERE id = ?`,
		a.WorkerID, a.CompanyID, a.Date.String(), a.PeriodKind,
		a.WorkerAmount, a.CompanyAmount, nullServiceType(a.ServiceTypeID),
		a.Location, a.Description, a.Notes,
		a.WorkerPaymentStatus, a.CompanyPaymentStatus, stamp(a.UpdatedAt),
		a.ID,
	)
	if err != nil {
		return translate(err, "failed to update allocation")
	}
	return nil
}

func (c *conn) DeleteAllocation(ctx context.Context, id ledger.AllocationID) error {
	if _, err := c.q.ExecContext(ctx, "DELETE FROM allocations WHERE id = ?", id); err != nil {
		if isForeignKeyError(err) {
			return ledger.ErrAllocationReferenced
		}
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	return nil
}

func (c *conn) Allocation(ctx context.Context, id ledger.AllocationID) (*ledger.Allocation, error) {
	list, err := c.queryAllocations(ctx, "SELECT "+allocationColumns+" FROM allocations WHERE id = ?", id)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (c *conn) AllocationsByID(ctx context.Context, ids []ledger.AllocationID) ([]ledger.Allocation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return c.queryAllocations(ctx,
		"SELECT "+allocationColumns+" FROM allocations WHERE id IN ("+placeholders(len(ids))+") ORDER BY id",
		args...)
}

func (c *conn) ListAllocations(ctx context.Context, f ledger.AllocationFilter) ([]ledger.Allocation, error) {
	where, args := allocationWhere(f)
	query := "SELECT " + allocationColumns + " FROM allocations" + where + orderBy(f.Sort, f.Descending)
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}
	return c.queryAllocations(ctx, query, args...)
}

func (c *conn) CountAllocations(ctx context.Context, f ledger.AllocationFilter) (int, error) {
	where, args := allocationWhere(f)
	var n int
	if err := c.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM allocations"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count allocations: %w", err)
	}
	return n, nil
}

func (c *conn) AllocationAt(ctx context.Context, workerID ledger.WorkerID, date ledger.Date, exclude ledger.AllocationID) (*ledger.Allocation, error) {
	list, err := c.queryAllocations(ctx,
		"SELECT "+allocationColumns+" FROM allocations WHERE worker_id = ? AND work_date = ? AND id != ?",
		workerID, date.String(), exclude)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (c *conn) IsAllocationReferenced(ctx context.Context, id ledger.AllocationID) (bool, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM worker_payment_details WHERE allocation_id = ?)
		     + (SELECT COUNT(*) FROM company_invoice_details WHERE allocation_id = ?)`,
		id, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check allocation references: %w", err)
	}
	return n > 0, nil
}

func (c *conn) SetWorkerPaymentStatus(ctx context.Context, ids []ledger.AllocationID, to ledger.PaymentStatus, onlyFrom *ledger.PaymentStatus, at time.Time) (int64, error) {
	return c.setStatus(ctx, "worker_payment_status", ids, to, onlyFrom, at)
}

func (c *conn) SetCompanyPaymentStatus(ctx context.Context, ids []ledger.AllocationID, to ledger.PaymentStatus, onlyFrom *ledger.PaymentStatus, at time.Time) (int64, error) {
	return c.setStatus(ctx, "company_payment_status", ids, to, onlyFrom, at)
}

// setStatus is the conditional flip: with onlyFrom set, rows already moved
// by a concurrent settlement are not counted.
func (c *conn) setStatus(ctx context.Context, column string, ids []ledger.AllocationID, to ledger.PaymentStatus, onlyFrom *ledger.PaymentStatus, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{to, stamp(at)}
	for _, id := range ids {
		args = append(args, id)
	}
	query := "UPDATE allocations SET " + column + " = ?, updated_at = ? WHERE id IN (" + placeholders(len(ids)) + ")"
	if onlyFrom != nil {
		query += " AND " + column + " = ?"
		args = append(args, *onlyFrom)
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to set %s: %w", column, err)
	}
	return res.RowsAffected()
}

func (c *conn) queryAllocations(ctx context.Context, query string, args ...any) ([]ledger.Allocation, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var out []ledger.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAllocation(rows *sql.Rows) (ledger.Allocation, error) {
	var (
		a                    ledger.Allocation
		workDate             string
		serviceType          sql.NullInt64
		createdAt, updatedAt string
	)
	err := rows.Scan(
		&a.ID, &a.WorkerID, &a.CompanyID, &workDate, &a.PeriodKind,
		&a.WorkerAmount, &a.CompanyAmount, &serviceType,
		&a.Location, &a.Description, &a.Notes,
		&a.WorkerPaymentStatus, &a.CompanyPaymentStatus,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return a, fmt.Errorf("failed to scan allocation: %w", err)
	}
	if a.Date, err = ledger.ParseDate(workDate); err != nil {
		return a, fmt.Errorf("failed to scan allocation %d: %w", a.ID, err)
	}
	if serviceType.Valid {
		st := ledger.ServiceTypeID(serviceType.Int64)
		a.ServiceTypeID = &st
	}
	a.CreatedAt, a.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	return a, nil
}

func allocationWhere(f ledger.AllocationFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.WorkerID != nil {
		clauses = append(clauses, "worker_id = ?")
		args = append(args, *f.WorkerID)
	}
	if f.CompanyID != nil {
		clauses = append(clauses, "company_id = ?")
		args = append(args, *f.CompanyID)
	}
	if f.From != nil {
		clauses = append(clauses, "work_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		clauses = append(clauses, "work_date <= ?")
		args = append(args, f.To.String())
	}
	if f.WorkerPaymentStatus != nil {
		clauses = append(clauses, "worker_payment_status = ?")
		args = append(args, *f.WorkerPaymentStatus)
	}
	if f.CompanyPaymentStatus != nil {
		clauses = append(clauses, "company_payment_status = ?")
		args = append(args, *f.CompanyPaymentStatus)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var sortColumns = map[ledger.SortField][]string{
	ledger.SortByDate:      {"work_date", "id"},
	ledger.SortByWorker:    {"worker_id", "work_date", "id"},
	ledger.SortByCompany:   {"company_id", "work_date", "id"},
	ledger.SortByCreatedAt: {"created_at", "id"},
	ledger.SortByID:        {"id"},
}

// orderBy only ever emits whitelisted column names.
func orderBy(field ledger.SortField, desc bool) string {
	cols, ok := sortColumns[field]
	if !ok {
		cols = sortColumns[ledger.SortByDate]
	}
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col
		if desc {
			parts[i] += " DESC"
		}
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// =============================================================================
// WORKER PAYMENTS
// =============================================================================

func (c *conn) InsertWorkerPayment(ctx context.Context, p *ledger.WorkerPayment) error {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO worker_payments
		(worker_id, payment_date, period_start, period_end, total, method, reference_number, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.WorkerID, p.PaymentDate.String(), p.Period.Start.String(), p.Period.End.String(),
		p.Total, p.Method, p.ReferenceNumber, p.Notes, stamp(p.CreatedAt), stamp(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert worker payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to insert worker payment: %w", err)
	}
	p.ID = ledger.PaymentID(id)

	for i := range p.Details {
		d := &p.Details[i]
		d.PaymentID = p.ID
		res, err := c.q.ExecContext(ctx,
			"INSERT INTO worker_payment_details (payment_id, allocation_id, amount, created_at) VALUES (?, ?, ?, ?)",
			d.PaymentID, d.AllocationID, d.Amount, stamp(d.CreatedAt))
		if err != nil {
			return detailErr(translate(err, "failed to insert payment detail"), d.AllocationID)
		}
		if d.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to insert payment detail: %w", err)
		}
	}
	return nil
}

const paymentColumns = "id, worker_id, payment_date, period_start, period_end, total, method, reference_number, notes, created_at, updated_at"

func (c *conn) WorkerPayment(ctx context.Context, id ledger.PaymentID) (*ledger.WorkerPayment, error) {
	list, err := c.queryPayments(ctx, "SELECT "+paymentColumns+" FROM worker_payments WHERE id = ?", id)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (c *conn) ListWorkerPayments(ctx context.Context, f ledger.PaymentFilter) ([]ledger.WorkerPayment, error) {
	var (
		clauses []string
		args    []any
	)
	if f.WorkerID != nil {
		clauses = append(clauses, "worker_id = ?")
		args = append(args, *f.WorkerID)
	}
	clauses, args = dateRange(clauses, args, "payment_date", f.From, f.To)

	query := "SELECT " + paymentColumns + " FROM worker_payments"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return c.queryPayments(ctx, query+" ORDER BY payment_date DESC, id DESC", args...)
}

func (c *conn) queryPayments(ctx context.Context, query string, args ...any) ([]ledger.WorkerPayment, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query worker payments: %w", err)
	}

	var out []ledger.WorkerPayment
	for rows.Next() {
		var (
			p                       ledger.WorkerPayment
			paymentDate, start, end string
			createdAt, updatedAt    string
		)
		if err := rows.Scan(&p.ID, &p.WorkerID, &paymentDate, &start, &end, &p.Total,
			&p.Method, &p.ReferenceNumber, &p.Notes, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan worker payment: %w", err)
		}
		p.PaymentDate, _ = ledger.ParseDate(paymentDate)
		p.Period.Start, _ = ledger.ParseDate(start)
		p.Period.End, _ = ledger.ParseDate(end)
		p.CreatedAt, p.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Details are loaded after the cursor closes: the pool has one connection.
	for i := range out {
		details, err := c.paymentDetails(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Details = details
	}
	return out, nil
}

func (c *conn) paymentDetails(ctx context.Context, id ledger.PaymentID) ([]ledger.PaymentDetail, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, payment_id, allocation_id, amount, created_at FROM worker_payment_details WHERE payment_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment details: %w", err)
	}
	defer rows.Close()

	var out []ledger.PaymentDetail
	for rows.Next() {
		var (
			d         ledger.PaymentDetail
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.PaymentID, &d.AllocationID, &d.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment detail: %w", err)
		}
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// =============================================================================
// COMPANY INVOICES
// =============================================================================

func (c *conn) InsertCompanyInvoice(ctx context.Context, inv *ledger.CompanyInvoice) error {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO company_invoices
		(company_id, invoice_date, due_date, period_start, period_end, total, status,
		 method, reference_number, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.CompanyID, inv.InvoiceDate.String(), inv.DueDate.String(),
		inv.Period.Start.String(), inv.Period.End.String(), inv.Total, inv.Status,
		inv.Method, inv.ReferenceNumber, inv.Notes, stamp(inv.CreatedAt), stamp(inv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert company invoice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to insert company invoice: %w", err)
	}
	inv.ID = ledger.InvoiceID(id)

	for i := range inv.Details {
		d := &inv.Details[i]
		d.InvoiceID = inv.ID
		res, err := c.q.ExecContext(ctx,
			"INSERT INTO company_invoice_details (invoice_id, allocation_id, amount, created_at) VALUES (?, ?, ?, ?)",
			d.InvoiceID, d.AllocationID, d.Amount, stamp(d.CreatedAt))
		if err != nil {
			return detailErr(translate(err, "failed to insert invoice detail"), d.AllocationID)
		}
		if d.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to insert invoice detail: %w", err)
		}
	}
	return nil
}

const invoiceColumns = `id, company_id, invoice_date, due_date, period_start, period_end, total, status,
	method, reference_number, notes, created_at, updated_at`

func (c *conn) CompanyInvoice(ctx context.Context, id ledger.InvoiceID) (*ledger.CompanyInvoice, error) {
	list, err := c.queryInvoices(ctx, "SELECT "+invoiceColumns+" FROM company_invoices WHERE id = ?", id)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (c *conn) ListCompanyInvoices(ctx context.Context, f ledger.InvoiceFilter) ([]ledger.CompanyInvoice, error) {
	var (
		clauses []string
		args    []any
	)
	if f.CompanyID != nil {
		clauses = append(clauses, "company_id = ?")
		args = append(args, *f.CompanyID)
	}
	if f.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *f.Status)
	}
	clauses, args = dateRange(clauses, args, "invoice_date", f.From, f.To)

	query := "SELECT " + invoiceColumns + " FROM company_invoices"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return c.queryInvoices(ctx, query+" ORDER BY invoice_date DESC, id DESC", args...)
}

func (c *conn) UpdateInvoiceStatus(ctx context.Context, id ledger.InvoiceID, status ledger.InvoiceStatus, method, ref string, at time.Time) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE company_invoices SET status = ?, method = ?, reference_number = ?, updated_at = ? WHERE id = ?",
		status, method, ref, stamp(at), id)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update invoice status: invoice %d has no row", id)
	}
	return nil
}

func (c *conn) InvoiceAllocationIDs(ctx context.Context, id ledger.InvoiceID) ([]ledger.AllocationID, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT allocation_id FROM company_invoice_details WHERE invoice_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice allocations: %w", err)
	}
	defer rows.Close()

	var out []ledger.AllocationID
	for rows.Next() {
		var aid ledger.AllocationID
		if err := rows.Scan(&aid); err != nil {
			return nil, fmt.Errorf("failed to scan invoice allocation: %w", err)
		}
		out = append(out, aid)
	}
	return out, rows.Err()
}

func (c *conn) queryInvoices(ctx context.Context, query string, args ...any) ([]ledger.CompanyInvoice, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query company invoices: %w", err)
	}

	var out []ledger.CompanyInvoice
	for rows.Next() {
		var (
			inv                              ledger.CompanyInvoice
			invoiceDate, dueDate, start, end string
			createdAt, updatedAt             string
		)
		if err := rows.Scan(&inv.ID, &inv.CompanyID, &invoiceDate, &dueDate, &start, &end,
			&inv.Total, &inv.Status, &inv.Method, &inv.ReferenceNumber, &inv.Notes,
			&createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan company invoice: %w", err)
		}
		inv.InvoiceDate, _ = ledger.ParseDate(invoiceDate)
		inv.DueDate, _ = ledger.ParseDate(dueDate)
		inv.Period.Start, _ = ledger.ParseDate(start)
		inv.Period.End, _ = ledger.ParseDate(end)
		inv.CreatedAt, inv.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
		out = append(out, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		details, err := c.invoiceDetails(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Details = details
	}
	return out, nil
}

func (c *conn) invoiceDetails(ctx context.Context, id ledger.InvoiceID) ([]ledger.InvoiceDetail, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, invoice_id, allocation_id, amount, created_at FROM company_invoice_details WHERE invoice_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice details: %w", err)
	}
	defer rows.Close()

	var out []ledger.InvoiceDetail
	for rows.Next() {
		var (
			d         ledger.InvoiceDetail
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.InvoiceID, &d.AllocationID, &d.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice detail: %w", err)
		}
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (c *conn) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, occurred_at, action, subject_type, subject_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, stamp(e.OccurredAt), e.Action, e.SubjectType, e.SubjectID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (c *conn) ListAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.SubjectType != "" {
		clauses = append(clauses, "subject_type = ?")
		args = append(args, f.SubjectType)
	}
	if f.SubjectID != nil {
		clauses = append(clauses, "subject_id = ?")
		args = append(args, *f.SubjectID)
	}
	if len(f.Actions) > 0 {
		clauses = append(clauses, "action IN ("+placeholders(len(f.Actions))+")")
		for _, a := range f.Actions {
			args = append(args, a)
		}
	}

	query := "SELECT id, occurred_at, action, subject_type, subject_id, payload_json FROM audit_log"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []ledger.AuditEntry
	for rows.Next() {
		var (
			e                   ledger.AuditEntry
			occurredAt, payload string
		)
		if err := rows.Scan(&e.ID, &occurredAt, &e.Action, &e.SubjectType, &e.SubjectID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.OccurredAt = parseTime(occurredAt)
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// translate maps SQLite constraint failures onto the ledger store sentinels.
func translate(err error, msg string) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		if sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			if strings.Contains(sqlErr.Error(), "allocations.worker_id") {
				return ledger.ErrUniqueWorkerDate
			}
			if strings.Contains(sqlErr.Error(), "_details.allocation_id") {
				return ledger.ErrDetailExists
			}
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// detailErr names the allocation whose detail row already exists.
func detailErr(err error, id ledger.AllocationID) error {
	if errors.Is(err, ledger.ErrDetailExists) {
		return &ledger.DetailExistsError{AllocationID: id}
	}
	return err
}

// isForeignKeyError matches foreign key failures. ON DELETE RESTRICT reports
// SQLITE_CONSTRAINT_TRIGGER instead of SQLITE_CONSTRAINT_FOREIGNKEY.
func isForeignKeyError(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) || sqlErr.Code != sqlite3.ErrConstraint {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintForeignKey ||
		strings.Contains(sqlErr.Error(), "FOREIGN KEY constraint failed")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func dateRange(clauses []string, args []any, column string, from, to *ledger.Date) ([]string, []any) {
	if from != nil {
		clauses = append(clauses, column+" >= ?")
		args = append(args, from.String())
	}
	if to != nil {
		clauses = append(clauses, column+" <= ?")
		args = append(args, to.String())
	}
	return clauses, args
}

func nullServiceType(id *ledger.ServiceTypeID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

// stamp formats t for a timestamp column, substituting now for the zero time.
func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

var (
	_ ledger.TxStore   = (*Store)(nil)
	_ ledger.Directory = (*Store)(nil)
)
