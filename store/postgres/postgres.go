/*
Package postgres provides the PostgreSQL-backed implementation of the
engine's store interfaces, via the pgx stdlib driver.

PURPOSE:
  Same table shapes as store/sqlite, but concurrency control comes from
  the database instead of a process-level mutex, so multiple engine
  processes can safely share one database. Inside WithTx:
    - GetAllowance locks the employee's allowance row (FOR UPDATE),
      serializing the balance-check-then-insert sequence per employee;
    - ApprovedRequestsInRange first locks the allowance rows of every
      queried team member, so two approvals for different members of the
      same team collide on those rows and the occupancy check always
      reads a team state no other in-flight approval can change.

USAGE:
  store, err := postgres.New(ctx, cfg.Database.DSN)
  defer store.Close()
  engine := vacation.NewLifecycle(store, directory, holidays)
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/warp/vacation-engine/calendar"
	"github.com/warp/vacation-engine/vacation"
)

// Store implements vacation.TxStore using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New connects to PostgreSQL and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		business_days INTEGER NOT NULL CHECK (business_days > 0),
		status TEXT NOT NULL CHECK (status IN ('SUBMITTED','APPROVED','REJECTED','CANCELLED')),
		processed_by TEXT,
		processed_at TIMESTAMPTZ,
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (start_date <= end_date)
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee_status
		ON requests(employee_id, status);
	CREATE INDEX IF NOT EXISTS idx_requests_employee_range
		ON requests(employee_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS allowances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		total_days INTEGER NOT NULL CHECK (total_days >= 0),
		carryover_days INTEGER NOT NULL CHECK (carryover_days >= 0),
		UNIQUE (employee_id, year)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STORE METHODS
// =============================================================================

func (s *Store) InsertRequest(ctx context.Context, req *vacation.Request) error {
	return insertRequest(ctx, s.db, req)
}

func (s *Store) UpdateRequest(ctx context.Context, req *vacation.Request) error {
	return updateRequest(ctx, s.db, req)
}

func (s *Store) GetRequest(ctx context.Context, id vacation.RequestID) (*vacation.Request, error) {
	return getRequest(ctx, s.db, id)
}

func (s *Store) RequestsByEmployee(ctx context.Context, employeeID vacation.EmployeeID, statuses []vacation.Status) ([]*vacation.Request, error) {
	return requestsByEmployee(ctx, s.db, employeeID, statuses)
}

func (s *Store) OverlappingRequests(ctx context.Context, employeeID vacation.EmployeeID, start, end calendar.Date, statuses []vacation.Status, exclude vacation.RequestID) ([]*vacation.Request, error) {
	return overlappingRequests(ctx, s.db, employeeID, start, end, statuses, exclude)
}

func (s *Store) ApprovedRequestsForYear(ctx context.Context, employeeID vacation.EmployeeID, year int) ([]*vacation.Request, error) {
	return approvedRequestsForYear(ctx, s.db, employeeID, year)
}

func (s *Store) ApprovedRequestsInRange(ctx context.Context, employeeIDs []vacation.EmployeeID, start, end calendar.Date) (map[vacation.EmployeeID][]*vacation.Request, error) {
	return approvedRequestsInRange(ctx, s.db, employeeIDs, start, end)
}

func (s *Store) GetAllowance(ctx context.Context, employeeID vacation.EmployeeID, year int) (*vacation.AllowanceRecord, error) {
	return getAllowance(ctx, s.db, employeeID, year, false)
}

func (s *Store) PutAllowance(ctx context.Context, record *vacation.AllowanceRecord) error {
	return putAllowance(ctx, s.db, record)
}

// WithTx runs fn in a database transaction. The transactional view locks
// the allowance rows it reads: the owner's row on GetAllowance, every
// queried member's rows on ApprovedRequestsInRange. Concurrent lifecycle
// operations touching the same employee or the same team block on those
// locks instead of validating against a stale read.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertRequest(ctx context.Context, req *vacation.Request) error {
	return insertRequest(ctx, ts.tx, req)
}

func (ts *txStore) UpdateRequest(ctx context.Context, req *vacation.Request) error {
	return updateRequest(ctx, ts.tx, req)
}

func (ts *txStore) GetRequest(ctx context.Context, id vacation.RequestID) (*vacation.Request, error) {
	return getRequest(ctx, ts.tx, id)
}

func (ts *txStore) RequestsByEmployee(ctx context.Context, employeeID vacation.EmployeeID, statuses []vacation.Status) ([]*vacation.Request, error) {
	return requestsByEmployee(ctx, ts.tx, employeeID, statuses)
}

func (ts *txStore) OverlappingRequests(ctx context.Context, employeeID vacation.EmployeeID, start, end calendar.Date, statuses []vacation.Status, exclude vacation.RequestID) ([]*vacation.Request, error) {
	return overlappingRequests(ctx, ts.tx, employeeID, start, end, statuses, exclude)
}

func (ts *txStore) ApprovedRequestsForYear(ctx context.Context, employeeID vacation.EmployeeID, year int) ([]*vacation.Request, error) {
	return approvedRequestsForYear(ctx, ts.tx, employeeID, year)
}

// ApprovedRequestsInRange inside a transaction first locks every queried
// member's allowance rows. Two concurrent approvals for different members
// of the same team both try to lock the full member set, so one blocks
// until the other commits and then reads the committed approved set -
// without this, both would pass the occupancy check on the same pre-state
// and jointly overcommit the team.
func (ts *txStore) ApprovedRequestsInRange(ctx context.Context, employeeIDs []vacation.EmployeeID, start, end calendar.Date) (map[vacation.EmployeeID][]*vacation.Request, error) {
	if err := lockAllowances(ctx, ts.tx, employeeIDs); err != nil {
		return nil, err
	}
	return approvedRequestsInRange(ctx, ts.tx, employeeIDs, start, end)
}

// GetAllowance inside a transaction takes a row-level lock: this is the
// per-employee mutual-exclusion boundary of the balance-check-then-insert
// sequence.
func (ts *txStore) GetAllowance(ctx context.Context, employeeID vacation.EmployeeID, year int) (*vacation.AllowanceRecord, error) {
	return getAllowance(ctx, ts.tx, employeeID, year, true)
}

func (ts *txStore) PutAllowance(ctx context.Context, record *vacation.AllowanceRecord) error {
	return putAllowance(ctx, ts.tx, record)
}

// =============================================================================
// QUERIES
// =============================================================================

const requestColumns = `id, employee_id, start_date, end_date, business_days,
	status, processed_by, processed_at, rejection_reason, created_at, updated_at`

func insertRequest(ctx context.Context, db dbtx, req *vacation.Request) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(req.ID), string(req.EmployeeID), req.Start.Time(), req.End.Time(),
		req.BusinessDays, string(req.Status),
		nullableEmployee(req.ProcessedBy), req.ProcessedAt,
		req.RejectionReason, req.CreatedAt.UTC(), req.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("request %s already exists: %w", req.ID, err)
	}
	return err
}

func updateRequest(ctx context.Context, db dbtx, req *vacation.Request) error {
	res, err := db.ExecContext(ctx, `
		UPDATE requests
		SET status = $1, processed_by = $2, processed_at = $3, rejection_reason = $4, updated_at = $5
		WHERE id = $6`,
		string(req.Status), nullableEmployee(req.ProcessedBy), req.ProcessedAt,
		req.RejectionReason, req.UpdatedAt.UTC(), string(req.ID))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return vacation.ErrNotFound
	}
	return nil
}

func getRequest(ctx context.Context, db dbtx, id vacation.RequestID) (*vacation.Request, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, string(id))
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vacation.ErrNotFound
	}
	return req, err
}

func requestsByEmployee(ctx context.Context, db dbtx, employeeID vacation.EmployeeID, statuses []vacation.Status) ([]*vacation.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
		WHERE employee_id = $1 AND ($2 OR status = ANY($3))
		ORDER BY start_date, id`
	rows, err := db.QueryContext(ctx, query,
		string(employeeID), len(statuses) == 0, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func overlappingRequests(ctx context.Context, db dbtx, employeeID vacation.EmployeeID, start, end calendar.Date, statuses []vacation.Status, exclude vacation.RequestID) ([]*vacation.Request, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE employee_id = $1 AND start_date <= $2 AND end_date >= $3 AND id != $4
		  AND ($5 OR status = ANY($6))
		ORDER BY start_date, id`,
		string(employeeID), end.Time(), start.Time(), string(exclude),
		len(statuses) == 0, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func approvedRequestsForYear(ctx context.Context, db dbtx, employeeID vacation.EmployeeID, year int) ([]*vacation.Request, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE employee_id = $1 AND status = $2 AND EXTRACT(YEAR FROM start_date) = $3
		ORDER BY start_date, id`,
		string(employeeID), string(vacation.StatusApproved), year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// lockAllowances takes FOR UPDATE row locks on all allowance rows of the
// given employees. Rows are locked in a stable order so two transactions
// locking overlapping member sets cannot deadlock.
func lockAllowances(ctx context.Context, db dbtx, employeeIDs []vacation.EmployeeID) error {
	if len(employeeIDs) == 0 {
		return nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM allowances
		WHERE employee_id = ANY($1)
		ORDER BY employee_id, year
		FOR UPDATE`, employeeStrings(employeeIDs))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func approvedRequestsInRange(ctx context.Context, db dbtx, employeeIDs []vacation.EmployeeID, start, end calendar.Date) (map[vacation.EmployeeID][]*vacation.Request, error) {
	result := make(map[vacation.EmployeeID][]*vacation.Request, len(employeeIDs))
	if len(employeeIDs) == 0 {
		return result, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE status = $1 AND start_date <= $2 AND end_date >= $3 AND employee_id = ANY($4)
		ORDER BY start_date, id`,
		string(vacation.StatusApproved), end.Time(), start.Time(), employeeStrings(employeeIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		result[req.EmployeeID] = append(result[req.EmployeeID], req)
	}
	return result, nil
}

func getAllowance(ctx context.Context, db dbtx, employeeID vacation.EmployeeID, year int, forUpdate bool) (*vacation.AllowanceRecord, error) {
	query := `SELECT id, employee_id, year, total_days, carryover_days
		FROM allowances WHERE employee_id = $1 AND year = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var record vacation.AllowanceRecord
	var employee string
	err := db.QueryRowContext(ctx, query, string(employeeID), year).
		Scan(&record.ID, &employee, &record.Year, &record.TotalDays, &record.CarryoverDays)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vacation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record.EmployeeID = vacation.EmployeeID(employee)
	return &record, nil
}

func putAllowance(ctx context.Context, db dbtx, record *vacation.AllowanceRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO allowances (id, employee_id, year, total_days, carryover_days)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_id, year) DO UPDATE
		SET total_days = EXCLUDED.total_days, carryover_days = EXCLUDED.carryover_days`,
		record.ID, string(record.EmployeeID), record.Year, record.TotalDays, record.CarryoverDays)
	return err
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*vacation.Request, error) {
	var (
		req          vacation.Request
		id, employee string
		start, end   time.Time
		status       string
		processedBy  sql.NullString
		processedAt  sql.NullTime
	)
	err := row.Scan(&id, &employee, &start, &end, &req.BusinessDays, &status,
		&processedBy, &processedAt, &req.RejectionReason, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}

	req.ID = vacation.RequestID(id)
	req.EmployeeID = vacation.EmployeeID(employee)
	req.Status = vacation.Status(status)
	req.Start = calendar.DateOf(start)
	req.End = calendar.DateOf(end)
	if processedBy.Valid {
		by := vacation.EmployeeID(processedBy.String)
		req.ProcessedBy = &by
	}
	if processedAt.Valid {
		at := processedAt.Time
		req.ProcessedAt = &at
	}
	return &req, nil
}

func scanRequests(rows *sql.Rows) ([]*vacation.Request, error) {
	var result []*vacation.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func employeeStrings(ids []vacation.EmployeeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func statusStrings(statuses []vacation.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableEmployee(id *vacation.EmployeeID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ vacation.TxStore = (*Store)(nil)
