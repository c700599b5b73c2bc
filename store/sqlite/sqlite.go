/*
Package sqlite provides the SQLite-backed implementation of the engine's
store interfaces.

PURPOSE:
  Implements vacation.TxStore on database/sql with mattn/go-sqlite3. The
  same table shapes apply to PostgreSQL with minor dialect changes (see
  store/postgres for the pgx variant).

KEY TABLES:
  requests:   vacation requests, never deleted (terminal statuses kept)
  allowances: per-employee per-year grants with carryover

CONCURRENCY:
  Range-overlap exclusion is not expressible as a SQLite constraint, so
  overlap protection relies on the lifecycle re-validating inside WithTx.
  The store serializes transactions with a mutex on top of WAL mode, which
  makes WithTx a full mutual-exclusion boundary.

DATES:
  Stored as ISO text (2006-01-02). Lexicographic order equals date order,
  so range predicates work on raw text.

USAGE:
  store, err := sqlite.New("./vacation.db")
  defer store.Close()
  engine := vacation.NewLifecycle(store, directory, holidays)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/vacation-engine/calendar"
	"github.com/warp/vacation-engine/vacation"
)

// Store implements vacation.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) a SQLite store at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		business_days INTEGER NOT NULL CHECK (business_days > 0),
		status TEXT NOT NULL CHECK (status IN ('SUBMITTED','APPROVED','REJECTED','CANCELLED')),
		processed_by TEXT,
		processed_at TEXT,
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
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
	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the common surface of *sql.DB and *sql.Tx the queries run on.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, start_date, end_date, business_days,
	status, processed_by, processed_at, rejection_reason, created_at, updated_at`

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
	return getAllowance(ctx, s.db, employeeID, year)
}

func (s *Store) PutAllowance(ctx context.Context, record *vacation.AllowanceRecord) error {
	return putAllowance(ctx, s.db, record)
}

func insertRequest(ctx context.Context, db dbtx, req *vacation.Request) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(req.ID), string(req.EmployeeID), req.Start.String(), req.End.String(),
		req.BusinessDays, string(req.Status),
		nullableEmployee(req.ProcessedBy), nullableTime(req.ProcessedAt),
		req.RejectionReason,
		req.CreatedAt.UTC().Format(time.RFC3339Nano), req.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func updateRequest(ctx context.Context, db dbtx, req *vacation.Request) error {
	res, err := db.ExecContext(ctx, `
		UPDATE requests
		SET status = ?, processed_by = ?, processed_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ?`,
		string(req.Status),
		nullableEmployee(req.ProcessedBy), nullableTime(req.ProcessedAt),
		req.RejectionReason, req.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(req.ID))
	if err != nil {
		return fmt.Errorf("update request: %w", err)
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
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, string(id))
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vacation.ErrNotFound
	}
	return req, err
}

func requestsByEmployee(ctx context.Context, db dbtx, employeeID vacation.EmployeeID, statuses []vacation.Status) ([]*vacation.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE employee_id = ?`
	args := []any{string(employeeID)}
	query, args = appendStatusFilter(query, args, statuses)
	query += ` ORDER BY start_date, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func overlappingRequests(ctx context.Context, db dbtx, employeeID vacation.EmployeeID, start, end calendar.Date, statuses []vacation.Status, exclude vacation.RequestID) ([]*vacation.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
		WHERE employee_id = ? AND start_date <= ? AND end_date >= ? AND id != ?`
	args := []any{string(employeeID), end.String(), start.String(), string(exclude)}
	query, args = appendStatusFilter(query, args, statuses)
	query += ` ORDER BY start_date, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func approvedRequestsForYear(ctx context.Context, db dbtx, employeeID vacation.EmployeeID, year int) ([]*vacation.Request, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE employee_id = ? AND status = ? AND start_date >= ? AND start_date <= ?
		ORDER BY start_date, id`,
		string(employeeID), string(vacation.StatusApproved),
		fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func approvedRequestsInRange(ctx context.Context, db dbtx, employeeIDs []vacation.EmployeeID, start, end calendar.Date) (map[vacation.EmployeeID][]*vacation.Request, error) {
	result := make(map[vacation.EmployeeID][]*vacation.Request, len(employeeIDs))
	if len(employeeIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(employeeIDs)), ",")
	args := []any{string(vacation.StatusApproved), end.String(), start.String()}
	for _, id := range employeeIDs {
		args = append(args, string(id))
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE status = ? AND start_date <= ? AND end_date >= ?
		  AND employee_id IN (`+placeholders+`)
		ORDER BY start_date, id`, args...)
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

// =============================================================================
// ALLOWANCES
// =============================================================================

func getAllowance(ctx context.Context, db dbtx, employeeID vacation.EmployeeID, year int) (*vacation.AllowanceRecord, error) {
	var record vacation.AllowanceRecord
	var employee string
	err := db.QueryRowContext(ctx, `
		SELECT id, employee_id, year, total_days, carryover_days
		FROM allowances WHERE employee_id = ? AND year = ?`,
		string(employeeID), year).
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (employee_id, year) DO UPDATE
		SET total_days = excluded.total_days, carryover_days = excluded.carryover_days`,
		record.ID, string(record.EmployeeID), record.Year, record.TotalDays, record.CarryoverDays)
	if err != nil {
		return fmt.Errorf("put allowance: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The store-level mutex
// makes WithTx a full mutual-exclusion boundary: the re-validations the
// lifecycle performs inside fn can never race another transaction.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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

func (ts *txStore) ApprovedRequestsInRange(ctx context.Context, employeeIDs []vacation.EmployeeID, start, end calendar.Date) (map[vacation.EmployeeID][]*vacation.Request, error) {
	return approvedRequestsInRange(ctx, ts.tx, employeeIDs, start, end)
}

func (ts *txStore) GetAllowance(ctx context.Context, employeeID vacation.EmployeeID, year int) (*vacation.AllowanceRecord, error) {
	return getAllowance(ctx, ts.tx, employeeID, year)
}

func (ts *txStore) PutAllowance(ctx context.Context, record *vacation.AllowanceRecord) error {
	return putAllowance(ctx, ts.tx, record)
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*vacation.Request, error) {
	var (
		req                vacation.Request
		id, employee       string
		start, end         string
		status             string
		processedBy        sql.NullString
		processedAt        sql.NullString
		createdAt, updated string
	)
	err := row.Scan(&id, &employee, &start, &end, &req.BusinessDays, &status,
		&processedBy, &processedAt, &req.RejectionReason, &createdAt, &updated)
	if err != nil {
		return nil, err
	}

	req.ID = vacation.RequestID(id)
	req.EmployeeID = vacation.EmployeeID(employee)
	req.Status = vacation.Status(status)
	if req.Start, err = calendar.ParseDate(start); err != nil {
		return nil, err
	}
	if req.End, err = calendar.ParseDate(end); err != nil {
		return nil, err
	}
	if processedBy.Valid {
		by := vacation.EmployeeID(processedBy.String)
		req.ProcessedBy = &by
	}
	if processedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, processedAt.String)
		if err != nil {
			return nil, err
		}
		req.ProcessedAt = &at
	}
	if req.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if req.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, err
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

func appendStatusFilter(query string, args []any, statuses []vacation.Status) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	query += ` AND status IN (` + placeholders + `)`
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return query, args
}

func nullableEmployee(id *vacation.EmployeeID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var _ vacation.TxStore = (*Store)(nil)
