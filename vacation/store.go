/*
store.go - Persistence and directory interfaces consumed by the engine

PURPOSE:
  Defines the boundary between the lifecycle engine and its collaborators:
  the request/allowance store and the employee directory. Implementations
  live under store/ (memory, sqlite, postgres).

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional view of the
  store. The lifecycle re-validates balance, overlap, and occupancy inside
  WithTx so two concurrent calls racing past a stale read cannot jointly
  overcommit an allowance or a team (see lifecycle.go).

SEE ALSO:
  - store/memory: in-memory implementation for tests and dev
  - store/sqlite: production SQLite implementation
  - store/postgres: pgx implementation with row-level allowance locks
*/
package vacation

import (
	"context"

	"github.com/warp/vacation-engine/calendar"
)

// =============================================================================
// STORE - Requests and allowance records
// =============================================================================

// Store persists vacation requests and allowance records.
// Requests are never deleted; terminal statuses are retained for history.
// Lookups return ErrNotFound (possibly wrapped) when the row is missing.
type Store interface {
	// InsertRequest persists a new request. The ID must be unset-free and
	// unique; CreatedAt/UpdatedAt are the caller's responsibility.
	InsertRequest(ctx context.Context, req *Request) error

	// UpdateRequest persists status, processing fields, and UpdatedAt of
	// an existing request.
	UpdateRequest(ctx context.Context, req *Request) error

	// GetRequest returns a request by ID.
	GetRequest(ctx context.Context, id RequestID) (*Request, error)

	// RequestsByEmployee returns an employee's requests, optionally
	// filtered by status (nil/empty statuses = all), ordered by start date.
	RequestsByEmployee(ctx context.Context, employeeID EmployeeID, statuses []Status) ([]*Request, error)

	// OverlappingRequests returns the employee's requests with a status in
	// statuses whose range intersects [start, end], excluding the request
	// with ID exclude (empty = exclude nothing).
	OverlappingRequests(ctx context.Context, employeeID EmployeeID, start, end calendar.Date, statuses []Status, exclude RequestID) ([]*Request, error)

	// ApprovedRequestsForYear returns the employee's APPROVED requests
	// whose start date falls in year, ordered by start date.
	ApprovedRequestsForYear(ctx context.Context, employeeID EmployeeID, year int) ([]*Request, error)

	// ApprovedRequestsInRange returns, per employee, the APPROVED requests
	// of the given employees intersecting [start, end]. Used by the
	// occupancy admission check.
	ApprovedRequestsInRange(ctx context.Context, employeeIDs []EmployeeID, start, end calendar.Date) (map[EmployeeID][]*Request, error)

	// GetAllowance returns the allowance record of an employee for a year.
	GetAllowance(ctx context.Context, employeeID EmployeeID, year int) (*AllowanceRecord, error)

	// PutAllowance creates or replaces an allowance record. Allowance
	// records are written by the HR collaborator, not by the lifecycle.
	PutAllowance(ctx context.Context, record *AllowanceRecord) error
}

// TxStore is a Store that can run operations transactionally.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional store view. fn returning
	// an error rolls the transaction back; nil commits it.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// DIRECTORY - Employee roles and team membership
// =============================================================================

// TeamInfo describes one team and its members.
type TeamInfo struct {
	ID      TeamID
	Name    string
	Members []EmployeeID
}

// Directory resolves employee roles and team memberships. It is an
// external collaborator; failures are surfaced as transient errors, not
// retried here.
type Directory interface {
	// RoleOf returns the role of an employee. ErrNotFound when the
	// employee does not exist.
	RoleOf(ctx context.Context, employeeID EmployeeID) (Role, error)

	// TeamOf returns the team an employee belongs to, or ErrNotFound when
	// the employee has no team.
	TeamOf(ctx context.Context, employeeID EmployeeID) (*TeamInfo, error)
}
