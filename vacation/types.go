/*
Package vacation implements the vacation request lifecycle and the
allowance ledger engine.

PURPOSE:
  This is the core of the system: it computes how many allowance days a
  request consumes, validates requests against balances and overlapping
  requests, drives the approval state machine (role checks, self-approval
  rule, team-occupancy admission control), and maintains the
  carryover-vs-current-year balance ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Request: a vacation request with its approval state
  - AllowanceRecord: per-employee per-year grant plus carryover
  - ConsumptionBreakdown: derived carryover/current-year usage
  - OccupancySnapshot: ephemeral team-absence measurement
  - Role: actor roles consulted by the permission table

DESIGN PRINCIPLES:
  1. Derived balances: consumption is recomputed from the set of APPROVED
     requests on every check. There is no running counter to drift.
  2. Requests are never physically deleted. REJECTED and CANCELLED are
     terminal states retained for history.
  3. Whole days only. Occupancy fractions use decimal.Decimal so threshold
     comparisons never suffer float error.

SEE ALSO:
  - ledger.go: consumption computation and balance checks
  - lifecycle.go: the state machine orchestrating everything
  - errors.go: the error vocabulary of the engine
*/
package vacation

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/calendar"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RequestID string
type TeamID string

// =============================================================================
// REQUEST - A vacation request and its approval state
// =============================================================================

// Status is the approval state of a request. SUBMITTED is the only
// non-terminal state besides APPROVED (which can still be cancelled).
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Active reports whether the request still occupies calendar days for
// overlap purposes. REJECTED and CANCELLED days were never, or are no
// longer, committed.
func (s Status) Active() bool {
	return s == StatusSubmitted || s == StatusApproved
}

// Terminal reports whether no further transition can leave this state.
// APPROVED is terminal for approve/reject but can still be cancelled.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Request is a vacation request. Start and End are inclusive calendar
// dates. BusinessDays is computed once at creation and immutable after.
type Request struct {
	ID         RequestID
	EmployeeID EmployeeID
	Start      calendar.Date
	End        calendar.Date

	// BusinessDays is the allowance cost of this request, fixed at
	// creation from the business calendar over [Start, End].
	BusinessDays int

	Status Status

	// ProcessedBy and ProcessedAt are set together, exactly once, when
	// the request is approved or rejected.
	ProcessedBy *EmployeeID
	ProcessedAt *time.Time

	// RejectionReason is required when Status is REJECTED, empty otherwise.
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps reports whether this request's range intersects [start, end]
// (closed intervals on both sides).
func (r *Request) Overlaps(start, end calendar.Date) bool {
	return r.Start.BeforeOrEqual(end) && r.End.AfterOrEqual(start)
}

// CoversDay reports whether day falls inside the request's range.
func (r *Request) CoversDay(day calendar.Date) bool {
	return r.Overlaps(day, day)
}

// Year is the allowance year a request draws from: the year of its start
// date.
func (r *Request) Year() int { return r.Start.Year() }

// =============================================================================
// ALLOWANCE RECORD - Per-employee per-year grant
// =============================================================================

// AllowanceRecord holds the granted allowance of one employee for one
// year. Consumption is NOT stored here; it is derived from the set of
// APPROVED requests (see ComputeConsumption). Carryover days expire on
// March 31 of Year.
type AllowanceRecord struct {
	ID         string
	EmployeeID EmployeeID
	Year       int

	// TotalDays is the grant for Year itself.
	TotalDays int

	// CarryoverDays were brought in unused from Year-1.
	CarryoverDays int
}

// CarryoverExpiry returns the last date on which carryover days may still
// be consumed: March 31 of the record's year.
func (a *AllowanceRecord) CarryoverExpiry() calendar.Date {
	return calendar.NewDate(a.Year, time.March, 31)
}

// ConsumptionBreakdown is the derived usage of an allowance record over a
// set of approved requests.
type ConsumptionBreakdown struct {
	UsedCarryover   int
	UsedCurrentYear int
	UsedTotal       int

	RemainingCarryover   int
	RemainingCurrentYear int
}

// Remaining is the total balance still available, ignoring carryover
// eligibility of any particular candidate date.
func (c ConsumptionBreakdown) Remaining() int {
	return c.RemainingCarryover + c.RemainingCurrentYear
}

// =============================================================================
// TEAM OCCUPANCY - Ephemeral admission-control measurement
// =============================================================================

// OccupancySnapshot is the result of a team occupancy check for a
// candidate range. It is computed per admission check and never persisted.
type OccupancySnapshot struct {
	TeamID TeamID

	// Fraction is the maximum single-day fraction of team members absent
	// over the candidate range, with the candidate hypothetically
	// approved.
	Fraction decimal.Decimal

	// PeakDay is the day on which Fraction was observed.
	PeakDay calendar.Date

	// Exceeds is true when Fraction is strictly above the configured
	// threshold.
	Exceeds bool

	// AffectedMembers are the members absent on PeakDay.
	AffectedMembers []EmployeeID
}

// =============================================================================
// ROLES
// =============================================================================

// Role is an actor's role as reported by the directory service.
type Role string

const (
	RoleEmployee      Role = "EMPLOYEE"
	RoleManager       Role = "MANAGER"
	RoleHR            Role = "HR"
	RoleAdministrator Role = "ADMINISTRATOR"
)
