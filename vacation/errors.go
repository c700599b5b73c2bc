/*
errors.go - Error vocabulary of the vacation engine

PURPOSE:
  All error kinds in one place. Every failure a lifecycle operation can
  produce is one of these sentinels, optionally wrapped in a structured
  error carrying context. Callers classify with errors.Is().

FAIL-CLOSED CONTRACT:
  Validation errors are detected before any mutation. A hard validation
  failure is never downgraded to a warning, and an invalid range is never
  auto-corrected.

RETRY CONTRACT:
  ErrTransientDependency is the only kind eligible for caller-level retry.
  Every other kind is terminal for that call.

SEE ALSO:
  - lifecycle.go: produces these errors
  - api/handlers.go: maps them to HTTP status codes
*/
package vacation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/calendar"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when end < start, or either endpoint is
	// not a business day.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrPastDate is returned when a request starts before today, or an
	// approved request is cancelled after its start date.
	ErrPastDate = errors.New("date is in the past")

	// ErrInsufficientBalance is returned when the candidate's day count
	// exceeds the remaining eligible allowance.
	ErrInsufficientBalance = errors.New("insufficient allowance balance")

	// ErrNoAllowanceConfigured is returned when the employee has no
	// allowance record for the candidate's year. Distinct from
	// ErrInsufficientBalance: nothing was ever granted.
	ErrNoAllowanceConfigured = errors.New("no allowance configured for year")

	// ErrOverlappingRequest is returned when an active request of the
	// same employee intersects the candidate range.
	ErrOverlappingRequest = errors.New("overlapping request exists")

	// ErrInvalidStateTransition is returned when the request's current
	// status does not permit the attempted transition.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrSelfApproval is returned when an approver attempts to process
	// their own request.
	ErrSelfApproval = errors.New("self-approval is forbidden")

	// ErrUnauthorized is returned when the caller's role lacks permission
	// for the operation, or the caller is not the request owner where
	// ownership is required.
	ErrUnauthorized = errors.New("not authorized")

	// ErrAdmissionWarning is returned when the team occupancy threshold
	// is exceeded and the approver has not acknowledged the warning.
	ErrAdmissionWarning = errors.New("occupancy threshold exceeded")

	// ErrReasonRequired is returned when a rejection carries no reason.
	ErrReasonRequired = errors.New("rejection reason required")

	// ErrNotFound is returned when a request or allowance record does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransientDependency is returned when a collaborator (directory,
	// calendar source, store) times out or fails in a retryable way.
	ErrTransientDependency = errors.New("transient dependency failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError reports which part of the range validation failed.
type InvalidRangeError struct {
	Start  calendar.Date
	End    calendar.Date
	Detail string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range [%s, %s]: %s", e.Start, e.End, e.Detail)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// InsufficientBalanceError details a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Year       int
	Available  int
	Requested  int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s in %d: available %d, requested %d",
		e.EmployeeID, e.Year, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// OverlapError identifies the conflicting request.
type OverlapError struct {
	EmployeeID EmployeeID
	Existing   RequestID
	Start      calendar.Date
	End        calendar.Date
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("range [%s, %s] overlaps request %s", e.Start, e.End, e.Existing)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingRequest }

// StateTransitionError reports the status that blocked a transition.
type StateTransitionError struct {
	RequestID RequestID
	From      Status
	Attempted string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %s", e.Attempted, e.RequestID, e.From)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// AdmissionWarningError carries the occupancy snapshot so the approver can
// review it and resubmit with acknowledgment.
type AdmissionWarningError struct {
	Snapshot  OccupancySnapshot
	Threshold decimal.Decimal
}

func (e *AdmissionWarningError) Error() string {
	return fmt.Sprintf("team %s occupancy %s on %s exceeds threshold %s",
		e.Snapshot.TeamID, e.Snapshot.Fraction, e.Snapshot.PeakDay, e.Threshold)
}

func (e *AdmissionWarningError) Unwrap() error { return ErrAdmissionWarning }
