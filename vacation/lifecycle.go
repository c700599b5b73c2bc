/*
lifecycle.go - The request state machine

PURPOSE:
  Orchestrates creation, approval, rejection, and cancellation of vacation
  requests, tying together the business calendar, the allowance ledger,
  the overlap guard, and the occupancy admission check.

STATE MACHINE:
  SUBMITTED --approve--> APPROVED --cancel(before start)--> CANCELLED
  SUBMITTED --reject--->  REJECTED
  SUBMITTED --cancel--->  CANCELLED
  REJECTED and CANCELLED are terminal. Any transition attempted from a
  terminal state fails with ErrInvalidStateTransition.

CONCURRENCY:
  The correctness hazard is two concurrent calls validating against a
  stale read: two Creates jointly overcommitting one employee's allowance,
  or two Approves racing past the team occupancy threshold. Every
  validate-then-mutate sequence therefore re-validates INSIDE WithTx,
  against the transactional store view, immediately before the mutation.
  The acknowledgment flag only suppresses the warning error - it never
  skips the in-transaction check.

FAIL-CLOSED:
  All validation runs before any mutation. Validation failures are
  terminal for the call; only ErrTransientDependency is retryable, and
  retrying is the caller's business.

SEE ALSO:
  - ledger.go: balance checks
  - occupancy.go: admission control
  - permissions.go: the role capability table
*/
package vacation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/calendar"
)

// =============================================================================
// LIFECYCLE SERVICE
// =============================================================================

// Lifecycle drives vacation requests through their state machine.
type Lifecycle struct {
	Store       TxStore
	Directory   Directory
	Holidays    calendar.HolidaySource
	Permissions PermissionTable
	Admission   *OccupancyAdmission

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// NewLifecycle wires a Lifecycle with the default permission table and
// occupancy threshold.
func NewLifecycle(store TxStore, directory Directory, holidays calendar.HolidaySource) *Lifecycle {
	return &Lifecycle{
		Store:       store,
		Directory:   directory,
		Holidays:    holidays,
		Permissions: DefaultPermissions(),
		Admission:   &OccupancyAdmission{Store: store, Threshold: DefaultOccupancyThreshold},
		Now:         time.Now,
	}
}

func (l *Lifecycle) today() calendar.Date {
	return calendar.DateOf(l.Now().UTC())
}

// =============================================================================
// CREATE - Validate and persist a new SUBMITTED request
// =============================================================================

// CreateRequest validates a candidate range against the calendar, the
// employee's allowance balance, and existing active requests, then
// persists a new SUBMITTED request. The balance and overlap checks run
// inside the store transaction so concurrent Creates for the same
// employee cannot both pass on a stale read.
func (l *Lifecycle) CreateRequest(ctx context.Context, employeeID EmployeeID, start, end calendar.Date) (*Request, error) {
	role, err := l.Directory.RoleOf(ctx, employeeID)
	if err != nil {
		return nil, l.dependencyErr("directory", err)
	}
	if !l.Permissions.Allows(role, OpCreate) {
		return nil, fmt.Errorf("%w: role %s cannot submit requests", ErrUnauthorized, role)
	}

	if err := l.validateRange(start, end); err != nil {
		return nil, err
	}
	if start.Before(l.today()) {
		return nil, fmt.Errorf("%w: start %s is before today", ErrPastDate, start)
	}

	days := calendar.CountBusinessDays(start, end, l.Holidays)

	now := l.Now().UTC()
	req := &Request{
		ID:           RequestID(uuid.NewString()),
		EmployeeID:   employeeID,
		Start:        start,
		End:          end,
		BusinessDays: days,
		Status:       StatusSubmitted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = l.Store.WithTx(ctx, func(tx Store) error {
		if err := l.checkBalance(ctx, tx, employeeID, start, days); err != nil {
			return err
		}

		guard := &OverlapGuard{Store: tx}
		existing, err := guard.FindOverlap(ctx, employeeID, start, end, "")
		if err != nil {
			return l.dependencyErr("store", err)
		}
		if existing != nil {
			return &OverlapError{EmployeeID: employeeID, Existing: existing.ID, Start: start, End: end}
		}

		if err := tx.InsertRequest(ctx, req); err != nil {
			return l.dependencyErr("store", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// validateRange enforces start <= end and both endpoints on business days.
func (l *Lifecycle) validateRange(start, end calendar.Date) error {
	switch {
	case start.IsZero() || end.IsZero():
		return &InvalidRangeError{Start: start, End: end, Detail: "missing date"}
	case end.Before(start):
		return &InvalidRangeError{Start: start, End: end, Detail: "end before start"}
	case !calendar.IsBusinessDay(start, l.Holidays):
		return &InvalidRangeError{Start: start, End: end, Detail: fmt.Sprintf("start %s is not a business day", start)}
	case !calendar.IsBusinessDay(end, l.Holidays):
		return &InvalidRangeError{Start: start, End: end, Detail: fmt.Sprintf("end %s is not a business day", end)}
	}
	return nil
}

// checkBalance loads the allowance record and the approved set for the
// candidate's year and verifies the candidate fits.
func (l *Lifecycle) checkBalance(ctx context.Context, store Store, employeeID EmployeeID, start calendar.Date, days int) error {
	year := start.Year()
	record, err := store.GetAllowance(ctx, employeeID, year)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: employee %s, year %d", ErrNoAllowanceConfigured, employeeID, year)
	}
	if err != nil {
		return l.dependencyErr("store", err)
	}

	approved, err := store.ApprovedRequestsForYear(ctx, employeeID, year)
	if err != nil {
		return l.dependencyErr("store", err)
	}

	if ok, available := HasSufficientBalance(record, approved, start, days); !ok {
		return &InsufficientBalanceError{EmployeeID: employeeID, Year: year, Available: available, Requested: days}
	}
	return nil
}

// =============================================================================
// APPROVE - SUBMITTED -> APPROVED with admission control
// =============================================================================

// ApproveRequest transitions a SUBMITTED request to APPROVED. The approver
// must hold an approving role and must not own the request. The team
// occupancy check runs inside the same transaction that flips the status,
// so two concurrent approvals cannot both sneak under the threshold; the
// acknowledge flag only converts an exceeded threshold from an error into
// a recorded decision.
func (l *Lifecycle) ApproveRequest(ctx context.Context, id RequestID, approverID EmployeeID, acknowledgeThresholdWarning bool) (*Request, error) {
	if err := l.authorizeProcessing(ctx, id, approverID, OpApprove); err != nil {
		return nil, err
	}

	var approved *Request
	err := l.Store.WithTx(ctx, func(tx Store) error {
		req, err := l.loadForTransition(ctx, tx, id, "approve")
		if err != nil {
			return err
		}
		if req.EmployeeID == approverID {
			return fmt.Errorf("%w: request %s", ErrSelfApproval, id)
		}

		// Balance may have changed since submission (another request of
		// the same employee approved in between). Re-verify before
		// committing consumption.
		if err := l.checkBalance(ctx, tx, req.EmployeeID, req.Start, req.BusinessDays); err != nil {
			return err
		}

		if err := l.admitToTeam(ctx, tx, req, acknowledgeThresholdWarning); err != nil {
			return err
		}

		now := l.Now().UTC()
		req.Status = StatusApproved
		req.ProcessedBy = &approverID
		req.ProcessedAt = &now
		req.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return l.dependencyErr("store", err)
		}
		approved = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// admitToTeam runs the occupancy admission check for the request owner's
// team. Employees without a team skip admission entirely.
func (l *Lifecycle) admitToTeam(ctx context.Context, tx Store, req *Request, acknowledged bool) error {
	team, err := l.Directory.TeamOf(ctx, req.EmployeeID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return l.dependencyErr("directory", err)
	}

	admission := &OccupancyAdmission{Store: tx, Threshold: l.threshold()}
	snapshot, err := admission.CheckThreshold(ctx, team, req)
	if err != nil {
		return l.dependencyErr("store", err)
	}
	if snapshot.Exceeds && !acknowledged {
		return &AdmissionWarningError{Snapshot: snapshot, Threshold: l.threshold()}
	}
	return nil
}

func (l *Lifecycle) threshold() decimal.Decimal {
	if l.Admission != nil {
		return l.Admission.Threshold
	}
	return DefaultOccupancyThreshold
}

// =============================================================================
// REJECT - SUBMITTED -> REJECTED with mandatory reason
// =============================================================================

// RejectRequest transitions a SUBMITTED request to REJECTED. Same role and
// self-processing rules as approval; a non-empty reason is mandatory.
func (l *Lifecycle) RejectRequest(ctx context.Context, id RequestID, approverID EmployeeID, reason string) (*Request, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: request %s", ErrReasonRequired, id)
	}
	if err := l.authorizeProcessing(ctx, id, approverID, OpReject); err != nil {
		return nil, err
	}

	var rejected *Request
	err := l.Store.WithTx(ctx, func(tx Store) error {
		req, err := l.loadForTransition(ctx, tx, id, "reject")
		if err != nil {
			return err
		}
		if req.EmployeeID == approverID {
			return fmt.Errorf("%w: request %s", ErrSelfApproval, id)
		}

		now := l.Now().UTC()
		req.Status = StatusRejected
		req.ProcessedBy = &approverID
		req.ProcessedAt = &now
		req.RejectionReason = reason
		req.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return l.dependencyErr("store", err)
		}
		rejected = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// =============================================================================
// CANCEL - SUBMITTED/APPROVED -> CANCELLED by the owner
// =============================================================================

// CancelResult reports the outcome of a cancellation. DaysReturned is
// informational: restoration happens because CANCELLED requests drop out
// of the derived consumption, not because any counter is decremented.
type CancelResult struct {
	Status       Status
	DaysReturned int
}

// CancelRequest cancels the owner's own request. SUBMITTED requests cancel
// freely; APPROVED requests only while their start date is still in the
// future - a vacation already begun cannot be retroactively cancelled.
func (l *Lifecycle) CancelRequest(ctx context.Context, id RequestID, requesterID EmployeeID) (*CancelResult, error) {
	role, err := l.Directory.RoleOf(ctx, requesterID)
	if err != nil {
		return nil, l.dependencyErr("directory", err)
	}
	if !l.Permissions.Allows(role, OpCancel) {
		return nil, fmt.Errorf("%w: role %s cannot cancel requests", ErrUnauthorized, role)
	}

	var result *CancelResult
	err = l.Store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetRequest(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: request %s", ErrNotFound, id)
		}
		if err != nil {
			return l.dependencyErr("store", err)
		}

		if req.EmployeeID != requesterID {
			return fmt.Errorf("%w: only the owner may cancel request %s", ErrUnauthorized, id)
		}
		if !req.Status.Active() {
			return &StateTransitionError{RequestID: id, From: req.Status, Attempted: "cancel"}
		}

		wasApproved := req.Status == StatusApproved
		if wasApproved && !req.Start.After(l.today()) {
			return fmt.Errorf("%w: request %s already started on %s", ErrPastDate, id, req.Start)
		}

		req.Status = StatusCancelled
		req.UpdatedAt = l.Now().UTC()
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return l.dependencyErr("store", err)
		}

		daysReturned := 0
		if wasApproved {
			daysReturned = req.BusinessDays
		}
		result = &CancelResult{Status: StatusCancelled, DaysReturned: daysReturned}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// READS
// =============================================================================

// RequestsForEmployee lists an employee's requests, optionally filtered by
// status.
func (l *Lifecycle) RequestsForEmployee(ctx context.Context, employeeID EmployeeID, statuses []Status) ([]*Request, error) {
	reqs, err := l.Store.RequestsByEmployee(ctx, employeeID, statuses)
	if err != nil {
		return nil, l.dependencyErr("store", err)
	}
	return reqs, nil
}

// AllowanceSummary is an allowance record with its derived consumption.
type AllowanceSummary struct {
	Record    *AllowanceRecord
	Breakdown ConsumptionBreakdown
}

// Allowance returns the allowance record of an employee for a year along
// with the consumption derived from the current approved set.
func (l *Lifecycle) Allowance(ctx context.Context, employeeID EmployeeID, year int) (*AllowanceSummary, error) {
	record, err := l.Store.GetAllowance(ctx, employeeID, year)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: employee %s, year %d", ErrNoAllowanceConfigured, employeeID, year)
	}
	if err != nil {
		return nil, l.dependencyErr("store", err)
	}

	approved, err := l.Store.ApprovedRequestsForYear(ctx, employeeID, year)
	if err != nil {
		return nil, l.dependencyErr("store", err)
	}

	return &AllowanceSummary{
		Record:    record,
		Breakdown: ComputeConsumption(record, approved),
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// authorizeProcessing runs the role checks shared by approve and reject.
func (l *Lifecycle) authorizeProcessing(ctx context.Context, id RequestID, actorID EmployeeID, op Operation) error {
	role, err := l.Directory.RoleOf(ctx, actorID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: actor %s", ErrNotFound, actorID)
	}
	if err != nil {
		return l.dependencyErr("directory", err)
	}
	if !l.Permissions.Allows(role, op) {
		return fmt.Errorf("%w: role %s cannot %s request %s", ErrUnauthorized, role, op, id)
	}
	return nil
}

// loadForTransition fetches a request and verifies it is still SUBMITTED.
func (l *Lifecycle) loadForTransition(ctx context.Context, tx Store, id RequestID, attempted string) (*Request, error) {
	req, err := tx.GetRequest(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, l.dependencyErr("store", err)
	}
	if req.Status != StatusSubmitted {
		return nil, &StateTransitionError{RequestID: id, From: req.Status, Attempted: attempted}
	}
	return req, nil
}

// dependencyErr classifies a collaborator failure as transient unless it
// already carries a domain sentinel.
func (l *Lifecycle) dependencyErr(source string, err error) error {
	for _, sentinel := range []error{
		ErrInvalidRange, ErrPastDate, ErrInsufficientBalance, ErrNoAllowanceConfigured,
		ErrOverlappingRequest, ErrInvalidStateTransition, ErrSelfApproval, ErrUnauthorized,
		ErrAdmissionWarning, ErrReasonRequired, ErrNotFound,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrTransientDependency, source, err)
}
