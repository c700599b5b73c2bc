package vacation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/calendar"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	engine *vacation.Lifecycle
	store  *memory.Store
	dir    *memory.Directory
	now    time.Time
}

// newFixture wires an engine over the memory store with a frozen clock
// (Monday 2026-01-05) and a four-person team.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.NewStore(),
		dir:   memory.NewDirectory(),
		now:   time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC),
	}

	for _, id := range []vacation.EmployeeID{"emp-1", "emp-2", "emp-3", "emp-4"} {
		f.dir.AddEmployee(id, vacation.RoleEmployee)
	}
	f.dir.AddEmployee("mgr-1", vacation.RoleManager)
	f.dir.AddEmployee("hr-1", vacation.RoleHR)
	f.dir.AddEmployee("hr-2", vacation.RoleHR)
	f.dir.AddEmployee("admin-1", vacation.RoleAdministrator)
	f.dir.AddTeam("platform", "Platform", "emp-1", "emp-2", "emp-3", "emp-4")

	f.engine = vacation.NewLifecycle(f.store, f.dir, calendar.NoHolidays{})
	f.engine.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) grant(t *testing.T, id vacation.EmployeeID, total, carryover int) {
	t.Helper()
	err := f.store.PutAllowance(context.Background(), &vacation.AllowanceRecord{
		ID:            "alw-" + string(id),
		EmployeeID:    id,
		Year:          2026,
		TotalDays:     total,
		CarryoverDays: carryover,
	})
	require.NoError(t, err)
}

func (f *fixture) submit(t *testing.T, id vacation.EmployeeID, start, end string) *vacation.Request {
	t.Helper()
	req, err := f.engine.CreateRequest(context.Background(), id, date(start), date(end))
	require.NoError(t, err)
	return req
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateRequest_Submitted(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)

	// Mon Jun 1 through Fri Jun 5: 5 business days.
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	assert.Equal(t, vacation.StatusSubmitted, req.Status)
	assert.Equal(t, 5, req.BusinessDays)
	assert.NotEmpty(t, req.ID)
	assert.Nil(t, req.ProcessedBy)

	stored, err := f.store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusSubmitted, stored.Status)
}

func TestCreateRequest_HolidaysReduceCost(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	f.engine.Holidays = calendar.NewHolidaySet(
		calendar.Holiday{Date: date("2026-06-03"), Name: "Founders Day"},
	)

	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
	assert.Equal(t, 4, req.BusinessDays)
}

func TestCreateRequest_InvalidRanges(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)

	tests := []struct {
		name  string
		start string
		end   string
	}{
		{"end before start", "2026-06-05", "2026-06-01"},
		{"start on saturday", "2026-06-06", "2026-06-08"},
		{"end on sunday", "2026-06-05", "2026-06-07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateRequest(context.Background(), "emp-1", date(tt.start), date(tt.end))
			assert.ErrorIs(t, err, vacation.ErrInvalidRange)
		})
	}
}

func TestCreateRequest_PastStart_Rejected(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)

	// Clock is frozen at 2026-01-05; Friday Jan 2 is already gone.
	_, err := f.engine.CreateRequest(context.Background(), "emp-1", date("2026-01-02"), date("2026-01-02"))
	assert.ErrorIs(t, err, vacation.ErrPastDate)
}

func TestCreateRequest_SameDayStart_Allowed(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)

	req := f.submit(t, "emp-1", "2026-01-05", "2026-01-05")
	assert.Equal(t, 1, req.BusinessDays)
}

func TestCreateRequest_NoAllowanceConfigured(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateRequest(context.Background(), "emp-1", date("2026-06-01"), date("2026-06-05"))
	assert.ErrorIs(t, err, vacation.ErrNoAllowanceConfigured)
	assert.NotErrorIs(t, err, vacation.ErrInsufficientBalance)
}

func TestCreateRequest_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 3, 0)

	_, err := f.engine.CreateRequest(context.Background(), "emp-1", date("2026-06-01"), date("2026-06-05"))
	require.ErrorIs(t, err, vacation.ErrInsufficientBalance)

	var detail *vacation.InsufficientBalanceError
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, 3, detail.Available)
	assert.Equal(t, 5, detail.Requested)
}

func TestCreateRequest_BalanceCountsOnlyApproved(t *testing.T) {
	// A SUBMITTED request holds no balance; only approval commits days.
	f := newFixture(t)
	f.grant(t, "emp-1", 5, 0)

	f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
	second := f.submit(t, "emp-1", "2026-07-06", "2026-07-10")
	assert.Equal(t, vacation.StatusSubmitted, second.Status)
}

func TestCreateRequest_Overlap_Rejected(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	existing := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	tests := []struct {
		name  string
		start string
		end   string
	}{
		{"identical range", "2026-06-01", "2026-06-05"},
		{"partial overlap at tail", "2026-06-05", "2026-06-08"},
		{"fully contained", "2026-06-02", "2026-06-04"},
		{"containing range", "2026-05-29", "2026-06-08"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateRequest(context.Background(), "emp-1", date(tt.start), date(tt.end))
			require.ErrorIs(t, err, vacation.ErrOverlappingRequest)

			var detail *vacation.OverlapError
			require.ErrorAs(t, err, &detail)
			assert.Equal(t, existing.ID, detail.Existing)
		})
	}
}

func TestCreateRequest_TerminalRequestsDoNotBlock(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	_, err := f.engine.CancelRequest(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)

	// The cancelled range is free again.
	f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
}

func TestCreateRequest_OtherEmployeeMayOverlap(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	f.grant(t, "emp-2", 26, 0)

	f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
	f.submit(t, "emp-2", "2026-06-01", "2026-06-05")
}

func TestCreateRequest_UnknownEmployee(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateRequest(context.Background(), "ghost", date("2026-06-01"), date("2026-06-05"))
	assert.ErrorIs(t, err, vacation.ErrNotFound)
}

// =============================================================================
// APPROVE
// =============================================================================

func TestApproveRequest_ByHR(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	approved, err := f.engine.ApproveRequest(context.Background(), req.ID, "hr-1", false)
	require.NoError(t, err)

	assert.Equal(t, vacation.StatusApproved, approved.Status)
	require.NotNil(t, approved.ProcessedBy)
	assert.Equal(t, vacation.EmployeeID("hr-1"), *approved.ProcessedBy)
	require.NotNil(t, approved.ProcessedAt)
	assert.Equal(t, f.now, *approved.ProcessedAt)
}

func TestApproveRequest_RolePermissions(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)

	tests := []struct {
		approver vacation.EmployeeID
		wantErr  error
	}{
		{"emp-2", vacation.ErrUnauthorized},
		{"mgr-1", vacation.ErrUnauthorized},
		{"hr-1", nil},
		{"admin-1", nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.approver), func(t *testing.T) {
			req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
			_, err := f.engine.ApproveRequest(context.Background(), req.ID, tt.approver, false)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			// Free the range for the next case.
			_, cancelErr := f.engine.CancelRequest(context.Background(), req.ID, "emp-1")
			require.NoError(t, cancelErr)
		})
	}
}

func TestApproveRequest_SelfApproval_Forbidden(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "hr-1", 26, 0)
	req := f.submit(t, "hr-1", "2026-06-01", "2026-06-05")

	_, err := f.engine.ApproveRequest(context.Background(), req.ID, "hr-1", false)
	assert.ErrorIs(t, err, vacation.ErrSelfApproval)

	// Another approver remains free to process it.
	_, err = f.engine.ApproveRequest(context.Background(), req.ID, "hr-2", false)
	assert.NoError(t, err)
}

func TestApproveRequest_AlreadyApproved(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	_, err := f.engine.ApproveRequest(context.Background(), req.ID, "hr-1", false)
	require.NoError(t, err)

	_, err = f.engine.ApproveRequest(context.Background(), req.ID, "hr-2", false)
	require.ErrorIs(t, err, vacation.ErrInvalidStateTransition)

	var detail *vacation.StateTransitionError
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, vacation.StatusApproved, detail.From)
}

func TestApproveRequest_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ApproveRequest(context.Background(), "missing", "hr-1", false)
	assert.ErrorIs(t, err, vacation.ErrNotFound)
}

func TestApproveRequest_BalanceRecheckedAtApproval(t *testing.T) {
	// Two SUBMITTED requests jointly exceed the grant. The first approval
	// commits its days; the second must fail even though submission passed.
	f := newFixture(t)
	f.grant(t, "emp-1", 5, 0)

	first := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
	second := f.submit(t, "emp-1", "2026-07-06", "2026-07-10")

	_, err := f.engine.ApproveRequest(context.Background(), first.ID, "hr-1", false)
	require.NoError(t, err)

	_, err = f.engine.ApproveRequest(context.Background(), second.ID, "hr-1", false)
	assert.ErrorIs(t, err, vacation.ErrInsufficientBalance)
}

// =============================================================================
// OCCUPANCY ADMISSION
// =============================================================================

func TestApproveRequest_OccupancyWarning_AckFlow(t *testing.T) {
	// Team of 4, threshold 0.5. Two absences on one day sit exactly at the
	// threshold and pass; a third pushes to 0.75 and needs acknowledgment.
	f := newFixture(t)
	for _, id := range []vacation.EmployeeID{"emp-1", "emp-2", "emp-3"} {
		f.grant(t, id, 26, 0)
	}

	week := [2]string{"2026-06-01", "2026-06-05"}
	r1 := f.submit(t, "emp-1", week[0], week[1])
	r2 := f.submit(t, "emp-2", week[0], week[1])
	r3 := f.submit(t, "emp-3", week[0], week[1])

	_, err := f.engine.ApproveRequest(context.Background(), r1.ID, "hr-1", false)
	require.NoError(t, err)
	_, err = f.engine.ApproveRequest(context.Background(), r2.ID, "hr-1", false)
	require.NoError(t, err, "fraction at exactly the threshold must pass")

	_, err = f.engine.ApproveRequest(context.Background(), r3.ID, "hr-1", false)
	require.ErrorIs(t, err, vacation.ErrAdmissionWarning)

	var warning *vacation.AdmissionWarningError
	require.ErrorAs(t, err, &warning)
	assert.Equal(t, vacation.TeamID("platform"), warning.Snapshot.TeamID)
	assert.Equal(t, "0.75", warning.Snapshot.Fraction.String())
	assert.Len(t, warning.Snapshot.AffectedMembers, 3)

	// The warning leaves the request SUBMITTED.
	stored, err := f.store.GetRequest(context.Background(), r3.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusSubmitted, stored.Status)

	// Acknowledged resubmission goes through.
	approved, err := f.engine.ApproveRequest(context.Background(), r3.ID, "hr-1", true)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusApproved, approved.Status)
}

func TestApproveRequest_NoTeam_SkipsAdmission(t *testing.T) {
	f := newFixture(t)
	f.dir.AddEmployee("solo", vacation.RoleEmployee)
	f.grant(t, "solo", 26, 0)

	req := f.submit(t, "solo", "2026-06-01", "2026-06-05")
	_, err := f.engine.ApproveRequest(context.Background(), req.ID, "hr-1", false)
	assert.NoError(t, err)
}

func TestApproveRequest_CancelledAbsenceFreesSlot(t *testing.T) {
	f := newFixture(t)
	for _, id := range []vacation.EmployeeID{"emp-1", "emp-2", "emp-3"} {
		f.grant(t, id, 26, 0)
	}

	r1 := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
	r2 := f.submit(t, "emp-2", "2026-06-01", "2026-06-05")
	r3 := f.submit(t, "emp-3", "2026-06-01", "2026-06-05")

	for _, id := range []vacation.RequestID{r1.ID, r2.ID} {
		_, err := f.engine.ApproveRequest(context.Background(), id, "hr-1", false)
		require.NoError(t, err)
	}

	_, err := f.engine.CancelRequest(context.Background(), r1.ID, "emp-1")
	require.NoError(t, err)

	// With emp-1 out of the picture the third approval is back at 0.5.
	_, err = f.engine.ApproveRequest(context.Background(), r3.ID, "hr-1", false)
	assert.NoError(t, err)
}

// =============================================================================
// REJECT
// =============================================================================

func TestRejectRequest_ReasonRequired(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	_, err := f.engine.RejectRequest(context.Background(), req.ID, "hr-1", "")
	require.ErrorIs(t, err, vacation.ErrReasonRequired)

	stored, err := f.store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusSubmitted, stored.Status)
}

func TestRejectRequest_PersistsReason(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	rejected, err := f.engine.RejectRequest(context.Background(), req.ID, "hr-1", "release week")
	require.NoError(t, err)

	assert.Equal(t, vacation.StatusRejected, rejected.Status)
	assert.Equal(t, "release week", rejected.RejectionReason)
	require.NotNil(t, rejected.ProcessedBy)
	assert.Equal(t, vacation.EmployeeID("hr-1"), *rejected.ProcessedBy)
}

func TestRejectRequest_Terminal(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	_, err := f.engine.RejectRequest(context.Background(), req.ID, "hr-1", "release week")
	require.NoError(t, err)

	_, err = f.engine.ApproveRequest(context.Background(), req.ID, "hr-2", false)
	assert.ErrorIs(t, err, vacation.ErrInvalidStateTransition)

	_, err = f.engine.CancelRequest(context.Background(), req.ID, "emp-1")
	assert.ErrorIs(t, err, vacation.ErrInvalidStateTransition)

	// The rejected range is free for a new request.
	f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancelRequest_Submitted_NoDaysReturned(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	result, err := f.engine.CancelRequest(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)

	assert.Equal(t, vacation.StatusCancelled, result.Status)
	assert.Equal(t, 0, result.DaysReturned, "a SUBMITTED request never consumed days")
}

func TestCancelRequest_Approved_ReturnsDays(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
	_, err := f.engine.ApproveRequest(context.Background(), req.ID, "hr-1", false)
	require.NoError(t, err)

	result, err := f.engine.CancelRequest(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 5, result.DaysReturned)

	summary, err := f.engine.Allowance(context.Background(), "emp-1", 2026)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Breakdown.UsedTotal)
	assert.Equal(t, 26, summary.Breakdown.Remaining())
}

func TestCancelRequest_ApprovedAlreadyStarted_Rejected(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
	_, err := f.engine.ApproveRequest(context.Background(), req.ID, "hr-1", false)
	require.NoError(t, err)

	// Advance the clock onto the vacation's second day.
	f.now = time.Date(2026, time.June, 2, 9, 0, 0, 0, time.UTC)

	_, err = f.engine.CancelRequest(context.Background(), req.ID, "emp-1")
	assert.ErrorIs(t, err, vacation.ErrPastDate)
}

func TestCancelRequest_NotOwner_Unauthorized(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)
	req := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")

	_, err := f.engine.CancelRequest(context.Background(), req.ID, "emp-2")
	assert.ErrorIs(t, err, vacation.ErrUnauthorized)

	// HR does not override ownership either.
	_, err = f.engine.CancelRequest(context.Background(), req.ID, "hr-1")
	assert.ErrorIs(t, err, vacation.ErrUnauthorized)
}

// =============================================================================
// READS
// =============================================================================

func TestRequestsForEmployee_StatusFilter(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 0)

	r1 := f.submit(t, "emp-1", "2026-06-01", "2026-06-05")
	r2 := f.submit(t, "emp-1", "2026-07-06", "2026-07-10")
	_, err := f.engine.ApproveRequest(context.Background(), r1.ID, "hr-1", false)
	require.NoError(t, err)

	all, err := f.engine.RequestsForEmployee(context.Background(), "emp-1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	submitted, err := f.engine.RequestsForEmployee(context.Background(), "emp-1",
		[]vacation.Status{vacation.StatusSubmitted})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, r2.ID, submitted[0].ID)
}

func TestAllowance_SummaryReflectsApprovals(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "emp-1", 26, 5)

	// Mon Feb 9 through Wed Feb 11: 3 carryover-eligible days.
	req := f.submit(t, "emp-1", "2026-02-09", "2026-02-11")
	_, err := f.engine.ApproveRequest(context.Background(), req.ID, "hr-1", false)
	require.NoError(t, err)

	summary, err := f.engine.Allowance(context.Background(), "emp-1", 2026)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Breakdown.UsedCarryover)
	assert.Equal(t, 0, summary.Breakdown.UsedCurrentYear)
	assert.Equal(t, 2, summary.Breakdown.RemainingCarryover)
	assert.Equal(t, 26, summary.Breakdown.RemainingCurrentYear)
}

func TestAllowance_MissingYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Allowance(context.Background(), "emp-1", 2026)
	assert.ErrorIs(t, err, vacation.ErrNoAllowanceConfigured)
}

// =============================================================================
// FAILURE CLASSIFICATION
// =============================================================================

type failingDirectory struct{}

func (failingDirectory) RoleOf(context.Context, vacation.EmployeeID) (vacation.Role, error) {
	return "", errors.New("directory timeout")
}

func (failingDirectory) TeamOf(context.Context, vacation.EmployeeID) (*vacation.TeamInfo, error) {
	return nil, errors.New("directory timeout")
}

func TestCreateRequest_DirectoryFailure_Transient(t *testing.T) {
	f := newFixture(t)
	f.engine.Directory = failingDirectory{}

	_, err := f.engine.CreateRequest(context.Background(), "emp-1", date("2026-06-01"), date("2026-06-05"))
	assert.ErrorIs(t, err, vacation.ErrTransientDependency)
}
