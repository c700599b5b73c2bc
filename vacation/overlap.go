package vacation

import (
	"context"

	"github.com/warp/vacation-engine/calendar"
)

// =============================================================================
// OVERLAP GUARD - No double-booked days per employee
// =============================================================================

// activeStatuses are the statuses that occupy calendar days. REJECTED and
// CANCELLED requests never participate in overlap checks.
var activeStatuses = []Status{StatusSubmitted, StatusApproved}

// OverlapGuard answers whether a candidate range collides with an
// employee's existing active requests.
type OverlapGuard struct {
	Store Store
}

// FindOverlap returns the first active request of the employee that
// intersects [start, end], or nil when the range is free. exclude names a
// request to skip, for re-validating an existing request against its
// siblings.
func (g *OverlapGuard) FindOverlap(ctx context.Context, employeeID EmployeeID, start, end calendar.Date, exclude RequestID) (*Request, error) {
	overlapping, err := g.Store.OverlappingRequests(ctx, employeeID, start, end, activeStatuses, exclude)
	if err != nil {
		return nil, err
	}
	if len(overlapping) == 0 {
		return nil, nil
	}
	return overlapping[0], nil
}

// HasOverlap is FindOverlap reduced to a verdict.
func (g *OverlapGuard) HasOverlap(ctx context.Context, employeeID EmployeeID, start, end calendar.Date, exclude RequestID) (bool, error) {
	existing, err := g.FindOverlap(ctx, employeeID, start, end, exclude)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}
