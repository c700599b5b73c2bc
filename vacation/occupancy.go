/*
occupancy.go - Team occupancy admission control

PURPOSE:
  Before an approval commits, measure how much of the requester's team
  would be absent at once if this request were approved too. Approvals
  pushing the team past the configured threshold are not blocked outright:
  the approver sees the snapshot as a warning and must resubmit with
  explicit acknowledgment.

MEASUREMENT:
  For every calendar day in the candidate range, count team members with
  an APPROVED request covering that day, with the candidate counted as if
  already approved. The occupancy fraction is the worst single day.
  Fractions are decimal so threshold comparisons are exact.

TIMING:
  Evaluated at approval time only. A SUBMITTED request does not occupy a
  slot, so submission never runs this check.

SEE ALSO:
  - lifecycle.go: re-runs this check inside the approval transaction
*/
package vacation

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/calendar"
)

// =============================================================================
// OCCUPANCY ADMISSION
// =============================================================================

// DefaultOccupancyThreshold allows up to half the team absent at once.
var DefaultOccupancyThreshold = decimal.New(5, -1) // 0.5

// OccupancyAdmission checks candidate approvals against a team occupancy
// threshold.
type OccupancyAdmission struct {
	Store Store

	// Threshold is the maximum tolerated fraction of simultaneously
	// absent team members. Exceeding it (strictly) raises a warning.
	Threshold decimal.Decimal
}

// CheckThreshold computes the occupancy snapshot for approving candidate
// within team. The candidate is treated as approved; its owner counts as
// absent on every day the candidate covers.
func (o *OccupancyAdmission) CheckThreshold(ctx context.Context, team *TeamInfo, candidate *Request) (OccupancySnapshot, error) {
	snapshot := OccupancySnapshot{TeamID: team.ID, Fraction: decimal.Zero}
	if len(team.Members) == 0 {
		return snapshot, nil
	}

	approvedByMember, err := o.Store.ApprovedRequestsInRange(ctx, team.Members, candidate.Start, candidate.End)
	if err != nil {
		return snapshot, err
	}

	teamSize := decimal.NewFromInt(int64(len(team.Members)))
	for day := candidate.Start; day.BeforeOrEqual(candidate.End); day = day.AddDays(1) {
		absent := absentMembers(team.Members, approvedByMember, candidate, day)
		fraction := decimal.NewFromInt(int64(len(absent))).Div(teamSize)
		if fraction.GreaterThan(snapshot.Fraction) {
			snapshot.Fraction = fraction
			snapshot.PeakDay = day
			snapshot.AffectedMembers = absent
		}
	}

	snapshot.Exceeds = snapshot.Fraction.GreaterThan(o.Threshold)
	return snapshot, nil
}

// absentMembers lists the team members absent on day, candidate included.
func absentMembers(members []EmployeeID, approved map[EmployeeID][]*Request, candidate *Request, day calendar.Date) []EmployeeID {
	var absent []EmployeeID
	for _, member := range members {
		if member == candidate.EmployeeID && candidate.CoversDay(day) {
			absent = append(absent, member)
			continue
		}
		for _, req := range approved[member] {
			if req.ID != candidate.ID && req.CoversDay(day) {
				absent = append(absent, member)
				break
			}
		}
	}
	return absent
}
