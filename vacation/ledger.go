/*
ledger.go - Allowance consumption derived from approved requests

PURPOSE:
  Answers "how much of this year's allowance is used, and in what order?"
  and "does this employee have enough days left for a candidate request?".

DERIVED, NOT STORED:
  Consumption is recomputed from the set of APPROVED requests on every
  check rather than kept as a running counter. A missed reversal can never
  make the ledger drift: excluding a CANCELLED request from the input set
  IS the reversal. Do not replace this with a cached counter.

CONSUMPTION ORDER:
  Carryover days expire on March 31 of the allowance year and must be
  consumed before current-year days. Requests are replayed in start-date
  order (ties broken by request ID for determinism):

    - request starts on or before March 31, carryover remains:
        take min(request days, remaining carryover) from carryover,
        any shortfall from the current-year grant
    - request starts after March 31, or carryover exhausted:
        everything from the current-year grant

  The same March-31 rule applies to a candidate's own start date when
  checking whether its days fit the remaining balance.

SEE ALSO:
  - types.go: AllowanceRecord, ConsumptionBreakdown
  - lifecycle.go: calls these checks inside store transactions
*/
package vacation

import (
	"sort"

	"github.com/warp/vacation-engine/calendar"
)

// =============================================================================
// CONSUMPTION COMPUTATION
// =============================================================================

// ComputeConsumption replays the approved requests of record's year in
// start-date order and splits their days between carryover and the
// current-year grant. Pure function of its inputs: same requests in, same
// breakdown out.
//
// Requests whose start year differs from record.Year are ignored so
// callers can pass an unfiltered approved set.
func ComputeConsumption(record *AllowanceRecord, approved []*Request) ConsumptionBreakdown {
	ordered := make([]*Request, 0, len(approved))
	for _, r := range approved {
		if r.Status == StatusApproved && r.Year() == record.Year {
			ordered = append(ordered, r)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].Start.Before(ordered[j].Start)
		}
		return ordered[i].ID < ordered[j].ID
	})

	expiry := record.CarryoverExpiry()
	remainingCarryover := record.CarryoverDays

	var breakdown ConsumptionBreakdown
	for _, r := range ordered {
		days := r.BusinessDays
		if r.Start.BeforeOrEqual(expiry) && remainingCarryover > 0 {
			fromCarryover := days
			if fromCarryover > remainingCarryover {
				fromCarryover = remainingCarryover
			}
			breakdown.UsedCarryover += fromCarryover
			breakdown.UsedCurrentYear += days - fromCarryover
			remainingCarryover -= fromCarryover
		} else {
			breakdown.UsedCurrentYear += days
		}
	}

	breakdown.UsedTotal = breakdown.UsedCarryover + breakdown.UsedCurrentYear
	breakdown.RemainingCarryover = floorAtZero(record.CarryoverDays - breakdown.UsedCarryover)
	breakdown.RemainingCurrentYear = floorAtZero(record.TotalDays - breakdown.UsedCurrentYear)
	return breakdown
}

// HasSufficientBalance checks whether a candidate needing candidateDays,
// starting on candidateStart, fits the balance left after the existing
// approved set. Carryover counts toward the candidate only when the
// candidate itself starts on or before the March-31 expiry.
//
// Returns the verdict and the number of days that were available to the
// candidate (for error reporting).
func HasSufficientBalance(record *AllowanceRecord, approved []*Request, candidateStart calendar.Date, candidateDays int) (bool, int) {
	breakdown := ComputeConsumption(record, approved)

	available := breakdown.RemainingCurrentYear
	if candidateStart.BeforeOrEqual(record.CarryoverExpiry()) {
		available += breakdown.RemainingCarryover
	}
	return candidateDays <= available, available
}

func floorAtZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
