/*
dto.go - Data transfer objects for API requests and responses

PURPOSE:
  JSON structures of the API contract, decoupled from the domain types.
  Request bodies carry go-playground/validator tags; handlers run the
  validator before touching the engine.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

SEE ALSO:
  - handlers.go: validation and mapping
*/
package api

import (
	"time"

	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// REQUEST BODIES
// =============================================================================

// CreateRequestRequest is the body of POST /api/requests.
type CreateRequestRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// ApproveRequestRequest is the body of POST /api/requests/{id}/approve.
type ApproveRequestRequest struct {
	// AcknowledgeThresholdWarning must be set to approve past an exceeded
	// team occupancy threshold after reviewing the warning.
	AcknowledgeThresholdWarning bool `json:"acknowledge_threshold_warning"`
}

// RejectRequestRequest is the body of POST /api/requests/{id}/reject.
type RejectRequestRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// RequestDTO represents a vacation request in API responses.
type RequestDTO struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employee_id"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	BusinessDays    int     `json:"business_days"`
	Status          string  `json:"status"`
	ProcessedBy     *string `json:"processed_by,omitempty"`
	ProcessedAt     *string `json:"processed_at,omitempty"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toRequestDTO(req *vacation.Request) RequestDTO {
	dto := RequestDTO{
		ID:              string(req.ID),
		EmployeeID:      string(req.EmployeeID),
		StartDate:       req.Start.String(),
		EndDate:         req.End.String(),
		BusinessDays:    req.BusinessDays,
		Status:          string(req.Status),
		RejectionReason: req.RejectionReason,
		CreatedAt:       req.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       req.UpdatedAt.Format(time.RFC3339),
	}
	if req.ProcessedBy != nil {
		by := string(*req.ProcessedBy)
		dto.ProcessedBy = &by
	}
	if req.ProcessedAt != nil {
		at := req.ProcessedAt.Format(time.RFC3339)
		dto.ProcessedAt = &at
	}
	return dto
}

// CancelResultDTO is the response of POST /api/requests/{id}/cancel.
type CancelResultDTO struct {
	Status       string `json:"status"`
	DaysReturned int    `json:"days_returned"`
}

// AllowanceDTO is an allowance record with its derived consumption.
type AllowanceDTO struct {
	EmployeeID           string `json:"employee_id"`
	Year                 int    `json:"year"`
	TotalDays            int    `json:"total_days"`
	CarryoverDays        int    `json:"carryover_days"`
	CarryoverExpiry      string `json:"carryover_expiry"`
	UsedCarryover        int    `json:"used_carryover"`
	UsedCurrentYear      int    `json:"used_current_year"`
	UsedTotal            int    `json:"used_total"`
	RemainingCarryover   int    `json:"remaining_carryover"`
	RemainingCurrentYear int    `json:"remaining_current_year"`
}

func toAllowanceDTO(summary *vacation.AllowanceSummary) AllowanceDTO {
	return AllowanceDTO{
		EmployeeID:           string(summary.Record.EmployeeID),
		Year:                 summary.Record.Year,
		TotalDays:            summary.Record.TotalDays,
		CarryoverDays:        summary.Record.CarryoverDays,
		CarryoverExpiry:      summary.Record.CarryoverExpiry().String(),
		UsedCarryover:        summary.Breakdown.UsedCarryover,
		UsedCurrentYear:      summary.Breakdown.UsedCurrentYear,
		UsedTotal:            summary.Breakdown.UsedTotal,
		RemainingCarryover:   summary.Breakdown.RemainingCarryover,
		RemainingCurrentYear: summary.Breakdown.RemainingCurrentYear,
	}
}

// OccupancyWarningDTO describes an exceeded occupancy threshold so the
// approver can decide whether to acknowledge it.
type OccupancyWarningDTO struct {
	TeamID          string   `json:"team_id"`
	Fraction        string   `json:"occupancy_fraction"`
	Threshold       string   `json:"threshold"`
	PeakDay         string   `json:"peak_day"`
	AffectedMembers []string `json:"affected_members"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string               `json:"error"`
	Kind    string               `json:"kind,omitempty"`
	Details string               `json:"details,omitempty"`
	Warning *OccupancyWarningDTO `json:"warning,omitempty"`
}
