/*
handlers.go - HTTP handlers over the lifecycle engine

PURPOSE:
  Thin translation layer: decode + validate the body, call the engine with
  the authenticated actor, map the result (or the engine's error kind) to
  an HTTP response. No business rules live here.

ERROR MAPPING:
  Validation kinds      -> 400/404/409/422 per kind (see errorStatus)
  ErrAdmissionWarning   -> 409 with the occupancy snapshot attached
  ErrTransientDependency-> 503 (the only retryable kind)

SEE ALSO:
  - vacation/errors.go: the error vocabulary being mapped
  - server.go: route wiring
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/vacation-engine/calendar"
	"github.com/warp/vacation-engine/vacation"
)

// Handler holds the dependencies of the HTTP layer.
type Handler struct {
	Engine   *vacation.Lifecycle
	Logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler creates a Handler around a lifecycle engine.
func NewHandler(engine *vacation.Lifecycle, logger *slog.Logger) *Handler {
	return &Handler{
		Engine:   engine,
		Logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// REQUEST LIFECYCLE ENDPOINTS
// =============================================================================

// CreateRequest submits a vacation request for the authenticated employee.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated actor", nil)
		return
	}

	var body CreateRequestRequest
	if !h.decode(w, r, &body) {
		return
	}

	start, err := calendar.ParseDate(body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date", err)
		return
	}
	end, err := calendar.ParseDate(body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date", err)
		return
	}

	req, err := h.Engine.CreateRequest(r.Context(), actor, start, end)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// ApproveRequest approves a submitted request as the authenticated actor.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated actor", nil)
		return
	}

	var body ApproveRequestRequest
	if !h.decode(w, r, &body) {
		return
	}

	id := vacation.RequestID(chi.URLParam(r, "id"))
	req, err := h.Engine.ApproveRequest(r.Context(), id, actor, body.AcknowledgeThresholdWarning)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// RejectRequest rejects a submitted request with a mandatory reason.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated actor", nil)
		return
	}

	var body RejectRequestRequest
	if !h.decode(w, r, &body) {
		return
	}

	id := vacation.RequestID(chi.URLParam(r, "id"))
	req, err := h.Engine.RejectRequest(r.Context(), id, actor, body.Reason)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// CancelRequest cancels the authenticated employee's own request.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated actor", nil)
		return
	}

	id := vacation.RequestID(chi.URLParam(r, "id"))
	result, err := h.Engine.CancelRequest(r.Context(), id, actor)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResultDTO{
		Status:       string(result.Status),
		DaysReturned: result.DaysReturned,
	})
}

// =============================================================================
// READ ENDPOINTS
// =============================================================================

// ListRequests returns the authenticated employee's requests, optionally
// filtered with ?status=SUBMITTED.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated actor", nil)
		return
	}

	var statuses []vacation.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := vacation.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+raw, nil)
			return
		}
		statuses = append(statuses, status)
	}

	reqs, err := h.Engine.RequestsForEmployee(r.Context(), actor, statuses)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dtos := make([]RequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAllowance returns the authenticated employee's allowance summary for
// a year (?year=2026, default: current year).
func (h *Handler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no authenticated actor", nil)
		return
	}

	year := calendar.Today().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year", err)
			return
		}
		year = parsed
	}

	summary, err := h.Engine.Allowance(r.Context(), actor, year)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllowanceDTO(summary))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

// writeEngineError maps an engine error to an HTTP response.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := errorStatus(err)

	resp := ErrorResponse{Error: err.Error(), Kind: kind}

	var warning *vacation.AdmissionWarningError
	if errors.As(err, &warning) {
		members := make([]string, len(warning.Snapshot.AffectedMembers))
		for i, m := range warning.Snapshot.AffectedMembers {
			members[i] = string(m)
		}
		resp.Warning = &OccupancyWarningDTO{
			TeamID:          string(warning.Snapshot.TeamID),
			Fraction:        warning.Snapshot.Fraction.String(),
			Threshold:       warning.Threshold.String(),
			PeakDay:         warning.Snapshot.PeakDay.String(),
			AffectedMembers: members,
		}
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("engine call failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, resp)
}

// errorStatus maps the engine's error kinds to HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, vacation.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, vacation.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range"
	case errors.Is(err, vacation.ErrPastDate):
		return http.StatusBadRequest, "past_date"
	case errors.Is(err, vacation.ErrReasonRequired):
		return http.StatusBadRequest, "reason_required"
	case errors.Is(err, vacation.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, vacation.ErrNoAllowanceConfigured):
		return http.StatusUnprocessableEntity, "no_allowance_configured"
	case errors.Is(err, vacation.ErrOverlappingRequest):
		return http.StatusConflict, "overlapping_request"
	case errors.Is(err, vacation.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, vacation.ErrAdmissionWarning):
		return http.StatusConflict, "admission_warning"
	case errors.Is(err, vacation.ErrSelfApproval):
		return http.StatusForbidden, "self_approval"
	case errors.Is(err, vacation.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, vacation.ErrTransientDependency):
		return http.StatusServiceUnavailable, "transient_dependency"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
