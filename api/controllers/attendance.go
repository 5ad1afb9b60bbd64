package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/api/middleware"
	"github.com/angelmondragon/printdesk-backend/api/responses"
	"github.com/angelmondragon/printdesk-backend/api/validators"
	"github.com/angelmondragon/printdesk-backend/internal/agents"
	"github.com/angelmondragon/printdesk-backend/internal/attendance"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// Attendance group actions.
const (
	ActionCheckIn           = "check-in"
	ActionCheckOut          = "check-out"
	ActionStartBreak        = "start-break"
	ActionEndBreak          = "end-break"
	ActionAttendanceRecord  = "attendance-record"
	ActionAttendanceSummary = "attendance-summary"
	ActionCurrentStatus     = "current-status"
)

var attendanceActions = []string{
	ActionCheckIn,
	ActionCheckOut,
	ActionStartBreak,
	ActionEndBreak,
	ActionAttendanceRecord,
	ActionAttendanceSummary,
	ActionCurrentStatus,
}

type checkInRequest struct {
	Action   string          `json:"action,omitempty"`
	AgentID  uuid.UUID       `json:"agent_id"`
	Location *types.GeoPoint `json:"location,omitempty"`
}

type breakRequest struct {
	Action  string    `json:"action,omitempty"`
	AgentID uuid.UUID `json:"agent_id"`
	Reason  string    `json:"reason,omitempty" validate:"max=200"`
}

type agentRequest struct {
	Action  string    `json:"action,omitempty"`
	AgentID uuid.UUID `json:"agent_id"`
}

// AttendanceActions serves the attendance request group.
func AttendanceActions(svc attendance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "attendance service unavailable"))
			return
		}
		body, err := readBody(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action := actionOf(r, body)
		switch action {
		case ActionCheckIn, ActionCheckOut, ActionStartBreak, ActionEndBreak:
			if r.Method != http.MethodPost {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "action requires POST"))
				return
			}
			result, err := runAttendanceCommand(r, svc, action, body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)
		case ActionAttendanceRecord, ActionAttendanceSummary, ActionCurrentStatus:
			result, err := runAttendanceQuery(r, svc, action)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)
		default:
			responses.WriteError(r.Context(), logg, w, unknownAction(action, attendanceActions...))
		}
	}
}

func runAttendanceCommand(r *http.Request, svc attendance.Service, action string, body []byte) (any, error) {
	ctx := r.Context()
	switch action {
	case ActionCheckIn:
		var req checkInRequest
		if err := validators.DecodeJSONBytes(body, &req); err != nil {
			return nil, err
		}
		agentID, err := resolveAgent(r, req.AgentID)
		if err != nil {
			return nil, err
		}
		if req.Location != nil {
			if err := req.Location.Validate(); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
			}
		}
		return svc.CheckIn(ctx, attendance.CheckInInput{AgentID: agentID, Location: req.Location, Actor: actorRef(r)})
	case ActionStartBreak:
		var req breakRequest
		if err := validators.DecodeJSONBytes(body, &req); err != nil {
			return nil, err
		}
		agentID, err := resolveAgent(r, req.AgentID)
		if err != nil {
			return nil, err
		}
		return svc.StartBreak(ctx, agentID, validators.SanitizeString(req.Reason, 200))
	}

	var req agentRequest
	if err := validators.DecodeJSONBytes(body, &req); err != nil {
		return nil, err
	}
	agentID, err := resolveAgent(r, req.AgentID)
	if err != nil {
		return nil, err
	}
	if action == ActionEndBreak {
		return svc.EndBreak(ctx, agentID)
	}
	return svc.CheckOut(ctx, agentID, actorRef(r))
}

func runAttendanceQuery(r *http.Request, svc attendance.Service, action string) (any, error) {
	requested, err := validators.ParseQueryUUID(r, "agent_id")
	if err != nil {
		return nil, err
	}
	agentID := uuid.Nil
	if requested != nil {
		agentID = *requested
	}
	agentID, err = resolveAgent(r, agentID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionAttendanceRecord:
		date, err := validators.ParseQueryDate(r, "date")
		if err != nil {
			return nil, err
		}
		return svc.Record(r.Context(), agentID, date)
	case ActionAttendanceSummary:
		start, err := validators.ParseQueryDate(r, "start_date")
		if err != nil {
			return nil, err
		}
		end, err := validators.ParseQueryDate(r, "end_date")
		if err != nil {
			return nil, err
		}
		return svc.Summary(r.Context(), attendance.SummaryInput{AgentID: agentID, StartDate: start, EndDate: end})
	default:
		return svc.CurrentStatus(r.Context(), agentID)
	}
}

// resolveAgent defaults an omitted agent id to the caller's own profile and
// keeps agents scoped to themselves.
func resolveAgent(r *http.Request, requested uuid.UUID) (uuid.UUID, error) {
	if requested == uuid.Nil {
		if own, err := uuid.Parse(middleware.AgentIDFromContext(r.Context())); err == nil {
			return own, nil
		}
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required")
	}
	if err := authorizeAgent(r, requested); err != nil {
		return uuid.Nil, err
	}
	return requested, nil
}

// AgentLocation records a position report for the agent in the path.
func AgentLocation(svc agents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "agent service unavailable"))
			return
		}
		agentID, err := validators.ParseUUID(chi.URLParam(r, "agentId"), "agent_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorizeAgent(r, agentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var point types.GeoPoint
		if err := validators.DecodeJSONBody(r, &point); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.UpdateLocation(r.Context(), agentID, point)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
