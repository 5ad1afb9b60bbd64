package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/api/middleware"
	"github.com/angelmondragon/printdesk-backend/api/responses"
	"github.com/angelmondragon/printdesk-backend/api/validators"
	"github.com/angelmondragon/printdesk-backend/internal/agents"
	"github.com/angelmondragon/printdesk-backend/internal/assignment"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/pagination"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// Assignment group actions.
const (
	ActionAvailableAgents   = "available-agents"
	ActionOrdersWithDetails = "orders-with-details"
	ActionCandidates        = "candidates"
	ActionAssignOrder       = "assign-order"
	ActionUpdateStatus      = "update-assignment-status"
)

var assignmentActions = []string{
	ActionAvailableAgents,
	ActionOrdersWithDetails,
	ActionCandidates,
	ActionAssignOrder,
	ActionUpdateStatus,
}

type assignOrderRequest struct {
	Action          string          `json:"action,omitempty"`
	OrderID         uuid.UUID       `json:"order_id"`
	AgentID         *uuid.UUID      `json:"agent_id,omitempty"`
	AssignedBy      string          `json:"assigned_by" validate:"max=128"`
	Notes           *string         `json:"notes,omitempty" validate:"omitempty,max=1000"`
	AutoAssign      bool            `json:"auto_assign"`
	Target          *types.GeoPoint `json:"target,omitempty"`
	ExcludeAgentIDs []uuid.UUID     `json:"exclude_agent_ids,omitempty" validate:"max=100"`
}

type updateStatusRequest struct {
	Action  string                 `json:"action,omitempty"`
	OrderID uuid.UUID              `json:"order_id"`
	AgentID uuid.UUID              `json:"agent_id"`
	Status  enums.AssignmentStatus `json:"status" validate:"required"`
	Notes   *string                `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// AssignmentActions serves the assignment request group. Queries read the
// URL query string; commands read a JSON body and require POST.
func AssignmentActions(svc assignment.Service, agentSvc agents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || agentSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}
		body, err := readBody(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action := actionOf(r, body)
		switch action {
		case ActionAvailableAgents:
			writeAvailableAgents(w, r, agentSvc, logg)
		case ActionOrdersWithDetails:
			writeOrdersWithDetails(w, r, svc, logg)
		case ActionCandidates:
			orderID, err := validators.ParseUUID(r.URL.Query().Get("order_id"), "order_id")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			writeCandidates(w, r, svc, orderID, logg)
		case ActionAssignOrder:
			if r.Method != http.MethodPost {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "action requires POST"))
				return
			}
			var req assignOrderRequest
			if err := validators.DecodeJSONBytes(body, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			writeAssign(w, r, svc, req, logg)
		case ActionUpdateStatus:
			if r.Method != http.MethodPost {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "action requires POST"))
				return
			}
			var req updateStatusRequest
			if err := validators.DecodeJSONBytes(body, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			writeUpdateStatus(w, r, svc, req, logg)
		default:
			responses.WriteError(r.Context(), logg, w, unknownAction(action, assignmentActions...))
		}
	}
}

// AvailableAgents lists active agents with their status and capacity totals.
func AvailableAgents(agentSvc agents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeAvailableAgents(w, r, agentSvc, logg)
	}
}

// OrdersWithDetails lists orders joined with their latest assignment.
func OrdersWithDetails(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOrdersWithDetails(w, r, svc, logg)
	}
}

// AssignOrder binds the order in the path to an agent.
func AssignOrder(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUID(chi.URLParam(r, "orderId"), "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req assignOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.OrderID = orderID
		writeAssign(w, r, svc, req, logg)
	}
}

// UpdateAssignmentStatus moves the assignment of the order in the path.
func UpdateAssignmentStatus(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUID(chi.URLParam(r, "orderId"), "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.OrderID = orderID
		writeUpdateStatus(w, r, svc, req, logg)
	}
}

// OrderCandidates previews the ranked agents for the order in the path.
func OrderCandidates(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUID(chi.URLParam(r, "orderId"), "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCandidates(w, r, svc, orderID, logg)
	}
}

func writeAvailableAgents(w http.ResponseWriter, r *http.Request, agentSvc agents.Service, logg *logger.Logger) {
	list, err := agentSvc.AvailableAgents(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, list)
}

func writeOrdersWithDetails(w http.ResponseWriter, r *http.Request, svc assignment.Service, logg *logger.Logger) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	agentID, err := validators.ParseQueryUUID(r, "agent_id")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	filters := assignment.OrderFilters{AgentID: agentID}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := enums.OrderStatus(raw)
		filters.Status = &status
	}
	// agents only see their own queue
	if middleware.RoleFromContext(r.Context()) == string(enums.MemberRoleAgent) {
		own, err := uuid.Parse(middleware.AgentIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "agent profile required"))
			return
		}
		filters.AgentID = &own
	}

	list, err := svc.OrdersWithDetails(r.Context(), filters, pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, list)
}

func writeCandidates(w http.ResponseWriter, r *http.Request, svc assignment.Service, orderID uuid.UUID, logg *logger.Logger) {
	if err := forbidAgents(r); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	target, err := queryTarget(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	exclude, err := queryUUIDList(r, "exclude_agent_ids")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	preview, err := svc.Preview(r.Context(), assignment.PreviewInput{
		OrderID:         orderID,
		Target:          target,
		ExcludeAgentIDs: exclude,
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, preview)
}

func writeAssign(w http.ResponseWriter, r *http.Request, svc assignment.Service, req assignOrderRequest, logg *logger.Logger) {
	if err := forbidAgents(r); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	assignedBy := validators.SanitizeString(req.AssignedBy, 128)
	if assignedBy == "" {
		assignedBy = middleware.ActorIDFromContext(r.Context())
	}
	result, err := svc.Assign(r.Context(), assignment.AssignInput{
		OrderID:         req.OrderID,
		AgentID:         req.AgentID,
		AutoAssign:      req.AutoAssign,
		AssignedBy:      assignedBy,
		Notes:           validators.SanitizeOptional(req.Notes, 1000),
		Target:          req.Target,
		ExcludeAgentIDs: req.ExcludeAgentIDs,
		Actor:           actorRef(r),
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, result)
}

func writeUpdateStatus(w http.ResponseWriter, r *http.Request, svc assignment.Service, req updateStatusRequest, logg *logger.Logger) {
	if err := authorizeAgent(r, req.AgentID); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	result, err := svc.UpdateStatus(r.Context(), assignment.UpdateStatusInput{
		OrderID: req.OrderID,
		AgentID: req.AgentID,
		Status:  req.Status,
		Notes:   validators.SanitizeOptional(req.Notes, 1000),
		Actor:   actorRef(r),
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, result)
}

func forbidAgents(r *http.Request) error {
	if middleware.RoleFromContext(r.Context()) == string(enums.MemberRoleAgent) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "dispatcher role required")
	}
	return nil
}

// queryTarget reads an optional lat/lng pair.
func queryTarget(r *http.Request) (*types.GeoPoint, error) {
	rawLat := strings.TrimSpace(r.URL.Query().Get("lat"))
	rawLng := strings.TrimSpace(r.URL.Query().Get("lng"))
	if rawLat == "" && rawLng == "" {
		return nil, nil
	}
	lat, latErr := strconv.ParseFloat(rawLat, 64)
	lng, lngErr := strconv.ParseFloat(rawLng, 64)
	if latErr != nil || lngErr != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must both be numbers")
	}
	point := types.GeoPoint{Lat: lat, Lng: lng}
	if err := point.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target location")
	}
	return &point, nil
}

func queryUUIDList(r *http.Request, key string) ([]uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		id, err := validators.ParseUUID(part, key)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
