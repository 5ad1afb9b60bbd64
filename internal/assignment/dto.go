package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// Assignment modes used in logs and metrics.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// AssignInput is a request to bind an order to an agent. With AutoAssign the
// scoring engine picks the agent and AgentID is ignored.
type AssignInput struct {
	OrderID         uuid.UUID
	AgentID         *uuid.UUID
	AutoAssign      bool
	AssignedBy      string
	Notes           *string
	Target          *types.GeoPoint
	ExcludeAgentIDs []uuid.UUID
	Actor           *outbox.ActorRef
}

// UpdateStatusInput moves an assignment forward.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	AgentID uuid.UUID
	Status  enums.AssignmentStatus
	Notes   *string
	Actor   *outbox.ActorRef
}

// PreviewInput asks for the ranked candidates of an order without assigning.
type PreviewInput struct {
	OrderID         uuid.UUID
	Target          *types.GeoPoint
	ExcludeAgentIDs []uuid.UUID
}

// OrderFilters narrow the orders-with-details listing.
type OrderFilters struct {
	Status  *enums.OrderStatus
	AgentID *uuid.UUID
}

// AgentSummary is the compact agent projection embedded in order views.
type AgentSummary struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	VehicleType enums.VehicleType `json:"vehicle_type"`
	Phone       *string           `json:"phone,omitempty"`
}

// AssignmentView is the public projection of models.OrderAssignment.
type AssignmentView struct {
	ID          uuid.UUID              `json:"id"`
	OrderID     uuid.UUID              `json:"order_id"`
	AgentID     uuid.UUID              `json:"agent_id"`
	AssignedBy  string                 `json:"assigned_by"`
	Status      enums.AssignmentStatus `json:"status"`
	Notes       *string                `json:"notes,omitempty"`
	AssignedAt  time.Time              `json:"assigned_at"`
	AcceptedAt  *time.Time             `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time             `json:"rejected_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// OrderView is the public projection of models.Order.
type OrderView struct {
	ID              uuid.UUID         `json:"id"`
	OrderNumber     string            `json:"order_number"`
	CustomerName    string            `json:"customer_name"`
	CustomerPhone   *string           `json:"customer_phone,omitempty"`
	DeliveryAddress *string           `json:"delivery_address,omitempty"`
	DeliveryPoint   *types.GeoPoint   `json:"delivery_location,omitempty"`
	Urgent          bool              `json:"urgent"`
	Status          enums.OrderStatus `json:"status"`
	AssignedAgentID *uuid.UUID        `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// OrderDetail is one row of the orders-with-details listing.
type OrderDetail struct {
	OrderView
	Assignment *AssignmentView `json:"assignment"`
	Agent      *AgentSummary   `json:"agent"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDetail `json:"orders"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// AssignResult describes a committed assignment.
type AssignResult struct {
	Assignment   AssignmentView  `json:"assignment"`
	Agent        AgentSummary    `json:"agent"`
	Order        OrderView       `json:"order"`
	AutoAssigned bool            `json:"auto_assigned"`
	Score        *ScoreBreakdown `json:"score,omitempty"`
}

// UpdateStatusResult describes a committed transition.
type UpdateStatusResult struct {
	Assignment     AssignmentView         `json:"assignment"`
	PreviousStatus enums.AssignmentStatus `json:"previous_status"`
	OrderStatus    enums.OrderStatus      `json:"order_status"`
	WorkloadFreed  bool                   `json:"workload_released"`
}

// CandidateView is one ranked agent in a preview.
type CandidateView struct {
	Agent            AgentSummary   `json:"agent"`
	CurrentWorkload  int            `json:"current_workload"`
	WorkloadCapacity int            `json:"workload_capacity"`
	Score            ScoreBreakdown `json:"score"`
}

// PreviewResult lists eligible agents best first.
type PreviewResult struct {
	OrderID    uuid.UUID       `json:"order_id"`
	Urgent     bool            `json:"urgent"`
	Target     *types.GeoPoint `json:"target,omitempty"`
	Candidates []CandidateView `json:"candidates"`
}

func newAgentSummary(agent models.Agent) AgentSummary {
	return AgentSummary{
		ID:          agent.ID,
		Name:        agent.FullName(),
		VehicleType: agent.VehicleType,
		Phone:       agent.Phone,
	}
}

func newAssignmentView(a models.OrderAssignment) AssignmentView {
	return AssignmentView{
		ID:          a.ID,
		OrderID:     a.OrderID,
		AgentID:     a.AgentID,
		AssignedBy:  a.AssignedBy,
		Status:      a.Status,
		Notes:       a.Notes,
		AssignedAt:  a.AssignedAt,
		AcceptedAt:  a.AcceptedAt,
		RejectedAt:  a.RejectedAt,
		CompletedAt: a.CompletedAt,
	}
}

func newOrderView(o models.Order) OrderView {
	return OrderView{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryPoint:   types.PointFrom(o.DeliveryLat, o.DeliveryLng),
		Urgent:          o.Urgent,
		Status:          o.Status,
		AssignedAgentID: o.AssignedAgentID,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
