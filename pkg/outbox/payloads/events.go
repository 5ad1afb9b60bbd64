package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// AssignmentCreatedEvent is emitted when an order is bound to an agent.
type AssignmentCreatedEvent struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
	OrderID      uuid.UUID `json:"order_id"`
	AgentID      uuid.UUID `json:"agent_id"`
	AssignedBy   string    `json:"assigned_by"`
	AutoAssigned bool      `json:"auto_assigned"`
	Score        *float64  `json:"score,omitempty"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// AssignmentStatusChangedEvent is emitted for every committed transition.
type AssignmentStatusChangedEvent struct {
	AssignmentID uuid.UUID              `json:"assignment_id"`
	OrderID      uuid.UUID              `json:"order_id"`
	AgentID      uuid.UUID              `json:"agent_id"`
	From         enums.AssignmentStatus `json:"from"`
	To           enums.AssignmentStatus `json:"to"`
	OrderStatus  enums.OrderStatus      `json:"order_status"`
	Notes        *string                `json:"notes,omitempty"`
	ChangedAt    time.Time              `json:"changed_at"`
}

// AttendanceEvent covers check-in, check-out and absence marking.
type AttendanceEvent struct {
	RecordID    uuid.UUID              `json:"record_id"`
	AgentID     uuid.UUID              `json:"agent_id"`
	WorkDate    string                 `json:"work_date"`
	Status      enums.AttendanceStatus `json:"status"`
	HoursWorked *float64               `json:"hours_worked,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}
