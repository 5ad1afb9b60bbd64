package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// OrderAssignment binds one order to one agent. At most one assignment per
// order is active (assigned or accepted) at any time.
type OrderAssignment struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	AgentID     uuid.UUID              `gorm:"column:agent_id;type:uuid;not null;index"`
	AssignedBy  string                 `gorm:"column:assigned_by;not null"`
	Status      enums.AssignmentStatus `gorm:"column:status;type:varchar(16);not null"`
	Notes       *string                `gorm:"column:notes"`
	AssignedAt  time.Time              `gorm:"column:assigned_at;not null"`
	AcceptedAt  *time.Time             `gorm:"column:accepted_at"`
	RejectedAt  *time.Time             `gorm:"column:rejected_at"`
	CompletedAt *time.Time             `gorm:"column:completed_at"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderAssignment) TableName() string { return "order_assignments" }

func (a *OrderAssignment) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
