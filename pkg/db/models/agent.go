package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// Agent is a delivery agent profile. Agents are never hard-deleted.
type Agent struct {
	ID              uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	FirstName       string                     `gorm:"column:first_name;not null"`
	LastName        string                     `gorm:"column:last_name;not null"`
	Email           *string                    `gorm:"column:email"`
	Phone           *string                    `gorm:"column:phone"`
	VehicleType     enums.VehicleType          `gorm:"column:vehicle_type;type:varchar(16);not null"`
	LifecycleStatus enums.AgentLifecycleStatus `gorm:"column:lifecycle_status;type:varchar(16);not null"`
	CreatedAt       time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Agent) TableName() string { return "agents" }

func (a *Agent) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// FullName joins first and last name.
func (a Agent) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}
