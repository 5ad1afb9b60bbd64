package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// Order is the print order as seen by dispatch. Only Status and
// AssignedAgentID are written by the assignment flow.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string            `gorm:"column:order_number;not null"`
	CustomerName    string            `gorm:"column:customer_name;not null"`
	CustomerPhone   *string           `gorm:"column:customer_phone"`
	DeliveryAddress *string           `gorm:"column:delivery_address"`
	DeliveryLat     *float64          `gorm:"column:delivery_lat"`
	DeliveryLng     *float64          `gorm:"column:delivery_lng"`
	Urgent          bool              `gorm:"column:urgent;not null;default:false"`
	Status          enums.OrderStatus `gorm:"column:status;type:varchar(32);not null"`
	AssignedAgentID *uuid.UUID        `gorm:"column:assigned_agent_id;type:uuid"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
