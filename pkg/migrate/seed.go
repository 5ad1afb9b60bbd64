package migrate

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

type seedAgent struct {
	first, last, email string
	vehicle            enums.VehicleType
	capacity           int
	lat, lng           float64
}

type seedOrder struct {
	number, customer, address string
	lat, lng                  float64
	urgent                    bool
}

var demoAgents = []seedAgent{
	{"Jacob", "Moore", "jacob.moore@printdesk.local", enums.VehicleBike, 5, 34.7539, -86.6985},
	{"Drake", "Sanchez", "drake.sanchez@printdesk.local", enums.VehicleCar, 8, 34.7529, -86.7592},
	{"Parker", "Muery", "parker.muery@printdesk.local", enums.VehicleCar, 5, 34.7930, -86.7825},
}

var demoOrders = []seedOrder{
	{"PD-1001", "Gates Mill Dental", "30 Gates Mill St NW", 34.7541, -86.6990, false},
	{"PD-1002", "Madison Signs", "165 John Thomas Dr", 34.7530, -86.7590, true},
	{"PD-1003", "Harvest Library", "283 Bob G Hughes Blvd", 34.7931, -86.7826, false},
}

// SeedDemo inserts demo agents and pending orders for local development.
// Rows already present (matched by email or order number) are skipped.
func SeedDemo(ctx context.Context, conn *gorm.DB) (int, error) {
	created := 0
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range demoAgents {
			var existing models.Agent
			err := tx.Where("email = ?", a.email).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup agent %s: %w", a.email, err)
			}
			email := a.email
			agent := models.Agent{
				FirstName:       a.first,
				LastName:        a.last,
				Email:           &email,
				VehicleType:     a.vehicle,
				LifecycleStatus: enums.AgentLifecycleActive,
			}
			if err := tx.Create(&agent).Error; err != nil {
				return fmt.Errorf("create agent %s: %w", a.email, err)
			}
			lat, lng := a.lat, a.lng
			if err := tx.Create(&models.AgentStatus{
				AgentID:          agent.ID,
				WorkloadCapacity: a.capacity,
				IsActive:         true,
				LastLat:          &lat,
				LastLng:          &lng,
			}).Error; err != nil {
				return fmt.Errorf("create agent status %s: %w", a.email, err)
			}
			created++
		}

		for _, o := range demoOrders {
			var count int64
			if err := tx.Model(&models.Order{}).Where("order_number = ?", o.number).Count(&count).Error; err != nil {
				return fmt.Errorf("lookup order %s: %w", o.number, err)
			}
			if count > 0 {
				continue
			}
			address, lat, lng := o.address, o.lat, o.lng
			if err := tx.Create(&models.Order{
				OrderNumber:     o.number,
				CustomerName:    o.customer,
				DeliveryAddress: &address,
				DeliveryLat:     &lat,
				DeliveryLng:     &lng,
				Urgent:          o.urgent,
				Status:          enums.OrderStatusPending,
			}).Error; err != nil {
				return fmt.Errorf("create order %s: %w", o.number, err)
			}
			created++
		}
		return nil
	})
	return created, err
}
