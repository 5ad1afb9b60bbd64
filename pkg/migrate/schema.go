package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
)

// activeAssignmentIndex mirrors the partial unique index in the Postgres
// migrations: one assigned/accepted assignment per order.
const activeAssignmentIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_order_assignments_active
ON order_assignments (order_id) WHERE status IN ('assigned', 'accepted')`

// AutoMigrate builds the dispatch schema from the GORM models. Used for
// SQLite dev databases and repository tests.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Agent{},
		&models.AgentStatus{},
		&models.Order{},
		&models.OrderAssignment{},
		&models.AttendanceRecord{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		return fmt.Errorf("automigrate models: %w", err)
	}
	if err := conn.Exec(activeAssignmentIndex).Error; err != nil {
		return fmt.Errorf("create active assignment index: %w", err)
	}
	return nil
}
