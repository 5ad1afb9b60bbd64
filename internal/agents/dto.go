package agents

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// AgentWithStatus pairs a directory profile with its operational record.
// Status is nil when the agent has never been provisioned a status row.
type AgentWithStatus struct {
	Agent  models.Agent
	Status *models.AgentStatus
}

// StatusView is the public projection of models.AgentStatus.
type StatusView struct {
	CurrentWorkload  int             `json:"current_workload"`
	WorkloadCapacity int             `json:"workload_capacity"`
	AvailableSlots   int             `json:"available_slots"`
	IsActive         bool            `json:"is_active"`
	CheckedIn        bool            `json:"checked_in"`
	Location         *types.GeoPoint `json:"location,omitempty"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// AgentView is one row of the available-agents listing.
type AgentView struct {
	ID              uuid.UUID                  `json:"id"`
	FirstName       string                     `json:"first_name"`
	LastName        string                     `json:"last_name"`
	Name            string                     `json:"name"`
	VehicleType     enums.VehicleType          `json:"vehicle_type"`
	LifecycleStatus enums.AgentLifecycleStatus `json:"lifecycle_status"`
	CreatedAt       time.Time                  `json:"created_at"`
	Available       bool                       `json:"available"`
	Status          *StatusView                `json:"status"`
}

// AvailableAgents is the directory snapshot returned to dispatchers.
type AvailableAgents struct {
	Agents         []AgentView `json:"agents"`
	TotalAgents    int         `json:"total_agents"`
	AvailableCount int         `json:"available_count"`
	TotalCapacity  int         `json:"total_capacity"`
	UsedCapacity   int         `json:"used_capacity"`
	AvailableSlots int         `json:"available_slots"`
}

// NewStatusView projects a status row. Returns nil for a nil row.
func NewStatusView(status *models.AgentStatus) *StatusView {
	if status == nil {
		return nil
	}
	view := &StatusView{
		CurrentWorkload:  status.CurrentWorkload,
		WorkloadCapacity: status.WorkloadCapacity,
		AvailableSlots:   status.AvailableSlots(),
		IsActive:         status.IsActive,
		CheckedIn:        status.CheckedIn,
		LastUpdated:      status.LastUpdated,
	}
	if status.HasLocation() {
		point := types.GeoPoint{Lat: *status.LastLat, Lng: *status.LastLng}
		if status.LocationRecordedAt != nil {
			ts := types.NewTimestamp(*status.LocationRecordedAt)
			point.RecordedAt = &ts
		}
		view.Location = &point
	}
	return view
}

// IsAssignable applies the eligibility rule shared by scoring and manual
// assignment: an active status row exists, the agent is active and has
// headroom.
func IsAssignable(agent models.Agent, status *models.AgentStatus) bool {
	if status == nil || !status.IsActive {
		return false
	}
	if agent.LifecycleStatus != enums.AgentLifecycleActive {
		return false
	}
	return status.CurrentWorkload < status.WorkloadCapacity
}
