package models

import (
	"time"

	"github.com/google/uuid"
)

// AgentStatus is the mutable operational record paired 1:1 with an Agent.
// CurrentWorkload stays within [0, WorkloadCapacity] after every commit.
type AgentStatus struct {
	AgentID            uuid.UUID  `gorm:"column:agent_id;type:uuid;primaryKey"`
	CurrentWorkload    int        `gorm:"column:current_workload;not null;default:0"`
	WorkloadCapacity   int        `gorm:"column:workload_capacity;not null;default:5"`
	IsActive           bool       `gorm:"column:is_active;not null;default:true"`
	CheckedIn          bool       `gorm:"column:checked_in;not null;default:false"`
	LastLat            *float64   `gorm:"column:last_lat"`
	LastLng            *float64   `gorm:"column:last_lng"`
	LocationRecordedAt *time.Time `gorm:"column:location_recorded_at"`
	LastUpdated        time.Time  `gorm:"column:last_updated;autoUpdateTime"`
}

func (AgentStatus) TableName() string { return "agent_statuses" }

// HasLocation reports whether a last known position is recorded.
func (s AgentStatus) HasLocation() bool {
	return s.LastLat != nil && s.LastLng != nil
}

// AvailableSlots is the remaining capacity, never negative. A paused status
// has none.
func (s AgentStatus) AvailableSlots() int {
	if !s.IsActive {
		return 0
	}
	if free := s.WorkloadCapacity - s.CurrentWorkload; free > 0 {
		return free
	}
	return 0
}
