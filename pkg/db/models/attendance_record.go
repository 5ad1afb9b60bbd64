package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// BreakEntry is one pause inside an attendance day. EndTime is nil while open.
type BreakEntry struct {
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	Reason          string     `json:"reason"`
	DurationMinutes int        `json:"durationMinutes"`
}

// BreakList is persisted as a JSON array.
type BreakList []BreakEntry

func (b BreakList) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (b *BreakList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*b = BreakList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported break list source %T", src)
	}
	if len(raw) == 0 {
		*b = BreakList{}
		return nil
	}
	var out BreakList
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*b = out
	return nil
}

// Last returns the most recent break or nil.
func (b BreakList) Last() *BreakEntry {
	if len(b) == 0 {
		return nil
	}
	return &b[len(b)-1]
}

// AttendanceRecord is one agent's attendance for one calendar day.
// Writes after creation are guarded by RowVersion.
type AttendanceRecord struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	AgentID         uuid.UUID              `gorm:"column:agent_id;type:uuid;not null;uniqueIndex:ux_attendance_agent_day,priority:1"`
	WorkDate        string                 `gorm:"column:work_date;type:varchar(10);not null;uniqueIndex:ux_attendance_agent_day,priority:2"`
	CheckInTime     *time.Time             `gorm:"column:check_in_time"`
	CheckOutTime    *time.Time             `gorm:"column:check_out_time"`
	CheckInLat      *float64               `gorm:"column:check_in_lat"`
	CheckInLng      *float64               `gorm:"column:check_in_lng"`
	Breaks          BreakList              `gorm:"column:breaks;type:jsonb;not null"`
	TotalBreakHours decimal.Decimal        `gorm:"column:total_break_hours;type:numeric(6,2);not null;default:0"`
	HoursWorked     decimal.Decimal        `gorm:"column:hours_worked;type:numeric(6,2);not null;default:0"`
	Status          enums.AttendanceStatus `gorm:"column:status;type:varchar(16);not null"`
	RowVersion      int64                  `gorm:"column:row_version;not null;default:1"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (AttendanceRecord) TableName() string { return "attendance_records" }

func (r *AttendanceRecord) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	if r.Breaks == nil {
		r.Breaks = BreakList{}
	}
	if r.RowVersion == 0 {
		r.RowVersion = 1
	}
	return nil
}

// IsCheckedIn reports whether the day has a check-in without a check-out.
func (r AttendanceRecord) IsCheckedIn() bool {
	return r.CheckInTime != nil && r.CheckOutTime == nil
}
