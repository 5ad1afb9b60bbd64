package attendance

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

// CheckInInput starts an agent's day.
type CheckInInput struct {
	AgentID  uuid.UUID
	Location *types.GeoPoint
	Actor    *outbox.ActorRef
}

// BreakView is the public projection of models.BreakEntry.
type BreakView struct {
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Reason          string     `json:"reason"`
	DurationMinutes int        `json:"duration_minutes"`
}

// RecordView is the public projection of models.AttendanceRecord.
type RecordView struct {
	ID              uuid.UUID              `json:"id"`
	AgentID         uuid.UUID              `json:"agent_id"`
	Date            string                 `json:"date"`
	CheckInTime     *time.Time             `json:"check_in_time"`
	CheckOutTime    *time.Time             `json:"check_out_time"`
	CheckInLocation *types.GeoPoint        `json:"check_in_location,omitempty"`
	Breaks          []BreakView            `json:"breaks"`
	TotalBreakTime  float64                `json:"total_break_time"`
	HoursWorked     float64                `json:"hours_worked"`
	Status          enums.AttendanceStatus `json:"status"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// RecordResult answers a single-day lookup. Record is nil when the day has
// no stored record; Status then reports absent for past days.
type RecordResult struct {
	Date   string                 `json:"date"`
	Status enums.AttendanceStatus `json:"status"`
	Record *RecordView            `json:"record"`
}

// CurrentStatus is the derived state of an agent's current day.
type CurrentStatus struct {
	AgentID uuid.UUID                    `json:"agent_id"`
	Date    string                       `json:"date"`
	State   enums.AttendanceDisplayState `json:"state"`
	Record  *RecordView                  `json:"record"`
}

// SummaryInput selects the summary window. Dates are YYYY-MM-DD; empty
// values fall back to the configured trailing window ending today.
type SummaryInput struct {
	AgentID   uuid.UUID
	StartDate string
	EndDate   string
}

// Summary aggregates attendance over a date window.
type Summary struct {
	AgentID        uuid.UUID    `json:"agent_id"`
	StartDate      string       `json:"start_date"`
	EndDate        string       `json:"end_date"`
	TotalDays      int          `json:"total_days"`
	WorkingDays    int          `json:"working_days"`
	AbsentDays     int          `json:"absent_days"`
	TotalHours     float64      `json:"total_hours"`
	AvgHoursPerDay float64      `json:"avg_hours_per_day"`
	TotalBreakTime float64      `json:"total_break_time"`
	AttendanceRate int          `json:"attendance_rate"`
	Records        []RecordView `json:"records"`
}

// NewRecordView projects a stored record. Returns nil for a nil record.
func NewRecordView(rec *models.AttendanceRecord) *RecordView {
	if rec == nil {
		return nil
	}
	view := &RecordView{
		ID:              rec.ID,
		AgentID:         rec.AgentID,
		Date:            rec.WorkDate,
		CheckInTime:     rec.CheckInTime,
		CheckOutTime:    rec.CheckOutTime,
		CheckInLocation: types.PointFrom(rec.CheckInLat, rec.CheckInLng),
		Breaks:          make([]BreakView, 0, len(rec.Breaks)),
		TotalBreakTime:  rec.TotalBreakHours.InexactFloat64(),
		HoursWorked:     rec.HoursWorked.InexactFloat64(),
		Status:          rec.Status,
		UpdatedAt:       rec.UpdatedAt,
	}
	for _, b := range rec.Breaks {
		view.Breaks = append(view.Breaks, BreakView(b))
	}
	return view
}
