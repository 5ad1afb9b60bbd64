package attendance

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// DateLayout is the calendar-day key format.
const DateLayout = "2006-01-02"

var (
	hourNanos  = decimal.NewFromInt(int64(time.Hour))
	sixty      = decimal.NewFromInt(60)
	hundred    = decimal.NewFromInt(100)
	hoursPlace = int32(2)
)

// DayKey renders t as a calendar day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// ParseDay parses a YYYY-MM-DD key as midnight in loc.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, loc)
}

// BreakDuration is the length of a break. An open break runs until until.
func BreakDuration(b models.BreakEntry, until time.Time) time.Duration {
	end := until
	if b.EndTime != nil {
		end = *b.EndTime
	}
	if end.Before(b.StartTime) {
		return 0
	}
	return end.Sub(b.StartTime)
}

// BreakMinutes rounds a break's duration to whole minutes.
func BreakMinutes(b models.BreakEntry, until time.Time) int {
	return int(math.Round(BreakDuration(b, until).Minutes()))
}

// TotalBreak sums every break, treating open breaks as running until until.
func TotalBreak(breaks models.BreakList, until time.Time) time.Duration {
	var total time.Duration
	for _, b := range breaks {
		total += BreakDuration(b, until)
	}
	return total
}

// Hours converts a duration to hours rounded to two decimals.
func Hours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d)).Div(hourNanos).Round(hoursPlace)
}

// HoursWorked is the span between check-in and check-out minus breaks,
// floored at zero and rounded to two decimals.
func HoursWorked(checkIn, checkOut time.Time, breaks time.Duration) decimal.Decimal {
	worked := checkOut.Sub(checkIn) - breaks
	if worked < 0 {
		return decimal.Zero
	}
	return Hours(worked)
}

// DisplayState derives what a dispatcher sees for the day without mutating
// anything.
func DisplayState(rec *models.AttendanceRecord) enums.AttendanceDisplayState {
	switch {
	case rec == nil || rec.CheckInTime == nil:
		return enums.DisplayNotCheckedIn
	case rec.CheckOutTime != nil:
		return enums.DisplayCheckedOut
	case rec.Breaks.Last() != nil && rec.Breaks.Last().EndTime == nil:
		return enums.DisplayOnBreak
	default:
		return enums.DisplayWorking
	}
}

// Totals aggregates a range of attendance days.
type Totals struct {
	TotalDays       int
	WorkingDays     int
	AbsentDays      int
	TotalHours      decimal.Decimal
	AvgHoursPerDay  decimal.Decimal
	TotalBreakHours decimal.Decimal
	AttendanceRate  int
}

// Summarize folds records into Totals. Every record in range is a day;
// only checked-in and checked-out records count as worked.
func Summarize(records []models.AttendanceRecord) Totals {
	out := Totals{
		TotalDays:       len(records),
		TotalHours:      decimal.Zero,
		AvgHoursPerDay:  decimal.Zero,
		TotalBreakHours: decimal.Zero,
	}

	breakMinutes := 0
	for _, rec := range records {
		if countsAsWorked(rec.Status) {
			out.WorkingDays++
		}
		out.TotalHours = out.TotalHours.Add(rec.HoursWorked)
		for _, b := range rec.Breaks {
			breakMinutes += b.DurationMinutes
		}
	}

	out.AbsentDays = out.TotalDays - out.WorkingDays
	out.TotalHours = out.TotalHours.Round(hoursPlace)
	out.TotalBreakHours = decimal.NewFromInt(int64(breakMinutes)).Div(sixty).Round(hoursPlace)
	if out.WorkingDays > 0 {
		out.AvgHoursPerDay = out.TotalHours.Div(decimal.NewFromInt(int64(out.WorkingDays))).Round(hoursPlace)
	}
	if out.TotalDays > 0 {
		rate := decimal.NewFromInt(int64(out.WorkingDays)).Mul(hundred).Div(decimal.NewFromInt(int64(out.TotalDays)))
		out.AttendanceRate = int(rate.Round(0).IntPart())
	}
	return out
}

func countsAsWorked(status enums.AttendanceStatus) bool {
	return status == enums.AttendanceCheckedIn || status == enums.AttendanceCheckedOut
}
