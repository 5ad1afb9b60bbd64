package enums

import "fmt"

// AttendanceStatus is the persisted state of an agent's attendance day.
type AttendanceStatus string

const (
	AttendanceNotCheckedIn AttendanceStatus = "not-checked-in"
	AttendanceCheckedIn    AttendanceStatus = "checked-in"
	AttendanceOnBreak      AttendanceStatus = "on-break"
	AttendanceCheckedOut   AttendanceStatus = "checked-out"
	AttendanceAbsent       AttendanceStatus = "absent"
)

var validAttendanceStatuses = []AttendanceStatus{
	AttendanceNotCheckedIn,
	AttendanceCheckedIn,
	AttendanceOnBreak,
	AttendanceCheckedOut,
	AttendanceAbsent,
}

// String implements fmt.Stringer.
func (s AttendanceStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AttendanceStatus.
func (s AttendanceStatus) IsValid() bool {
	for _, candidate := range validAttendanceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAttendanceStatus converts raw input into an AttendanceStatus.
func ParseAttendanceStatus(value string) (AttendanceStatus, error) {
	for _, candidate := range validAttendanceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attendance status %q", value)
}

// AttendanceDisplayState is the derived, read-only state shown to dispatchers.
type AttendanceDisplayState string

const (
	DisplayWorking      AttendanceDisplayState = "working"
	DisplayOnBreak      AttendanceDisplayState = "on-break"
	DisplayCheckedOut   AttendanceDisplayState = "checked-out"
	DisplayNotCheckedIn AttendanceDisplayState = "not-checked-in"
)

// String implements fmt.Stringer.
func (s AttendanceDisplayState) String() string {
	return string(s)
}
