package enums

import "fmt"

// OutboxAggregateType names the row an outbox event describes. It doubles
// as the Pub/Sub ordering scope together with the aggregate id.
type OutboxAggregateType string

const (
	AggregateOrderAssignment OutboxAggregateType = "order_assignment"
	AggregateAttendance      OutboxAggregateType = "attendance_record"
)

// OutboxEventType is the "type" attribute consumers route on.
type OutboxEventType string

const (
	EventAssignmentCreated       OutboxEventType = "assignment_created"
	EventAssignmentStatusChanged OutboxEventType = "assignment_status_changed"
	EventAttendanceCheckedIn     OutboxEventType = "attendance_checked_in"
	EventAttendanceCheckedOut    OutboxEventType = "attendance_checked_out"
	EventAttendanceMarkedAbsent  OutboxEventType = "attendance_marked_absent"
)

var eventOwners = map[OutboxEventType]OutboxAggregateType{
	EventAssignmentCreated:       AggregateOrderAssignment,
	EventAssignmentStatusChanged: AggregateOrderAssignment,
	EventAttendanceCheckedIn:     AggregateAttendance,
	EventAttendanceCheckedOut:    AggregateAttendance,
	EventAttendanceMarkedAbsent:  AggregateAttendance,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventOwners[e]
	return ok
}

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrderAssignment || a == AggregateAttendance
}

// CheckOutboxPair rejects unknown event types and events filed under the
// wrong aggregate, e.g. a check-in recorded against an assignment.
func CheckOutboxPair(event OutboxEventType, aggregate OutboxAggregateType) error {
	owner, ok := eventOwners[event]
	switch {
	case !ok:
		return fmt.Errorf("unknown event type %q", event)
	case owner != aggregate:
		return fmt.Errorf("event %s belongs to %s, not %q", event, owner, aggregate)
	}
	return nil
}
