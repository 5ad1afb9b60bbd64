package enums

import "fmt"

// AssignmentStatus is the lifecycle state of an order assignment.
type AssignmentStatus string

const (
	AssignmentStatusAssigned  AssignmentStatus = "assigned"
	AssignmentStatusAccepted  AssignmentStatus = "accepted"
	AssignmentStatusRejected  AssignmentStatus = "rejected"
	AssignmentStatusCompleted AssignmentStatus = "completed"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusAccepted,
	AssignmentStatusRejected,
	AssignmentStatusCompleted,
}

var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentStatusAssigned: {AssignmentStatusAccepted, AssignmentStatusRejected},
	AssignmentStatusAccepted: {AssignmentStatusCompleted},
}

// ActiveAssignmentStatuses hold a workload slot on the agent.
var ActiveAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusAccepted,
}

// String implements fmt.Stringer.
func (s AssignmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AssignmentStatus.
func (s AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentStatusRejected || s == AssignmentStatusCompleted
}

// IsActive reports whether the assignment still holds a slot.
func (s AssignmentStatus) IsActive() bool {
	return s == AssignmentStatusAssigned || s == AssignmentStatusAccepted
}

// CanTransitionTo reports whether moving from s to next is a legal forward step.
func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	for _, candidate := range assignmentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseAssignmentStatus converts raw input into an AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
