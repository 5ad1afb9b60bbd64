package enums

import "fmt"

// AgentLifecycleStatus tracks onboarding state of a field agent.
type AgentLifecycleStatus string

const (
	AgentLifecyclePending   AgentLifecycleStatus = "pending"
	AgentLifecycleActive    AgentLifecycleStatus = "active"
	AgentLifecycleSuspended AgentLifecycleStatus = "suspended"
)

var validAgentLifecycleStatuses = []AgentLifecycleStatus{
	AgentLifecyclePending,
	AgentLifecycleActive,
	AgentLifecycleSuspended,
}

// String implements fmt.Stringer.
func (s AgentLifecycleStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AgentLifecycleStatus.
func (s AgentLifecycleStatus) IsValid() bool {
	for _, candidate := range validAgentLifecycleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAgentLifecycleStatus converts raw input into an AgentLifecycleStatus.
func ParseAgentLifecycleStatus(value string) (AgentLifecycleStatus, error) {
	for _, candidate := range validAgentLifecycleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agent lifecycle status %q", value)
}
