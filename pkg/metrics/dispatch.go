package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Assignment outcomes.
const (
	OutcomeAssigned    = "assigned"
	OutcomeNoAgents    = "no_agents"
	OutcomeUnavailable = "agent_unavailable"
	OutcomeConflict    = "conflict"
	OutcomeError       = "error"
)

// DispatchMetrics counts assignment and attendance activity.
type DispatchMetrics struct {
	assignments *prometheus.CounterVec
	transitions *prometheus.CounterVec
	attendance  *prometheus.CounterVec
	scores      prometheus.Histogram
}

// NewDispatchMetrics registers dispatch metrics on reg. A nil registerer
// yields a no-op recorder.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "assignment",
		Name:      "attempts_total",
		Help:      "Assignment attempts by mode and outcome.",
	}, []string{"mode", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "assignment",
		Name:      "transitions_total",
		Help:      "Committed assignment status transitions.",
	}, []string{"to"})
	attendance := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "attendance",
		Name:      "actions_total",
		Help:      "Attendance actions by action and result.",
	}, []string{"action", "result"})
	scores := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "assignment",
		Name:      "winning_score",
		Help:      "Score of the agent picked by automatic assignment.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
	reg.MustRegister(assignments, transitions, attendance, scores)
	return &DispatchMetrics{
		assignments: assignments,
		transitions: transitions,
		attendance:  attendance,
		scores:      scores,
	}
}

// IncAssignment records one assignment attempt.
func (d *DispatchMetrics) IncAssignment(mode, outcome string) {
	if d == nil || d.assignments == nil {
		return
	}
	d.assignments.WithLabelValues(normalizeLabel(mode), normalizeLabel(outcome)).Inc()
}

// IncTransition records a committed status change.
func (d *DispatchMetrics) IncTransition(to string) {
	if d == nil || d.transitions == nil {
		return
	}
	d.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

// IncAttendance records an attendance action result ("ok" or an error code).
func (d *DispatchMetrics) IncAttendance(action, result string) {
	if d == nil || d.attendance == nil {
		return
	}
	d.attendance.WithLabelValues(normalizeLabel(action), normalizeLabel(result)).Inc()
}

// ObserveWinningScore records the total score of an auto-selected agent.
func (d *DispatchMetrics) ObserveWinningScore(score float64) {
	if d == nil || d.scores == nil {
		return
	}
	d.scores.Observe(score)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
