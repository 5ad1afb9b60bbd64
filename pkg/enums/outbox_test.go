package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckOutboxPair(t *testing.T) {
	require.NoError(t, CheckOutboxPair(EventAssignmentStatusChanged, AggregateOrderAssignment))
	require.NoError(t, CheckOutboxPair(EventAttendanceMarkedAbsent, AggregateAttendance))
	require.ErrorContains(t, CheckOutboxPair("order_teleported", AggregateOrderAssignment), "unknown event type")
	require.ErrorContains(t, CheckOutboxPair(EventAttendanceCheckedOut, AggregateOrderAssignment), "belongs to attendance_record")
	require.False(t, OutboxAggregateType("invoice").IsValid())
	require.True(t, EventAttendanceCheckedIn.IsValid())
}
