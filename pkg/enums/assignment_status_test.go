package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentStatusTransitions(t *testing.T) {
	cases := []struct {
		from  AssignmentStatus
		to    AssignmentStatus
		legal bool
	}{
		{AssignmentStatusAssigned, AssignmentStatusAccepted, true},
		{AssignmentStatusAssigned, AssignmentStatusRejected, true},
		{AssignmentStatusAccepted, AssignmentStatusCompleted, true},
		{AssignmentStatusAssigned, AssignmentStatusCompleted, false},
		{AssignmentStatusAccepted, AssignmentStatusRejected, false},
		{AssignmentStatusAccepted, AssignmentStatusAssigned, false},
		{AssignmentStatusRejected, AssignmentStatusAccepted, false},
		{AssignmentStatusCompleted, AssignmentStatusAccepted, false},
		{AssignmentStatusAssigned, AssignmentStatusAssigned, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.legal, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAssignmentStatusTerminal(t *testing.T) {
	assert.True(t, AssignmentStatusRejected.IsTerminal())
	assert.True(t, AssignmentStatusCompleted.IsTerminal())
	assert.False(t, AssignmentStatusAssigned.IsTerminal())
	assert.True(t, AssignmentStatusAccepted.IsActive())
	assert.False(t, AssignmentStatusCompleted.IsActive())
}

func TestParseEnums(t *testing.T) {
	status, err := ParseAssignmentStatus("accepted")
	require.NoError(t, err)
	assert.Equal(t, AssignmentStatusAccepted, status)

	_, err = ParseAssignmentStatus("cancelled")
	require.Error(t, err)

	order, err := ParseOrderStatus("Out for Delivery")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusOutForDelivery, order)

	_, err = ParseVehicleType("truck")
	require.Error(t, err)
	assert.True(t, VehicleBicycle.IsValid())
}
