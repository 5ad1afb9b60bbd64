package assignment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/internal/agents"
	"github.com/angelmondragon/printdesk-backend/pkg/db"
	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/metrics"
	"github.com/angelmondragon/printdesk-backend/pkg/migrate"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/pagination"
)

type assignmentFixture struct {
	conn   *gorm.DB
	svc    *service
	outbox *outbox.Repository
	now    time.Time
}

func newAssignmentFixture(t *testing.T) *assignmentFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:assignment_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migrate.AutoMigrate(conn))

	outboxRepo := outbox.NewRepository(conn)
	built, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Agents:  agents.NewRepository(conn),
		Tx:      db.NewFromConn(conn),
		Outbox:  outbox.NewService(outboxRepo, nil),
		Metrics: metrics.NewDispatchMetrics(prometheus.NewRegistry()),
		Weights: DefaultWeights(),
	})
	require.NoError(t, err)

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	svc := built.(*service)
	svc.now = func() time.Time { return now }
	return &assignmentFixture{conn: conn, svc: svc, outbox: outboxRepo, now: now}
}

func (f *assignmentFixture) agent(t *testing.T, name string, vehicle enums.VehicleType, workload, capacity int) models.Agent {
	t.Helper()
	agent := models.Agent{
		FirstName:       name,
		LastName:        "Rider",
		VehicleType:     vehicle,
		LifecycleStatus: enums.AgentLifecycleActive,
		CreatedAt:       f.now.Add(-24 * time.Hour),
	}
	require.NoError(t, f.conn.Create(&agent).Error)
	require.NoError(t, f.conn.Create(&models.AgentStatus{
		AgentID:          agent.ID,
		CurrentWorkload:  workload,
		WorkloadCapacity: capacity,
		IsActive:         true,
	}).Error)
	return agent
}

func (f *assignmentFixture) order(t *testing.T, number string) models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber:  number,
		CustomerName: "Print Customer",
		Status:       enums.OrderStatusPending,
		CreatedAt:    f.now,
	}
	require.NoError(t, f.conn.Create(&order).Error)
	return order
}

func (f *assignmentFixture) workload(t *testing.T, agentID uuid.UUID) int {
	t.Helper()
	var status models.AgentStatus
	require.NoError(t, f.conn.Where("agent_id = ?", agentID).First(&status).Error)
	return status.CurrentWorkload
}

func (f *assignmentFixture) reloadOrder(t *testing.T, orderID uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", orderID).First(&order).Error)
	return order
}

func TestCapacityExhaustion(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	agent := f.agent(t, "Only", enums.VehicleBike, 4, 5)
	first := f.order(t, "PD-1001")
	second := f.order(t, "PD-1002")

	res, err := f.svc.Assign(ctx, AssignInput{OrderID: first.ID, AutoAssign: true, AssignedBy: "dispatcher-1"})
	require.NoError(t, err)
	require.Equal(t, agent.ID, res.Agent.ID)
	require.True(t, res.AutoAssigned)
	require.Equal(t, enums.AssignmentStatusAssigned, res.Assignment.Status)
	require.Equal(t, 5, f.workload(t, agent.ID))

	stored := f.reloadOrder(t, first.ID)
	require.Equal(t, enums.OrderStatusProcessing, stored.Status)
	require.Equal(t, agent.ID, *stored.AssignedAgentID)

	_, err = f.svc.Assign(ctx, AssignInput{OrderID: second.ID, AgentID: &agent.ID, AssignedBy: "dispatcher-1"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Equal(t, MsgAgentNotAvailable, typed.Message())
	require.Equal(t, 5, f.workload(t, agent.ID))

	_, err = f.svc.Assign(ctx, AssignInput{OrderID: second.ID, AutoAssign: true, AssignedBy: "dispatcher-1"})
	require.Equal(t, MsgNoAgentsAvailable, pkgerrors.As(err).Message())
	require.Nil(t, f.reloadOrder(t, second.ID).AssignedAgentID)

	events, err := f.outbox.ListForAggregate(ctx, res.Assignment.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventAssignmentCreated, events[0].EventType)
}

func TestAutoAssignPrefersIdleAgent(t *testing.T) {
	f := newAssignmentFixture(t)
	f.agent(t, "Loaded", enums.VehicleBike, 4, 5)
	idle := f.agent(t, "Idle", enums.VehicleBike, 0, 5)
	order := f.order(t, "PD-2001")

	res, err := f.svc.Assign(context.Background(), AssignInput{OrderID: order.ID, AutoAssign: true, AssignedBy: "dispatcher-1"})
	require.NoError(t, err)
	require.Equal(t, idle.ID, res.Agent.ID)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 40, res.Score.Headroom, 1e-9)
}

func TestAssignRejectsMissingOrderAndDoubleAssignment(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	agent := f.agent(t, "Ana", enums.VehicleCar, 0, 5)

	_, err := f.svc.Assign(ctx, AssignInput{OrderID: uuid.New(), AgentID: &agent.ID, AssignedBy: "d"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	order := f.order(t, "PD-3001")
	_, err = f.svc.Assign(ctx, AssignInput{OrderID: order.ID, AgentID: &agent.ID, AssignedBy: "d"})
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, AssignInput{OrderID: order.ID, AgentID: &agent.ID, AssignedBy: "d"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, 1, f.workload(t, agent.ID))

	_, err = f.svc.Assign(ctx, AssignInput{OrderID: order.ID, AssignedBy: "d"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStateMachineLegality(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	agent := f.agent(t, "Ana", enums.VehicleCar, 0, 5)
	order := f.order(t, "PD-4001")

	_, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, AgentID: agent.ID, Status: enums.AssignmentStatusAccepted})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Assign(ctx, AssignInput{OrderID: order.ID, AgentID: &agent.ID, AssignedBy: "d"})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, AgentID: agent.ID, Status: enums.AssignmentStatusCompleted})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "assigned -> completed must be rejected")
	require.Equal(t, 1, f.workload(t, agent.ID))

	res, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, AgentID: agent.ID, Status: enums.AssignmentStatusAccepted})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusOutForDelivery, res.OrderStatus)
	require.NotNil(t, res.Assignment.AcceptedAt)

	notes := "left at front desk"
	res, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, AgentID: agent.ID, Status: enums.AssignmentStatusCompleted, Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, res.OrderStatus)
	require.True(t, res.WorkloadFreed)
	require.Equal(t, 0, f.workload(t, agent.ID))
	require.Equal(t, enums.OrderStatusDelivered, f.reloadOrder(t, order.ID).Status)

	for _, next := range []enums.AssignmentStatus{enums.AssignmentStatusAccepted, enums.AssignmentStatusRejected, enums.AssignmentStatusCompleted} {
		_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, AgentID: agent.ID, Status: next})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "completed -> %s", next)
	}
	require.Equal(t, 0, f.workload(t, agent.ID))
}

func TestRejectReleasesSlotAndAllowsReassignment(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	first := f.agent(t, "First", enums.VehicleCar, 0, 1)
	second := f.agent(t, "Second", enums.VehicleCar, 0, 1)
	order := f.order(t, "PD-5001")

	_, err := f.svc.Assign(ctx, AssignInput{OrderID: order.ID, AgentID: &first.ID, AssignedBy: "d"})
	require.NoError(t, err)
	require.Equal(t, 1, f.workload(t, first.ID))

	res, err := f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, AgentID: first.ID, Status: enums.AssignmentStatusRejected})
	require.NoError(t, err)
	require.True(t, res.WorkloadFreed)
	require.Equal(t, 0, f.workload(t, first.ID))
	require.Nil(t, f.reloadOrder(t, order.ID).AssignedAgentID)

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, AgentID: first.ID, Status: enums.AssignmentStatusAccepted})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	again, err := f.svc.Assign(ctx, AssignInput{
		OrderID:         order.ID,
		AutoAssign:      true,
		AssignedBy:      "d",
		ExcludeAgentIDs: []uuid.UUID{first.ID},
	})
	require.NoError(t, err)
	require.Equal(t, second.ID, again.Agent.ID)
}

func TestReleaseSlotFloorsAtZero(t *testing.T) {
	f := newAssignmentFixture(t)
	agent := f.agent(t, "Zero", enums.VehicleBike, 0, 5)
	repo := NewRepository(f.conn)

	require.NoError(t, repo.ReleaseSlot(context.Background(), agent.ID, f.now))
	require.Equal(t, 0, f.workload(t, agent.ID))
}

func TestReserveSlotStopsAtCapacity(t *testing.T) {
	f := newAssignmentFixture(t)
	agent := f.agent(t, "Full", enums.VehicleBike, 1, 2)
	repo := NewRepository(f.conn)
	ctx := context.Background()

	ok, err := repo.ReserveSlot(ctx, agent.ID, f.now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ReserveSlot(ctx, agent.ID, f.now)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, f.workload(t, agent.ID))
}

func TestPausedAgentIsNotAssignable(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	agent := f.agent(t, "Paused", enums.VehicleCar, 0, 5)
	require.NoError(t, f.conn.Model(&models.AgentStatus{}).
		Where("agent_id = ?", agent.ID).
		Update("is_active", false).Error)
	order := f.order(t, "PD-8001")

	_, err := f.svc.Assign(ctx, AssignInput{OrderID: order.ID, AgentID: &agent.ID, AssignedBy: "d"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, MsgAgentNotAvailable, pkgerrors.As(err).Message())

	_, err = f.svc.Assign(ctx, AssignInput{OrderID: order.ID, AutoAssign: true, AssignedBy: "d"})
	require.Equal(t, MsgNoAgentsAvailable, pkgerrors.As(err).Message())

	ok, err := NewRepository(f.conn).ReserveSlot(ctx, agent.ID, f.now)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, f.workload(t, agent.ID))
}

func TestConcurrentAssignFillsLastSlotOnce(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	agent := f.agent(t, "Last", enums.VehicleBike, 4, 5)

	const callers = 8
	orders := make([]models.Order, callers)
	for i := range orders {
		orders[i] = f.order(t, fmt.Sprintf("PD-90%02d", i))
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		errs      = make(chan error, callers)
	)
	for i := range orders {
		wg.Add(1)
		go func(order models.Order, auto bool) {
			defer wg.Done()
			input := AssignInput{OrderID: order.ID, AssignedBy: "dispatcher", AutoAssign: auto}
			if !auto {
				input.AgentID = &agent.ID
			}
			if _, err := f.svc.Assign(ctx, input); err != nil {
				errs <- err
				return
			}
			succeeded.Add(1)
		}(orders[i], i%2 == 0)
	}
	wg.Wait()
	close(errs)

	require.EqualValues(t, 1, succeeded.Load())
	for err := range errs {
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, err)
		require.Contains(t, []pkgerrors.Code{pkgerrors.CodeStateConflict, pkgerrors.CodeConflict}, typed.Code(), err)
	}
	require.Equal(t, 5, f.workload(t, agent.ID))

	var active int64
	require.NoError(t, f.conn.Model(&models.OrderAssignment{}).
		Where("agent_id = ? AND status = ?", agent.ID, enums.AssignmentStatusAssigned).
		Count(&active).Error)
	require.EqualValues(t, 1, active)
}

func TestOrdersWithDetails(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	agent := f.agent(t, "Ana", enums.VehicleCar, 0, 5)
	assigned := f.order(t, "PD-6001")
	f.order(t, "PD-6002")

	_, err := f.svc.Assign(ctx, AssignInput{OrderID: assigned.ID, AgentID: &agent.ID, AssignedBy: "d"})
	require.NoError(t, err)

	list, err := f.svc.OrdersWithDetails(ctx, OrderFilters{AgentID: &agent.ID}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.Equal(t, assigned.ID, list.Orders[0].ID)
	require.NotNil(t, list.Orders[0].Assignment)
	require.NotNil(t, list.Orders[0].Agent)
	require.Equal(t, "Ana Rider", list.Orders[0].Agent.Name)

	pending := enums.OrderStatusPending
	list, err = f.svc.OrdersWithDetails(ctx, OrderFilters{Status: &pending}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.Nil(t, list.Orders[0].Assignment)

	list, err = f.svc.OrdersWithDetails(ctx, OrderFilters{}, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.NotEmpty(t, list.NextCursor)
	first := list.Orders[0].ID

	list, err = f.svc.OrdersWithDetails(ctx, OrderFilters{}, pagination.Params{Limit: 1, Cursor: list.NextCursor})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.NotEqual(t, first, list.Orders[0].ID)
	require.Empty(t, list.NextCursor)

	_, err = f.svc.OrdersWithDetails(ctx, OrderFilters{}, pagination.Params{Cursor: "garbage"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bogus := enums.OrderStatus("Lost")
	_, err = f.svc.OrdersWithDetails(ctx, OrderFilters{Status: &bogus}, pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPreviewRanksWithoutMutating(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	loaded := f.agent(t, "Loaded", enums.VehicleCar, 3, 5)
	idle := f.agent(t, "Idle", enums.VehicleCar, 0, 5)
	f.agent(t, "Full", enums.VehicleCar, 5, 5)
	order := f.order(t, "PD-7001")

	preview, err := f.svc.Preview(ctx, PreviewInput{OrderID: order.ID})
	require.NoError(t, err)
	require.Len(t, preview.Candidates, 2)
	require.Equal(t, idle.ID, preview.Candidates[0].Agent.ID)
	require.Equal(t, loaded.ID, preview.Candidates[1].Agent.ID)
	require.Equal(t, 3, f.workload(t, loaded.ID))
	require.Nil(t, f.reloadOrder(t, order.ID).AssignedAgentID)
}
