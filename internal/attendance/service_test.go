package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
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
	"github.com/angelmondragon/printdesk-backend/pkg/types"
)

type attendanceFixture struct {
	conn   *gorm.DB
	svc    *service
	outbox *outbox.Repository
	clock  time.Time
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:attendance_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migrate.AutoMigrate(conn))

	outboxRepo := outbox.NewRepository(conn)
	built, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		Agents:            agents.NewRepository(conn),
		Tx:                db.NewFromConn(conn),
		Outbox:            outbox.NewService(outboxRepo, nil),
		Metrics:           metrics.NewDispatchMetrics(prometheus.NewRegistry()),
		Location:          time.UTC,
		DefaultCapacity:   5,
		SummaryWindowDays: 7,
	})
	require.NoError(t, err)

	f := &attendanceFixture{
		conn:   conn,
		svc:    built.(*service),
		outbox: outboxRepo,
		clock:  time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *attendanceFixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *attendanceFixture) agent(t *testing.T) models.Agent {
	t.Helper()
	agent := models.Agent{
		FirstName:       "Field",
		LastName:        "Agent",
		VehicleType:     enums.VehicleBike,
		LifecycleStatus: enums.AgentLifecycleActive,
	}
	require.NoError(t, f.conn.Create(&agent).Error)
	return agent
}

func (f *attendanceFixture) stored(t *testing.T, agentID uuid.UUID, date string) models.AttendanceRecord {
	t.Helper()
	var rec models.AttendanceRecord
	require.NoError(t, f.conn.Where("agent_id = ? AND work_date = ?", agentID, date).First(&rec).Error)
	return rec
}

func TestFullDay(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	agent := f.agent(t)

	rec, err := f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID, Location: &types.GeoPoint{Lat: 19.4, Lng: -99.1}})
	require.NoError(t, err)
	require.Equal(t, enums.AttendanceCheckedIn, rec.Status)
	require.Equal(t, "2025-06-02", rec.Date)
	require.NotNil(t, rec.CheckInLocation)

	var status models.AgentStatus
	require.NoError(t, f.conn.Where("agent_id = ?", agent.ID).First(&status).Error)
	require.True(t, status.CheckedIn)
	require.True(t, status.HasLocation())

	f.advance(30 * time.Minute)
	rec, err = f.svc.StartBreak(ctx, agent.ID, "coffee")
	require.NoError(t, err)
	require.Equal(t, enums.AttendanceOnBreak, rec.Status)

	current, err := f.svc.CurrentStatus(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DisplayOnBreak, current.State)

	f.advance(15 * time.Minute)
	rec, err = f.svc.EndBreak(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, enums.AttendanceCheckedIn, rec.Status)
	require.Equal(t, 15, rec.Breaks[0].DurationMinutes)

	f.advance(75 * time.Minute)
	rec, err = f.svc.CheckOut(ctx, agent.ID, &outbox.ActorRef{ID: "agent-user"})
	require.NoError(t, err)
	require.Equal(t, enums.AttendanceCheckedOut, rec.Status)
	require.InDelta(t, 0.25, rec.TotalBreakTime, 1e-9)
	require.InDelta(t, 1.75, rec.HoursWorked, 1e-9)

	require.NoError(t, f.conn.Where("agent_id = ?", agent.ID).First(&status).Error)
	require.False(t, status.CheckedIn)

	current, err = f.svc.CurrentStatus(ctx, agent.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DisplayCheckedOut, current.State)

	events, err := f.outbox.ListForAggregate(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestDoubleCheckInLeavesRecordUnchanged(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	agent := f.agent(t)

	_, err := f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.NoError(t, err)
	before := f.stored(t, agent.ID, "2025-06-02")

	f.advance(time.Hour)
	_, err = f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Equal(t, "already checked in", typed.Message())

	after := f.stored(t, agent.ID, "2025-06-02")
	require.Equal(t, before.RowVersion, after.RowVersion)
	require.True(t, before.CheckInTime.Equal(*after.CheckInTime))
	require.Equal(t, before.Status, after.Status)
}

func TestCheckedOutDayIsTerminal(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	agent := f.agent(t)

	_, err := f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.NoError(t, err)
	f.advance(2 * time.Hour)
	rec, err := f.svc.CheckOut(ctx, agent.ID, nil)
	require.NoError(t, err)
	require.InDelta(t, 2.0, rec.HoursWorked, 1e-9)

	_, err = f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.StartBreak(ctx, agent.ID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.CheckOut(ctx, agent.ID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestIllegalTransitions(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	agent := f.agent(t)

	_, err := f.svc.StartBreak(ctx, agent.ID, "lunch")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.CheckOut(ctx, agent.ID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CheckIn(ctx, CheckInInput{AgentID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.NoError(t, err)

	_, err = f.svc.EndBreak(ctx, agent.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.StartBreak(ctx, agent.ID, "lunch")
	require.NoError(t, err)
	_, err = f.svc.StartBreak(ctx, agent.ID, "again")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCheckOutClosesOpenBreak(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	agent := f.agent(t)

	_, err := f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.NoError(t, err)
	f.advance(90 * time.Minute)
	_, err = f.svc.StartBreak(ctx, agent.ID, "lunch")
	require.NoError(t, err)
	f.advance(30 * time.Minute)

	rec, err := f.svc.CheckOut(ctx, agent.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, rec.Breaks[0].EndTime)
	require.Equal(t, 30, rec.Breaks[0].DurationMinutes)
	require.InDelta(t, 0.5, rec.TotalBreakTime, 1e-9)
	require.InDelta(t, 1.5, rec.HoursWorked, 1e-9)
}

func TestCheckInClaimsAbsencePlaceholder(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	agent := f.agent(t)

	_, created, err := NewRepository(f.conn).MarkAbsent(ctx, agent.ID, "2025-06-02")
	require.NoError(t, err)
	require.True(t, created)

	rec, err := f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.NoError(t, err)
	require.Equal(t, enums.AttendanceCheckedIn, rec.Status)
	require.NotNil(t, rec.CheckInTime)
}

func TestRecordLookup(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	agent := f.agent(t)

	past, err := f.svc.Record(ctx, agent.ID, "2025-05-30")
	require.NoError(t, err)
	require.Nil(t, past.Record)
	require.Equal(t, enums.AttendanceAbsent, past.Status)

	today, err := f.svc.Record(ctx, agent.ID, "")
	require.NoError(t, err)
	require.Equal(t, "2025-06-02", today.Date)
	require.Equal(t, enums.AttendanceNotCheckedIn, today.Status)

	_, err = f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.NoError(t, err)
	today, err = f.svc.Record(ctx, agent.ID, "2025-06-02")
	require.NoError(t, err)
	require.NotNil(t, today.Record)
	require.Equal(t, enums.AttendanceCheckedIn, today.Status)

	_, err = f.svc.Record(ctx, agent.ID, "06/02/2025")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSummaryDefaultsToTrailingWeek(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	agent := f.agent(t)

	for _, d := range []int{3, 1} {
		f.clock = time.Date(2025, 6, 2-d, 9, 0, 0, 0, time.UTC)
		_, err := f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
		require.NoError(t, err)
		f.advance(8 * time.Hour)
		_, err = f.svc.CheckOut(ctx, agent.ID, nil)
		require.NoError(t, err)
	}
	f.clock = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	_, err := f.svc.CheckIn(ctx, CheckInInput{AgentID: agent.ID})
	require.NoError(t, err)
	f.advance(time.Hour)
	_, err = f.svc.StartBreak(ctx, agent.ID, "lunch")
	require.NoError(t, err)
	f.advance(30 * time.Minute)

	// today is on break: counted as a day in range, not as a worked day
	summary, err := f.svc.Summary(ctx, SummaryInput{AgentID: agent.ID})
	require.NoError(t, err)
	require.Equal(t, "2025-05-27", summary.StartDate)
	require.Equal(t, "2025-06-02", summary.EndDate)
	require.Equal(t, 3, summary.TotalDays)
	require.Equal(t, 2, summary.WorkingDays)
	require.Equal(t, 1, summary.AbsentDays)
	require.InDelta(t, 16.0, summary.TotalHours, 1e-9)
	require.InDelta(t, 8.0, summary.AvgHoursPerDay, 1e-9)
	require.Equal(t, 67, summary.AttendanceRate)
	require.Len(t, summary.Records, 3)

	_, err = f.svc.Summary(ctx, SummaryInput{AgentID: agent.ID, StartDate: "2025-06-03", EndDate: "2025-06-01"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
