package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/internal/attendance"
	"github.com/angelmondragon/printdesk-backend/pkg/db"
	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/migrate"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
)

type absenceFixture struct {
	conn   *gorm.DB
	job    *absenceJob
	outbox *outbox.Repository
}

func newAbsenceFixture(t *testing.T, calendar string) *absenceFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:cron_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migrate.AutoMigrate(conn))

	outboxRepo := outbox.NewRepository(conn)
	built, err := NewAbsenceJob(AbsenceJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:         db.NewFromConn(conn),
		Repository: attendance.NewRepository(conn),
		Outbox:     outbox.NewService(outboxRepo, nil),
		Location:   time.UTC,
		Calendar:   calendar,
	})
	require.NoError(t, err)
	return &absenceFixture{conn: conn, job: built.(*absenceJob), outbox: outboxRepo}
}

func (f *absenceFixture) agent(t *testing.T, lifecycle enums.AgentLifecycleStatus) models.Agent {
	t.Helper()
	agent := models.Agent{
		FirstName:       "Field",
		LastName:        "Agent",
		VehicleType:     enums.VehicleCar,
		LifecycleStatus: lifecycle,
	}
	require.NoError(t, f.conn.Create(&agent).Error)
	return agent
}

func (f *absenceFixture) at(ts time.Time) {
	f.job.now = func() time.Time { return ts }
}

func TestAbsenceJobMarksAgentsWithoutRecord(t *testing.T) {
	f := newAbsenceFixture(t, "us")
	missing := f.agent(t, enums.AgentLifecycleActive)
	present := f.agent(t, enums.AgentLifecycleActive)
	f.agent(t, enums.AgentLifecycleSuspended)

	checkIn := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.conn.Create(&models.AttendanceRecord{
		AgentID:     present.ID,
		WorkDate:    "2025-06-02",
		CheckInTime: &checkIn,
		Status:      enums.AttendanceCheckedIn,
	}).Error)

	// Tuesday morning looks back at Monday.
	f.at(time.Date(2025, 6, 3, 6, 0, 0, 0, time.UTC))
	result, err := f.job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Affected)

	var records []models.AttendanceRecord
	require.NoError(t, f.conn.Where("work_date = ?", "2025-06-02").Order("created_at ASC").Find(&records).Error)
	require.Len(t, records, 2)

	var absent models.AttendanceRecord
	require.NoError(t, f.conn.Where("agent_id = ? AND work_date = ?", missing.ID, "2025-06-02").First(&absent).Error)
	require.Equal(t, enums.AttendanceAbsent, absent.Status)
	require.Nil(t, absent.CheckInTime)

	events, err := f.outbox.ListForAggregate(context.Background(), absent.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventAttendanceMarkedAbsent, events[0].EventType)

	again, err := f.job.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, again.Affected)
}

func TestAbsenceJobSkipsWeekendsAndHolidays(t *testing.T) {
	f := newAbsenceFixture(t, "us")
	f.agent(t, enums.AgentLifecycleActive)

	for _, now := range []time.Time{
		time.Date(2025, 6, 8, 6, 0, 0, 0, time.UTC), // Sunday, looks at Saturday
		time.Date(2025, 7, 5, 6, 0, 0, 0, time.UTC), // looks at July 4th
	} {
		f.at(now)
		result, err := f.job.Run(context.Background())
		require.NoError(t, err)
		require.Zero(t, result.Affected)
	}

	var count int64
	require.NoError(t, f.conn.Model(&models.AttendanceRecord{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAbsenceJobWithoutHolidayCalendar(t *testing.T) {
	f := newAbsenceFixture(t, "none")
	f.agent(t, enums.AgentLifecycleActive)

	f.at(time.Date(2025, 7, 5, 6, 0, 0, 0, time.UTC))
	result, err := f.job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Affected)
}

func TestNewWorkCalendarRejectsUnknown(t *testing.T) {
	_, err := NewWorkCalendar("mars")
	require.Error(t, err)
}
