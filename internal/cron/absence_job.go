package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/internal/attendance"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox/payloads"
)

const absenceActorID = "system:absence-marker"

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type AbsenceJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository attendance.Repository
	Outbox     outboxPublisher
	Location   *time.Location
	// Calendar names the holiday set: "us" or "none".
	Calendar string
}

// NewAbsenceJob marks active agents absent for the previous day when that day
// was a workday and they never produced an attendance record.
func NewAbsenceJob(params AbsenceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("attendance repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	calendar, err := NewWorkCalendar(params.Calendar)
	if err != nil {
		return nil, err
	}
	return &absenceJob{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repository,
		outbox:   params.Outbox,
		loc:      loc,
		calendar: calendar,
		now:      time.Now,
	}, nil
}

// NewWorkCalendar builds the business calendar used to decide whether a day
// expects attendance.
func NewWorkCalendar(name string) (*cal.BusinessCalendar, error) {
	calendar := cal.NewBusinessCalendar()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "us":
		calendar.AddHoliday(
			us.NewYear,
			us.MlkDay,
			us.PresidentsDay,
			us.MemorialDay,
			us.Juneteenth,
			us.IndependenceDay,
			us.LaborDay,
			us.ThanksgivingDay,
			us.ChristmasDay,
		)
	case "none":
	default:
		return nil, fmt.Errorf("unknown holiday calendar %q", name)
	}
	return calendar, nil
}

type absenceJob struct {
	logg     *logger.Logger
	db       txRunner
	repo     attendance.Repository
	outbox   outboxPublisher
	loc      *time.Location
	calendar *cal.BusinessCalendar
	now      func() time.Time
}

func (j *absenceJob) Name() string { return "attendance-absence" }

func (j *absenceJob) Run(ctx context.Context) (Result, error) {
	now := j.now()
	today, err := attendance.ParseDay(attendance.DayKey(now, j.loc), j.loc)
	if err != nil {
		return Result{}, err
	}
	target := today.AddDate(0, 0, -1)
	workDate := target.Format(attendance.DateLayout)
	logCtx := j.logg.WithField(ctx, "work_date", workDate)

	if !j.calendar.IsWorkday(target) {
		j.logg.Info(logCtx, "absence marking skipped for non-workday")
		return Result{}, nil
	}

	agentIDs, err := j.repo.AgentsWithoutRecord(ctx, workDate)
	if err != nil {
		return Result{}, fmt.Errorf("list agents without attendance: %w", err)
	}

	var (
		marked int64
		errs   error
	)
	for _, agentID := range agentIDs {
		created, err := j.markAbsent(ctx, agentID, workDate, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("agent %s: %w", agentID, err))
			continue
		}
		if created {
			marked++
		}
	}

	j.logg.Info(j.logg.WithFields(logCtx, map[string]any{
		"candidates": len(agentIDs),
		"marked":     marked,
	}), "absence marking complete")
	return Result{Affected: marked}, errs
}

func (j *absenceJob) markAbsent(ctx context.Context, agentID uuid.UUID, workDate string, now time.Time) (bool, error) {
	var created bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		record, ok, err := j.repo.WithTx(tx).MarkAbsent(ctx, agentID, workDate)
		if err != nil || !ok {
			return err
		}
		created = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAttendanceMarkedAbsent,
			AggregateType: enums.AggregateAttendance,
			AggregateID:   record.ID,
			Actor:         &outbox.ActorRef{ID: absenceActorID, Role: "system"},
			OccurredAt:    now,
			Data: payloads.AttendanceEvent{
				RecordID:   record.ID,
				AgentID:    agentID,
				WorkDate:   workDate,
				Status:     record.Status,
				OccurredAt: now,
			},
		})
	})
	return created, err
}
