package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/internal/agents"
	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/printdesk-backend/pkg/errors"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/metrics"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox/payloads"
)

// Attendance actions, used in logs and metrics.
const (
	ActionCheckIn    = "check-in"
	ActionCheckOut   = "check-out"
	ActionStartBreak = "start-break"
	ActionEndBreak   = "end-break"
)

const (
	maxReasonLength  = 200
	defaultReason    = "break"
	maxSummaryWindow = 366
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the per-day attendance state machine.
type Service interface {
	CheckIn(ctx context.Context, input CheckInInput) (*RecordView, error)
	StartBreak(ctx context.Context, agentID uuid.UUID, reason string) (*RecordView, error)
	EndBreak(ctx context.Context, agentID uuid.UUID) (*RecordView, error)
	CheckOut(ctx context.Context, agentID uuid.UUID, actor *outbox.ActorRef) (*RecordView, error)
	Record(ctx context.Context, agentID uuid.UUID, date string) (*RecordResult, error)
	Summary(ctx context.Context, input SummaryInput) (*Summary, error)
	CurrentStatus(ctx context.Context, agentID uuid.UUID) (*CurrentStatus, error)
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Repo              Repository
	Agents            agents.Repository
	Tx                txRunner
	Outbox            outboxPublisher
	Metrics           *metrics.DispatchMetrics
	Location          *time.Location
	DefaultCapacity   int
	SummaryWindowDays int
	Logger            *logger.Logger
}

type service struct {
	repo            Repository
	agents          agents.Repository
	tx              txRunner
	outbox          outboxPublisher
	metrics         *metrics.DispatchMetrics
	loc             *time.Location
	defaultCapacity int
	windowDays      int
	logg            *logger.Logger
	now             func() time.Time
}

// NewService builds the attendance service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("attendance repository required")
	}
	if params.Agents == nil {
		return nil, fmt.Errorf("agents repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	capacity := params.DefaultCapacity
	if capacity <= 0 {
		capacity = 5
	}
	window := params.SummaryWindowDays
	if window <= 0 {
		window = 7
	}
	return &service{
		repo:            params.Repo,
		agents:          params.Agents,
		tx:              params.Tx,
		outbox:          params.Outbox,
		metrics:         params.Metrics,
		loc:             loc,
		defaultCapacity: capacity,
		windowDays:      window,
		logg:            params.Logger,
		now:             time.Now,
	}, nil
}

func (s *service) CheckIn(ctx context.Context, input CheckInInput) (*RecordView, error) {
	if input.AgentID == uuid.Nil {
		return nil, s.fail(ctx, ActionCheckIn, input.AgentID, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required"))
	}
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return nil, s.fail(ctx, ActionCheckIn, input.AgentID, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location"))
		}
	}

	now := s.now().UTC()
	today := DayKey(now, s.loc)
	var lat, lng *float64
	if input.Location != nil {
		lat, lng = &input.Location.Lat, &input.Location.Lng
	}

	var record *models.AttendanceRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		agentRepo := s.agents.WithTx(tx)

		if err := s.requireAgent(ctx, agentRepo, input.AgentID); err != nil {
			return err
		}

		existing, err := s.findToday(ctx, repo, input.AgentID, today)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := checkInAllowed(existing); err != nil {
				return err
			}
			claimed, err := repo.ClaimCheckIn(ctx, input.AgentID, today, now, lat, lng)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim check-in")
			}
			if !claimed {
				return pkgerrors.New(pkgerrors.CodeConflict, "attendance record changed concurrently")
			}
		} else {
			created, err := repo.CreateIfAbsent(ctx, &models.AttendanceRecord{
				AgentID:     input.AgentID,
				WorkDate:    today,
				CheckInTime: &now,
				CheckInLat:  lat,
				CheckInLng:  lng,
				Breaks:      models.BreakList{},
				Status:      enums.AttendanceCheckedIn,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create attendance record")
			}
			if !created {
				raced, err := s.findToday(ctx, repo, input.AgentID, today)
				if err != nil {
					return err
				}
				if raced != nil {
					if err := checkInAllowed(raced); err != nil {
						return err
					}
				}
				return pkgerrors.New(pkgerrors.CodeConflict, "attendance record changed concurrently")
			}
		}

		if _, err := agentRepo.EnsureStatus(ctx, input.AgentID, s.defaultCapacity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provision agent status")
		}
		if err := agentRepo.SetCheckedIn(ctx, input.AgentID, true, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark agent checked in")
		}
		if input.Location != nil {
			if err := agentRepo.UpdateLocation(ctx, input.AgentID, input.Location.Lat, input.Location.Lng, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent location")
			}
		}

		record, err = s.findToday(ctx, repo, input.AgentID, today)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventAttendanceCheckedIn, record, input.Actor, now)
	})
	if err != nil {
		return nil, s.fail(ctx, ActionCheckIn, input.AgentID, err)
	}
	s.succeed(ctx, ActionCheckIn, record)
	return NewRecordView(record), nil
}

func (s *service) StartBreak(ctx context.Context, agentID uuid.UUID, reason string) (*RecordView, error) {
	if agentID == uuid.Nil {
		return nil, s.fail(ctx, ActionStartBreak, agentID, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required"))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultReason
	}
	if len(reason) > maxReasonLength {
		return nil, s.fail(ctx, ActionStartBreak, agentID, pkgerrors.New(pkgerrors.CodeValidation, "reason too long"))
	}

	record, err := s.mutateToday(ctx, agentID, func(rec *models.AttendanceRecord, now time.Time) error {
		if err := requireOpenDay(rec); err != nil {
			return err
		}
		if last := rec.Breaks.Last(); last != nil && last.EndTime == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "already on break")
		}
		rec.Breaks = append(rec.Breaks, models.BreakEntry{StartTime: now, Reason: reason})
		rec.Status = enums.AttendanceOnBreak
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, ActionStartBreak, agentID, err)
	}
	s.succeed(ctx, ActionStartBreak, record)
	return NewRecordView(record), nil
}

func (s *service) EndBreak(ctx context.Context, agentID uuid.UUID) (*RecordView, error) {
	if agentID == uuid.Nil {
		return nil, s.fail(ctx, ActionEndBreak, agentID, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required"))
	}

	record, err := s.mutateToday(ctx, agentID, func(rec *models.AttendanceRecord, now time.Time) error {
		if err := requireOpenDay(rec); err != nil {
			return err
		}
		last := rec.Breaks.Last()
		if last == nil || last.EndTime != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no active break")
		}
		closeBreak(last, now)
		rec.Status = enums.AttendanceCheckedIn
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, ActionEndBreak, agentID, err)
	}
	s.succeed(ctx, ActionEndBreak, record)
	return NewRecordView(record), nil
}

func (s *service) CheckOut(ctx context.Context, agentID uuid.UUID, actor *outbox.ActorRef) (*RecordView, error) {
	if agentID == uuid.Nil {
		return nil, s.fail(ctx, ActionCheckOut, agentID, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required"))
	}

	record, err := s.mutateToday(ctx, agentID, func(rec *models.AttendanceRecord, now time.Time) error {
		if err := requireOpenDay(rec); err != nil {
			return err
		}
		if last := rec.Breaks.Last(); last != nil && last.EndTime == nil {
			closeBreak(last, now)
		}
		breaks := TotalBreak(rec.Breaks, now)
		rec.CheckOutTime = &now
		rec.TotalBreakHours = Hours(breaks)
		rec.HoursWorked = HoursWorked(*rec.CheckInTime, now, breaks)
		rec.Status = enums.AttendanceCheckedOut
		return nil
	}, func(ctx context.Context, tx *gorm.DB, rec *models.AttendanceRecord, now time.Time) error {
		if err := s.agents.WithTx(tx).SetCheckedIn(ctx, agentID, false, now); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark agent checked out")
		}
		return s.emit(ctx, tx, enums.EventAttendanceCheckedOut, rec, actor, now)
	})
	if err != nil {
		return nil, s.fail(ctx, ActionCheckOut, agentID, err)
	}
	s.succeed(ctx, ActionCheckOut, record)
	return NewRecordView(record), nil
}

func (s *service) Record(ctx context.Context, agentID uuid.UUID, date string) (*RecordResult, error) {
	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required")
	}
	today := DayKey(s.now(), s.loc)
	date = strings.TrimSpace(date)
	if date == "" {
		date = today
	}
	if _, err := ParseDay(date, s.loc); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date must be YYYY-MM-DD")
	}

	rec, err := s.findToday(ctx, s.repo, agentID, date)
	if err != nil {
		return nil, err
	}
	out := &RecordResult{Date: date, Record: NewRecordView(rec)}
	switch {
	case rec != nil:
		out.Status = rec.Status
	case date < today:
		out.Status = enums.AttendanceAbsent
	default:
		out.Status = enums.AttendanceNotCheckedIn
	}
	return out, nil
}

func (s *service) Summary(ctx context.Context, input SummaryInput) (*Summary, error) {
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required")
	}

	end := DayKey(s.now(), s.loc)
	if v := strings.TrimSpace(input.EndDate); v != "" {
		end = v
	}
	endDay, err := ParseDay(end, s.loc)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end_date must be YYYY-MM-DD")
	}
	end = endDay.Format(DateLayout)
	startDay := endDay.AddDate(0, 0, -(s.windowDays - 1))
	if v := strings.TrimSpace(input.StartDate); v != "" {
		startDay, err = ParseDay(v, s.loc)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "start_date must be YYYY-MM-DD")
		}
	}
	if startDay.After(endDay) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start_date must not be after end_date")
	}
	if daysInclusive(startDay, endDay) > maxSummaryWindow {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("summary window is limited to %d days", maxSummaryWindow))
	}

	start := startDay.Format(DateLayout)
	records, err := s.repo.ListRange(ctx, input.AgentID, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list attendance records")
	}

	totals := Summarize(records)
	out := &Summary{
		AgentID:        input.AgentID,
		StartDate:      start,
		EndDate:        end,
		TotalDays:      totals.TotalDays,
		WorkingDays:    totals.WorkingDays,
		AbsentDays:     totals.AbsentDays,
		TotalHours:     totals.TotalHours.InexactFloat64(),
		AvgHoursPerDay: totals.AvgHoursPerDay.InexactFloat64(),
		TotalBreakTime: totals.TotalBreakHours.InexactFloat64(),
		AttendanceRate: totals.AttendanceRate,
		Records:        make([]RecordView, 0, len(records)),
	}
	for i := range records {
		out.Records = append(out.Records, *NewRecordView(&records[i]))
	}
	return out, nil
}

func (s *service) CurrentStatus(ctx context.Context, agentID uuid.UUID) (*CurrentStatus, error) {
	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent_id required")
	}
	today := DayKey(s.now(), s.loc)
	rec, err := s.findToday(ctx, s.repo, agentID, today)
	if err != nil {
		return nil, err
	}
	return &CurrentStatus{
		AgentID: agentID,
		Date:    today,
		State:   DisplayState(rec),
		Record:  NewRecordView(rec),
	}, nil
}

type inTxFn func(ctx context.Context, tx *gorm.DB, rec *models.AttendanceRecord, now time.Time) error

// mutateToday loads today's record, applies mutate and writes it back under
// the row_version guard. inTx hooks run in the same transaction afterwards.
func (s *service) mutateToday(ctx context.Context, agentID uuid.UUID, mutate func(*models.AttendanceRecord, time.Time) error, inTx ...inTxFn) (*models.AttendanceRecord, error) {
	now := s.now().UTC()
	today := DayKey(now, s.loc)

	var record *models.AttendanceRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rec, err := s.findToday(ctx, repo, agentID, today)
		if err != nil {
			return err
		}
		if rec == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no attendance record for today")
		}

		version := rec.RowVersion
		if err := mutate(rec, now); err != nil {
			return err
		}
		rec.UpdatedAt = now

		ok, err := repo.UpdateVersioned(ctx, rec, version)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update attendance record")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "attendance record changed concurrently")
		}
		for _, fn := range inTx {
			if err := fn(ctx, tx, rec, now); err != nil {
				return err
			}
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) findToday(ctx context.Context, repo Repository, agentID uuid.UUID, date string) (*models.AttendanceRecord, error) {
	rec, err := repo.Find(ctx, agentID, date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attendance record")
	}
	return rec, nil
}

func (s *service) requireAgent(ctx context.Context, agentRepo agents.Repository, agentID uuid.UUID) error {
	if _, err := agentRepo.FindAgent(ctx, agentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, rec *models.AttendanceRecord, actor *outbox.ActorRef, now time.Time) error {
	data := payloads.AttendanceEvent{
		RecordID:   rec.ID,
		AgentID:    rec.AgentID,
		WorkDate:   rec.WorkDate,
		Status:     rec.Status,
		OccurredAt: now,
	}
	if rec.CheckOutTime != nil {
		hours := rec.HoursWorked.InexactFloat64()
		data.HoursWorked = &hours
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateAttendance,
		AggregateID:   rec.ID,
		Actor:         actor,
		OccurredAt:    now,
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit attendance event")
	}
	return nil
}

func (s *service) succeed(ctx context.Context, action string, rec *models.AttendanceRecord) {
	s.metrics.IncAttendance(action, "ok")
	if s.logg == nil || rec == nil {
		return
	}
	logCtx := s.logg.WithAgentID(ctx, rec.AgentID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"work_date": rec.WorkDate,
		"status":    rec.Status,
	})
	s.logg.Info(logCtx, "attendance."+strings.ReplaceAll(action, "-", "_"))
}

func (s *service) fail(ctx context.Context, action string, agentID uuid.UUID, err error) error {
	code := pkgerrors.CodeInternal
	if typed := pkgerrors.As(err); typed != nil {
		code = typed.Code()
	}
	s.metrics.IncAttendance(action, strings.ToLower(string(code)))
	if s.logg != nil && (code == pkgerrors.CodeDependency || code == pkgerrors.CodeInternal) {
		s.logg.Error(s.logg.WithAgentID(ctx, agentID.String()), "attendance."+strings.ReplaceAll(action, "-", "_")+" failed", err)
	}
	return err
}

func checkInAllowed(rec *models.AttendanceRecord) error {
	if rec.CheckOutTime != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "already checked out for today")
	}
	if rec.CheckInTime != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "already checked in")
	}
	return nil
}

func requireOpenDay(rec *models.AttendanceRecord) error {
	if rec.CheckInTime == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "not checked in")
	}
	if rec.CheckOutTime != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "already checked out")
	}
	return nil
}

func closeBreak(b *models.BreakEntry, now time.Time) {
	b.EndTime = &now
	b.DurationMinutes = BreakMinutes(*b, now)
}

func daysInclusive(start, end time.Time) int {
	y1, m1, d1 := start.Date()
	y2, m2, d2 := end.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours()/24) + 1
}
