package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

// Repository persists per agent, per day attendance records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, record *models.AttendanceRecord) (bool, error)
	ClaimCheckIn(ctx context.Context, agentID uuid.UUID, workDate string, checkIn time.Time, lat, lng *float64) (bool, error)
	Find(ctx context.Context, agentID uuid.UUID, workDate string) (*models.AttendanceRecord, error)
	ListRange(ctx context.Context, agentID uuid.UUID, from, to string) ([]models.AttendanceRecord, error)
	UpdateVersioned(ctx context.Context, record *models.AttendanceRecord, expectedVersion int64) (bool, error)
	MarkAbsent(ctx context.Context, agentID uuid.UUID, workDate string) (*models.AttendanceRecord, bool, error)
	AgentsWithoutRecord(ctx context.Context, workDate string) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an attendance repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateIfAbsent inserts the record unless the (agent, day) key is taken.
// It never overwrites.
func (r *repository) CreateIfAbsent(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_id"}, {Name: "work_date"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClaimCheckIn checks in on an existing record that has no check-in yet,
// such as an absence placeholder.
func (r *repository) ClaimCheckIn(ctx context.Context, agentID uuid.UUID, workDate string, checkIn time.Time, lat, lng *float64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AttendanceRecord{}).
		Where("agent_id = ? AND work_date = ? AND check_in_time IS NULL", agentID, workDate).
		Updates(map[string]any{
			"check_in_time": checkIn,
			"check_in_lat":  lat,
			"check_in_lng":  lng,
			"breaks":        models.BreakList{},
			"status":        enums.AttendanceCheckedIn,
			"row_version":   gorm.Expr("row_version + 1"),
			"updated_at":    checkIn,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Find(ctx context.Context, agentID uuid.UUID, workDate string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND work_date = ?", agentID, workDate).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRange returns records with from <= work_date <= to, oldest first.
func (r *repository) ListRange(ctx context.Context, agentID uuid.UUID, from, to string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND work_date >= ? AND work_date <= ?", agentID, from, to).
		Order("work_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateVersioned writes the mutable columns only if row_version still equals
// expectedVersion, bumping it on success.
func (r *repository) UpdateVersioned(ctx context.Context, record *models.AttendanceRecord, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AttendanceRecord{}).
		Where("id = ? AND row_version = ?", record.ID, expectedVersion).
		Updates(map[string]any{
			"check_out_time":    record.CheckOutTime,
			"breaks":            record.Breaks,
			"total_break_hours": record.TotalBreakHours,
			"hours_worked":      record.HoursWorked,
			"status":            record.Status,
			"row_version":       expectedVersion + 1,
			"updated_at":        record.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, nil
	}
	record.RowVersion = expectedVersion + 1
	return true, nil
}

// MarkAbsent records an absence for the day unless any record exists.
func (r *repository) MarkAbsent(ctx context.Context, agentID uuid.UUID, workDate string) (*models.AttendanceRecord, bool, error) {
	record := &models.AttendanceRecord{
		AgentID:  agentID,
		WorkDate: workDate,
		Status:   enums.AttendanceAbsent,
		Breaks:   models.BreakList{},
	}
	created, err := r.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, false, err
	}
	return record, created, nil
}

// AgentsWithoutRecord lists active agents with no record for the day.
func (r *repository) AgentsWithoutRecord(ctx context.Context, workDate string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("lifecycle_status = ?", enums.AgentLifecycleActive).
		Where("NOT EXISTS (SELECT 1 FROM attendance_records ar WHERE ar.agent_id = agents.id AND ar.work_date = ?)", workDate).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
