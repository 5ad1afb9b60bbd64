package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
)

var errTxRequired = errors.New("outbox: transaction required")

// Repository stores dispatch events and the dead letters the relay parks.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// ClaimBatch returns the oldest unpublished rows still under the attempt
// ceiling. On Postgres the rows stay locked for the caller's transaction so
// parallel relays never share a row; SQLite serialises writers on its own.
func (r *Repository) ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	query := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
	}

	var claimed []models.OutboxEvent
	if err := query.Order("created_at, id").Limit(limit).Find(&claimed).Error; err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkPublished stamps the row as delivered to the dispatch topic.
func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return r.bump(tx, id, map[string]any{
		"published_at": at,
		"last_error":   nil,
	})
}

// RecordFailure counts a failed publish so the next claim retries it.
func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.bump(tx, id, map[string]any{"last_error": cause.Error()})
}

func (r *Repository) bump(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	fields["attempt_count"] = gorm.Expr("attempt_count + 1")
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

// Park copies the event into outbox_dlq and lifts its attempt count to
// ceiling so ClaimBatch never returns it again. Both writes share tx.
func (r *Repository) Park(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, ceiling int, at time.Time) error {
	if tx == nil {
		return errTxRequired
	}
	message := cause.Error()
	letter := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      at,
	}
	if err := tx.Create(&letter).Error; err != nil {
		return err
	}
	if ceiling < event.AttemptCount+1 {
		ceiling = event.AttemptCount + 1
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{"last_error": message, "attempt_count": ceiling}).Error
}

// PrunePublished deletes at most limit published rows older than cutoff and
// reports how many went.
func (r *Repository) PrunePublished(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	conn := r.db.WithContext(ctx)
	batch := conn.Model(&models.OutboxEvent{}).
		Select("id").
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Order("published_at ASC").
		Limit(limit)
	res := conn.Where("id IN (?)", batch).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// ListForAggregate returns the events recorded for one assignment or
// attendance record, oldest first.
func (r *Repository) ListForAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
