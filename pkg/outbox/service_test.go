package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox/payloads"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func TestEmitWritesEnvelopeInsideTx(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	aggregateID := uuid.New()
	occurred := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventAssignmentCreated,
			AggregateType: enums.AggregateOrderAssignment,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{ID: "dispatcher-1", Role: "dispatcher"},
			Data:          payloads.AssignmentCreatedEvent{AssignmentID: aggregateID, AssignedBy: "dispatcher-1"},
			OccurredAt:    occurred,
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListForAggregate(context.Background(), aggregateID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	env, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.Equal(t, 1, env.Version)
	require.True(t, occurred.Equal(env.OccurredAt))
	require.Equal(t, "dispatcher-1", env.Actor.ID)
	require.Contains(t, string(env.Data), `"assigned_by":"dispatcher-1"`)
}

func TestEmitRollsBackWithTx(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	aggregateID := uuid.New()

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventAttendanceCheckedIn,
			AggregateType: enums.AggregateAttendance,
			AggregateID:   aggregateID,
			Data:          map[string]string{"k": "v"},
		}))
		return gorm.ErrInvalidTransaction
	})

	rows, err := repo.ListForAggregate(context.Background(), aggregateID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRejectsUnknownEventAndNilTx(t *testing.T) {
	svc := NewService(NewRepository(newTestDB(t)), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventAssignmentCreated}))

	conn := newTestDB(t)
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "order_teleported"})
	})
	require.Error(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: enums.EventAssignmentCreated, AggregateType: "invoice"})
	})
	require.ErrorContains(t, err, "belongs to order_assignment")

	err = conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: enums.EventAttendanceCheckedIn, AggregateType: enums.AggregateOrderAssignment})
	})
	require.ErrorContains(t, err, "belongs to attendance_record")
}

func TestRepositoryClaimPublishAndRetain(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	old := now.Add(-48 * time.Hour)
	published := dispatchRow(func(e *models.OutboxEvent) { e.PublishedAt = &old })
	pending := dispatchRow(nil)
	exhausted := dispatchRow(func(e *models.OutboxEvent) { e.AttemptCount = 10 })
	for _, row := range []*models.OutboxEvent{&published, &pending, &exhausted} {
		require.NoError(t, conn.Create(row).Error)
	}

	var batch []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.ClaimBatch(tx, 10, 10)
		return err
	}))
	require.Len(t, batch, 1)
	require.Equal(t, pending.ID, batch[0].ID)

	require.NoError(t, repo.RecordFailure(conn, pending.ID, context.DeadlineExceeded))
	reloaded := reloadRow(t, conn, pending.ID)
	require.Equal(t, 1, reloaded.AttemptCount)
	require.Equal(t, context.DeadlineExceeded.Error(), *reloaded.LastError)

	require.NoError(t, repo.MarkPublished(conn, pending.ID, now))
	reloaded = reloadRow(t, conn, pending.ID)
	require.Equal(t, 2, reloaded.AttemptCount)
	require.Nil(t, reloaded.LastError)
	require.True(t, now.Equal(*reloaded.PublishedAt))

	deleted, err := repo.PrunePublished(context.Background(), now.Add(-24*time.Hour), 100)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
}

func TestRepositoryParkMovesRowToDeadLetters(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	row := dispatchRow(func(e *models.OutboxEvent) { e.AttemptCount = 2 })
	require.NoError(t, conn.Create(&row).Error)
	failedAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return repo.Park(tx, row, enums.OutboxDLQReasonNonRetryable, errors.New("bad envelope"), 5, failedAt)
	}))

	var letters []models.OutboxDLQ
	require.NoError(t, conn.Find(&letters).Error)
	require.Len(t, letters, 1)
	require.Equal(t, row.ID, letters[0].EventID)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, letters[0].ErrorReason)
	require.Equal(t, "bad envelope", *letters[0].ErrorMessage)
	require.Equal(t, 2, letters[0].AttemptCount)

	require.Equal(t, 5, reloadRow(t, conn, row.ID).AttemptCount)
	var claimed []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = repo.ClaimBatch(tx, 10, 5)
		return err
	}))
	require.Empty(t, claimed)
}

func dispatchRow(mutate func(*models.OutboxEvent)) models.OutboxEvent {
	row := models.OutboxEvent{
		EventType:     enums.EventAssignmentCreated,
		AggregateType: enums.AggregateOrderAssignment,
		AggregateID:   uuid.New(),
		Payload:       models.JSONText(`{}`),
	}
	if mutate != nil {
		mutate(&row)
	}
	return row
}

func reloadRow(t *testing.T, conn *gorm.DB, id uuid.UUID) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", id).Error)
	return row
}
