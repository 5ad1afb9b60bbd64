package outbox

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

const envelopeVersion = 1

// DomainEvent describes one committed change to an assignment or an
// attendance record.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Service queues dispatch events next to the writes they describe.
type Service struct {
	repo  *Repository
	logg  *logger.Logger
	now   func() time.Time
	newID func() string
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now, newID: uuid.NewString}
}

// Emit writes the event inside tx so it commits or rolls back with the
// state change it describes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	row, eventID, err := s.encode(event)
	if err != nil {
		return fmt.Errorf("outbox: encode %s: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("outbox: queue %s: %w", event.EventType, err)
	}

	if s.logg != nil && ctx != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":     eventID,
			"event_type":   row.EventType,
			"aggregate_id": row.AggregateID.String(),
		})
		s.logg.Debug(logCtx, "dispatch event queued")
	}
	return nil
}

func (s *Service) encode(event DomainEvent) (models.OutboxEvent, string, error) {
	if err := enums.CheckOutboxPair(event.EventType, event.AggregateType); err != nil {
		return models.OutboxEvent{}, "", err
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", err
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	envelope := PayloadEnvelope{
		Version:    cmp.Or(event.Version, envelopeVersion),
		EventID:    s.newID(),
		OccurredAt: occurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", err
	}

	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       models.JSONText(raw),
	}, envelope.EventID, nil
}
