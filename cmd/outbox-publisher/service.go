package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/db/models"
	"github.com/angelmondragon/printdesk-backend/pkg/enums"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
)

const (
	defaultBatchSize   = 50
	defaultIdle        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventStore interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, ceiling int, at time.Time) error
}

// dispatchTopic is the one topic every assignment and attendance event goes to.
type dispatchTopic interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type RelayParams struct {
	Config *config.Config
	Logger *logger.Logger
	DB     txRunner
	Store  eventStore
	Topic  dispatchTopic
	// Checks run once before the first batch; a failing check stops Run.
	Checks map[string]func(context.Context) error
}

// Relay drains committed outbox rows onto the dispatch topic.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       eventStore
	topic       dispatchTopic
	topicName   string
	checks      map[string]func(context.Context) error
	batchSize   int
	maxAttempts int
	idle        time.Duration
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Topic == nil:
		return nil, errors.New("dispatch topic publisher is required")
	}
	name := strings.TrimSpace(p.Config.PubSub.DispatchTopic)
	if name == "" {
		return nil, errors.New("PRINTDESK_PUBSUB_DISPATCH_TOPIC is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		store:       p.Store,
		topic:       p.Topic,
		topicName:   name,
		checks:      p.Checks,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		idle:        defaultIdle,
		now:         time.Now,
	}
	if n := p.Config.Outbox.BatchSize; n > 0 {
		r.batchSize = n
	}
	if n := p.Config.Outbox.MaxAttempts; n > 0 {
		r.maxAttempts = n
	}
	if ms := p.Config.Outbox.PollIntervalMS; ms > 0 {
		r.idle = time.Duration(ms) * time.Millisecond
	}
	return r, nil
}

// Run relays until ctx is cancelled. Busy batches loop immediately, an empty
// outbox waits one idle interval and failed batches back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			r.logg.Error(ctx, name+" not ready", err)
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}

	pace := newPacer(r.idle, maxBackoff)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handled, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			wait = pace.failed()
			r.logg.Error(r.logg.WithField(ctx, "retry_in", wait.String()), "outbox batch failed", err)
		case handled > 0:
			pace.reset()
			continue
		default:
			wait = pace.rest()
		}

		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

type verdict int

const (
	delivered verdict = iota
	retryLater
	parked
)

type settlement struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	cause   error
}

// permanentError marks publish failures that no later attempt can fix.
type permanentError struct{ error }

func (e permanentError) Unwrap() error { return e.error }

// drain claims one batch and settles every row in the same transaction.
// Once an event fails with a retry pending, later events of the same
// aggregate stay queued untouched so consumers never see them out of order.
func (r *Relay) drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.ClaimBatch(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		stalled := make(map[uuid.UUID]bool)
		for _, event := range events {
			if stalled[event.AggregateID] {
				continue
			}
			outcome := r.deliver(ctx, event)
			if outcome.verdict == retryLater {
				stalled[event.AggregateID] = true
			}
			if err := r.settle(tx, event, outcome); err != nil {
				return fmt.Errorf("settle outbox row %s: %w", event.ID, err)
			}
			r.report(ctx, event, outcome)
			handled++
		}
		return nil
	})
	return handled, err
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) settlement {
	envelope, err := decodeDispatch(event)
	if err != nil {
		return settlement{verdict: parked, reason: enums.OutboxDLQReasonNonRetryable, cause: err}
	}

	err = r.send(ctx, dispatchMessage(event, envelope))
	var permanent permanentError
	switch {
	case err == nil:
		return settlement{verdict: delivered}
	case errors.As(err, &permanent):
		return settlement{verdict: parked, reason: enums.OutboxDLQReasonNonRetryable, cause: err}
	case event.AttemptCount+1 >= r.maxAttempts:
		return settlement{
			verdict: parked,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			cause:   fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, err),
		}
	default:
		return settlement{verdict: retryLater, cause: err}
	}
}

func (r *Relay) send(ctx context.Context, msg *gcppubsub.Message) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := r.topic.Publish(ctx, msg)
	if result == nil {
		return permanentError{fmt.Errorf("no publisher for topic %s", r.topicName)}
	}
	_, err := result.Get(ctx)
	return err
}

func (r *Relay) settle(tx *gorm.DB, event models.OutboxEvent, s settlement) error {
	switch s.verdict {
	case delivered:
		return r.store.MarkPublished(tx, event.ID, r.now().UTC())
	case retryLater:
		return r.store.RecordFailure(tx, event.ID, s.cause)
	default:
		return r.store.Park(tx, event, s.reason, s.cause, r.maxAttempts, r.now().UTC())
	}
}

func (r *Relay) report(ctx context.Context, event models.OutboxEvent, s settlement) {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    event.ID.String(),
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID.String(),
		"attempt":      event.AttemptCount + 1,
		"topic":        r.topicName,
	})
	switch s.verdict {
	case delivered:
		r.logg.Info(logCtx, "dispatch event published")
	case retryLater:
		r.logg.Warn(r.logg.WithField(logCtx, "error", s.cause.Error()), "dispatch event publish failed, will retry")
	default:
		logCtx = r.logg.WithFields(logCtx, map[string]any{"error": s.cause.Error(), "dlq_reason": s.reason})
		r.logg.Warn(logCtx, "dispatch event parked in dlq")
	}
}

// decodeDispatch rejects rows no consumer could interpret.
func decodeDispatch(event models.OutboxEvent) (outbox.PayloadEnvelope, error) {
	if err := enums.CheckOutboxPair(event.EventType, event.AggregateType); err != nil {
		return outbox.PayloadEnvelope{}, err
	}
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return outbox.PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.EventID == "" {
		return outbox.PayloadEnvelope{}, errors.New("envelope has no event id")
	}
	return envelope, nil
}

// dispatchMessage carries the stored envelope as the body; consumers route
// on the attributes without decoding it.
func dispatchMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(envelope.Version),
			"occurred_at":    envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// pacer spaces out batches: a fixed rest when idle, doubling up to ceiling
// after failures.
type pacer struct {
	base    time.Duration
	ceiling time.Duration
	current time.Duration
	jitter  func(time.Duration) time.Duration
}

func newPacer(base, ceiling time.Duration) *pacer {
	return &pacer{base: base, ceiling: ceiling, current: base, jitter: addJitter}
}

func (p *pacer) reset() { p.current = p.base }

func (p *pacer) rest() time.Duration {
	p.reset()
	return p.jitter(p.base)
}

func (p *pacer) failed() time.Duration {
	p.current = min(max(p.current, p.base)*2, p.ceiling)
	return p.jitter(p.current)
}

func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// topicPublisher adapts the Pub/Sub publisher handle to dispatchTopic.
type topicPublisher struct {
	p *gcppubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if t.p == nil {
		return nil
	}
	return resumingResult{PublishResult: t.p.Publish(ctx, msg), p: t.p, key: msg.OrderingKey}
}

// resumingResult reopens the ordering key after a failed publish. Pub/Sub
// pauses a key on failure and would reject the retry otherwise.
type resumingResult struct {
	*gcppubsub.PublishResult
	p   *gcppubsub.Publisher
	key string
}

func (r resumingResult) Get(ctx context.Context) (string, error) {
	id, err := r.PublishResult.Get(ctx)
	if err != nil && r.key != "" {
		r.p.ResumePublish(r.key)
	}
	return id, err
}
