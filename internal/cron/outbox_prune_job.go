package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultPruneBatch      = 500
)

type publishedPruner interface {
	PrunePublished(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxPruneParams struct {
	Logger *logger.Logger
	Outbox publishedPruner
	// Retention is how long a delivered event stays queryable for
	// ListForAggregate. Dead letters are never pruned.
	Retention time.Duration
	Batch     int
}

// outboxPrune removes delivered dispatch events in small batches so the
// relay's claim query never waits behind one long delete.
type outboxPrune struct {
	logg      *logger.Logger
	outbox    publishedPruner
	retention time.Duration
	batch     int
	now       func() time.Time
}

func NewOutboxPruneJob(p OutboxPruneParams) (Job, error) {
	if p.Outbox == nil {
		return nil, errors.New("outbox repository is required")
	}
	j := &outboxPrune{
		logg:      p.Logger,
		outbox:    p.Outbox,
		retention: p.Retention,
		batch:     p.Batch,
		now:       time.Now,
	}
	if j.retention <= 0 {
		j.retention = defaultOutboxRetention
	}
	if j.batch <= 0 {
		j.batch = defaultPruneBatch
	}
	return j, nil
}

func (j *outboxPrune) Name() string { return "outbox-prune" }

func (j *outboxPrune) Run(ctx context.Context) (Result, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	for {
		n, err := j.outbox.PrunePublished(ctx, cutoff, j.batch)
		total += n
		if err != nil {
			return Result{Affected: total}, err
		}
		if n < int64(j.batch) {
			break
		}
		if err := ctx.Err(); err != nil {
			// partial progress is kept; the next cycle finishes the sweep
			return Result{Affected: total}, err
		}
	}
	if total > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"published_before": cutoff,
			"pruned":           total,
		}), "pruned delivered outbox events")
	}
	return Result{Affected: total}, nil
}
