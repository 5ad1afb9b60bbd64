package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pagedOutbox hands out a fixed backlog of delivered events one page at a
// time.
type pagedOutbox struct {
	backlog int64
	cutoffs []time.Time
	failAt  int
}

func (p *pagedOutbox) PrunePublished(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	if p.failAt > 0 && len(p.cutoffs) == p.failAt {
		return 0, errors.New("statement timeout")
	}
	n := min(p.backlog, int64(limit))
	p.backlog -= n
	return n, nil
}

func newPrune(t *testing.T, outbox *pagedOutbox, retention time.Duration, batch int) *outboxPrune {
	t.Helper()
	job, err := NewOutboxPruneJob(OutboxPruneParams{Outbox: outbox, Retention: retention, Batch: batch})
	require.NoError(t, err)
	prune := job.(*outboxPrune)
	prune.now = func() time.Time { return time.Date(2026, 3, 31, 6, 0, 0, 0, time.UTC) }
	return prune
}

func TestOutboxPruneDrainsBacklogInBatches(t *testing.T) {
	outbox := &pagedOutbox{backlog: 25}
	result, err := newPrune(t, outbox, 0, 10).Run(context.Background())

	require.NoError(t, err)
	require.EqualValues(t, 25, result.Affected)
	require.Len(t, outbox.cutoffs, 3)
	require.Equal(t, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), outbox.cutoffs[0])
}

func TestOutboxPruneStopsOnExactBatchBoundary(t *testing.T) {
	outbox := &pagedOutbox{backlog: 20}
	result, err := newPrune(t, outbox, 48*time.Hour, 10).Run(context.Background())

	require.NoError(t, err)
	require.EqualValues(t, 20, result.Affected)
	// the third call returns zero rows and ends the sweep
	require.Len(t, outbox.cutoffs, 3)
	require.Equal(t, time.Date(2026, 3, 29, 6, 0, 0, 0, time.UTC), outbox.cutoffs[2])
}

func TestOutboxPruneKeepsProgressOnFailure(t *testing.T) {
	outbox := &pagedOutbox{backlog: 30, failAt: 2}
	result, err := newPrune(t, outbox, 0, 10).Run(context.Background())

	require.ErrorContains(t, err, "statement timeout")
	require.EqualValues(t, 10, result.Affected)
}

func TestOutboxPruneHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outbox := &pagedOutbox{backlog: 100}
	result, err := newPrune(t, outbox, 0, 10).Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 10, result.Affected)
}

func TestNewOutboxPruneJobDefaults(t *testing.T) {
	_, err := NewOutboxPruneJob(OutboxPruneParams{})
	require.Error(t, err)

	prune := newPrune(t, &pagedOutbox{}, 0, 0)
	require.Equal(t, defaultOutboxRetention, prune.retention)
	require.Equal(t, defaultPruneBatch, prune.batch)
	require.Equal(t, "outbox-prune", prune.Name())
}
