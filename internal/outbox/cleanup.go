package outbox

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"example.com/eventrelay/internal/clock"
)

// cleanupChunk is the per-delete batch size; chunked deletes keep the lock
// footprint small on large tables.
const cleanupChunk = 1000

// Cleaner purges PUBLISHED rows older than the retention window. FAILED rows
// are never auto-deleted; they hold evidence for operator replay.
type Cleaner struct {
	store     Store
	retention time.Duration
	clock     clock.Clock
	log       zerolog.Logger
}

// NewCleaner constructs a Cleaner retaining published rows for
// retentionDays.
func NewCleaner(store Store, retentionDays int, log zerolog.Logger) *Cleaner {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Cleaner{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		clock:     clock.System(),
		log:       log.With().Str("component", "outbox_cleanup").Logger(),
	}
}

// RunOnce deletes expired PUBLISHED rows in chunks until a short chunk
// signals the backlog is drained. Returns the total deleted.
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := c.clock.Now().Add(-c.retention)

	var total int64
	for {
		n, err := c.store.DeleteByStatusAndOccurredAtBefore(ctx, StatusPublished, cutoff, cleanupChunk)
		total += n
		if err != nil {
			return total, err
		}
		cleanupDeletedCounter.Add(float64(n))
		if n < cleanupChunk {
			break
		}
	}

	if total > 0 {
		c.log.Info().Int64("deleted", total).Time("cutoff", cutoff).Msg("outbox cleanup completed")
	}
	return total, nil
}

// Register schedules RunOnce on cr with the given cron spec (e.g.
// "0 2 * * *"). Each invocation is bounded by timeout.
func (c *Cleaner) Register(cr *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return cr.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := c.RunOnce(ctx); err != nil {
			c.log.Error().Err(err).Msg("outbox cleanup failed")
		}
	})
}
