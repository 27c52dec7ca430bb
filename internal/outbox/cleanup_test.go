package outbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/eventrelay/internal/clock"
)

func seedTerminalRow(t *testing.T, store *memoryStore, id string, status Status, occurredAt time.Time) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), &Row{
		EventID:       id,
		AggregateType: "Order",
		AggregateID:   "ord-1",
		EventType:     "order.created",
		Payload:       []byte(`{}`),
		OccurredAt:    occurredAt,
		Status:        status,
	}))
}

func TestCleanerDeletesExpiredPublishedRows(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC))
	store := newMemoryStore(clk)
	c := NewCleaner(store, 7, zerolog.Nop())
	c.clock = clk

	seedTerminalRow(t, store, "old-published", StatusPublished, clk.Now().Add(-8*24*time.Hour))
	seedTerminalRow(t, store, "fresh-published", StatusPublished, clk.Now().Add(-2*24*time.Hour))
	seedTerminalRow(t, store, "old-failed", StatusFailed, clk.Now().Add(-30*24*time.Hour))
	seedRow(t, store, "old-pending", clk.Now().Add(-8*24*time.Hour), nil)

	deleted, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	assert.Nil(t, store.get("old-published"))
	assert.NotNil(t, store.get("fresh-published"), "rows inside the retention window stay")
	assert.NotNil(t, store.get("old-failed"), "FAILED rows are kept for operator replay")
	assert.NotNil(t, store.get("old-pending"), "PENDING rows are never cleaned up")
}

func TestCleanerDrainsInChunks(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC))
	store := newMemoryStore(clk)
	c := NewCleaner(store, 7, zerolog.Nop())
	c.clock = clk

	old := clk.Now().Add(-30 * 24 * time.Hour)
	for i := 0; i < cleanupChunk+50; i++ {
		seedTerminalRow(t, store, fmt.Sprintf("e%04d", i), StatusPublished, old.Add(time.Duration(i)*time.Millisecond))
	}

	deleted, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(cleanupChunk+50), deleted)

	n, err := store.CountByStatus(context.Background(), StatusPublished)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanerNoopWhenNothingExpired(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC))
	store := newMemoryStore(clk)
	c := NewCleaner(store, 7, zerolog.Nop())
	c.clock = clk

	seedTerminalRow(t, store, "fresh", StatusPublished, clk.Now().Add(-time.Hour))

	deleted, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.NotNil(t, store.get("fresh"))
}
