package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/eventrelay/internal/clock"
)

// memoryStore is the in-process Store double used by the relay, writer, and
// cleanup tests. Claimed rows stay invisible to other transactions until the
// claiming one finishes, mirroring skip-locked behavior.
type memoryStore struct {
	mu      sync.Mutex
	rows    map[string]*Row
	claimed map[string]bool
	clock   clock.Clock

	saveErr error // injected fault
}

func newMemoryStore(clk clock.Clock) *memoryStore {
	return &memoryStore{
		rows:    make(map[string]*Row),
		claimed: make(map[string]bool),
		clock:   clk,
	}
}

func cloneRow(r *Row) *Row {
	c := *r
	if r.NextRetryAt != nil {
		t := *r.NextRetryAt
		c.NextRetryAt = &t
	}
	if r.PublishedAt != nil {
		t := *r.PublishedAt
		c.PublishedAt = &t
	}
	if r.Payload != nil {
		c.Payload = append([]byte(nil), r.Payload...)
	}
	return &c
}

func (s *memoryStore) Save(ctx context.Context, row *Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rows[row.EventID] = cloneRow(row)
	return nil
}

func (s *memoryStore) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{store: s}, nil
}

func (s *memoryStore) FindByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Row
	for _, r := range s.rows {
		if r.AggregateType == aggregateType && r.AggregateID == aggregateID {
			out = append(out, cloneRow(r))
		}
	}
	sortByOccurredAt(out)
	return out, nil
}

func (s *memoryStore) FindByStatus(ctx context.Context, status Status, limit int) ([]*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Row
	for _, r := range s.rows {
		if r.Status == status {
			out = append(out, cloneRow(r))
		}
	}
	sortByOccurredAt(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) DeleteByStatusAndOccurredAtBefore(ctx context.Context, status Status, before time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*Row
	for _, r := range s.rows {
		if r.Status == status && r.OccurredAt.Before(before) {
			candidates = append(candidates, r)
		}
	}
	sortByOccurredAt(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, r := range candidates {
		delete(s.rows, r.EventID)
	}
	return int64(len(candidates)), nil
}

func (s *memoryStore) CountByStatus(ctx context.Context, status Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *memoryStore) get(eventID string) *Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[eventID]
	if !ok {
		return nil
	}
	return cloneRow(r)
}

type memoryTx struct {
	store  *memoryStore
	locked []string
}

func (t *memoryTx) FindPendingForProcessing(ctx context.Context, limit int) ([]*Row, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var due []*Row
	for _, r := range s.rows {
		if r.Status != StatusPending || s.claimed[r.EventID] {
			continue
		}
		if r.NextRetryAt == nil || r.NextRetryAt.After(now) {
			continue
		}
		due = append(due, r)
	}
	sortByOccurredAt(due)
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*Row, 0, len(due))
	for _, r := range due {
		s.claimed[r.EventID] = true
		t.locked = append(t.locked, r.EventID)
		out = append(out, cloneRow(r))
	}
	return out, nil
}

func (t *memoryTx) Save(ctx context.Context, row *Row) error {
	return t.store.Save(ctx, row)
}

func (t *memoryTx) Commit(ctx context.Context) error {
	t.release()
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.release()
	return nil
}

func (t *memoryTx) release() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range t.locked {
		delete(s.claimed, id)
	}
	t.locked = nil
}

func sortByOccurredAt(rows []*Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OccurredAt.Equal(rows[j].OccurredAt) {
			return rows[i].EventID < rows[j].EventID
		}
		return rows[i].OccurredAt.Before(rows[j].OccurredAt)
	})
}
