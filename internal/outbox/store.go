package outbox

import (
	"context"
	"fmt"
	"time"
)

// RowSaver is the minimal surface the Writer needs: an upsert that
// participates in whatever transaction the implementation is bound to.
type RowSaver interface {
	Save(ctx context.Context, row *Row) error
}

// Store is the durable persistence contract for outbox rows.
type Store interface {
	RowSaver

	// Begin opens the transaction one relay tick runs inside.
	Begin(ctx context.Context) (Tx, error)

	// FindByAggregate returns all rows for one aggregate, occurredAt ascending.
	FindByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*Row, error)

	// FindByStatus returns a read-only snapshot of up to limit rows.
	FindByStatus(ctx context.Context, status Status, limit int) ([]*Row, error)

	// DeleteByStatusAndOccurredAtBefore removes up to limit rows in the given
	// terminal status older than before, returning the count deleted.
	DeleteByStatusAndOccurredAtBefore(ctx context.Context, status Status, before time.Time, limit int) (int64, error)

	CountByStatus(ctx context.Context, status Status) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// Tx is the transactional view a relay tick operates on. Rows returned by
// FindPendingForProcessing stay locked until Commit or Rollback.
type Tx interface {
	RowSaver

	// FindPendingForProcessing claims up to limit PENDING rows whose
	// nextRetryAt has passed, ordered by occurredAt ascending, under
	// row-level locks with skip-locked semantics: rows locked by another
	// session are passed over, never waited on, so concurrent relays claim
	// disjoint sets.
	FindPendingForProcessing(ctx context.Context, limit int) ([]*Row, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// StoreError wraps persistence failures with a retryability hint. Outbox
// writes propagate it to abort the caller's transaction; relay-side store
// errors fail the tick but never the loop.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("outbox store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
