package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same SQL
// helpers serve pooled and transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore is the Postgres-backed Store. The reference schema lives in
// db/postgres/migrations.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore constructs a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const upsertSQL = `
	INSERT INTO outbox_events
		(event_id, aggregate_type, aggregate_id, event_type, payload,
		 occurred_at, status, retry_count, next_retry_at, published_at,
		 error_message, version)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),0)
	ON CONFLICT (event_id) DO UPDATE SET
		status        = EXCLUDED.status,
		retry_count   = EXCLUDED.retry_count,
		next_retry_at = EXCLUDED.next_retry_at,
		published_at  = EXCLUDED.published_at,
		error_message = EXCLUDED.error_message,
		version       = outbox_events.version + 1`

const selectColumns = `event_id, aggregate_type, aggregate_id, event_type, payload,
		occurred_at, status, retry_count, next_retry_at, published_at,
		COALESCE(error_message, ''), version`

func saveRow(ctx context.Context, q querier, row *Row) error {
	_, err := q.Exec(ctx, upsertSQL,
		row.EventID,
		row.AggregateType,
		row.AggregateID,
		row.EventType,
		row.Payload,
		row.OccurredAt,
		row.Status,
		row.RetryCount,
		row.NextRetryAt,
		row.PublishedAt,
		row.ErrorMessage,
	)
	if err != nil {
		return &StoreError{Op: "save " + row.EventID, Retryable: true, Err: err}
	}
	return nil
}

func scanRows(rows pgx.Rows) ([]*Row, error) {
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.EventID, &r.AggregateType, &r.AggregateID, &r.EventType, &r.Payload,
			&r.OccurredAt, &r.Status, &r.RetryCount, &r.NextRetryAt, &r.PublishedAt,
			&r.ErrorMessage, &r.Version,
		); err != nil {
			return nil, &StoreError{Op: "scan row", Retryable: false, Err: err}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate rows", Retryable: true, Err: err}
	}
	return out, nil
}

// Save upserts a row outside any caller transaction.
func (s *PgStore) Save(ctx context.Context, row *Row) error {
	return saveRow(ctx, s.pool, row)
}

// Begin opens the tick transaction.
func (s *PgStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &StoreError{Op: "begin", Retryable: true, Err: err}
	}
	return &PgTx{tx: tx}, nil
}

// Tx binds the store to an application-managed transaction so outbox writes
// commit or abort together with the business change.
func (s *PgStore) Tx(tx pgx.Tx) *PgTx {
	return &PgTx{tx: tx, external: true}
}

// FindByAggregate returns every row of one aggregate in occurredAt order.
func (s *PgStore) FindByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM outbox_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY occurred_at ASC`,
		aggregateType, aggregateID)
	if err != nil {
		return nil, &StoreError{Op: "find by aggregate", Retryable: true, Err: err}
	}
	return scanRows(rows)
}

// FindByStatus returns a read-only snapshot.
func (s *PgStore) FindByStatus(ctx context.Context, status Status, limit int) ([]*Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM outbox_events
		WHERE status = $1
		ORDER BY occurred_at ASC
		LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, &StoreError{Op: "find by status", Retryable: true, Err: err}
	}
	return scanRows(rows)
}

// DeleteByStatusAndOccurredAtBefore removes one cleanup chunk.
func (s *PgStore) DeleteByStatusAndOccurredAtBefore(ctx context.Context, status Status, before time.Time, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM outbox_events
		WHERE event_id IN (
			SELECT event_id FROM outbox_events
			WHERE status = $1 AND occurred_at < $2
			ORDER BY occurred_at ASC
			LIMIT $3
		)`,
		status, before, limit)
	if err != nil {
		return 0, &StoreError{Op: "delete by status", Retryable: true, Err: err}
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, &StoreError{Op: "count by status", Retryable: true, Err: err}
	}
	return n, nil
}

func (s *PgStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events`).Scan(&n); err != nil {
		return 0, &StoreError{Op: "count", Retryable: true, Err: err}
	}
	return n, nil
}

// PgTx is the transactional view over pgx.Tx.
type PgTx struct {
	tx pgx.Tx
	// external transactions belong to the application; Commit and Rollback
	// are then the application's responsibility, not ours.
	external bool
}

// FindPendingForProcessing claims due rows with FOR UPDATE SKIP LOCKED.
func (t *PgTx) FindPendingForProcessing(ctx context.Context, limit int) ([]*Row, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+selectColumns+`
		FROM outbox_events
		WHERE status = $1 AND next_retry_at <= NOW()
		ORDER BY occurred_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		StatusPending, limit)
	if err != nil {
		return nil, &StoreError{Op: "claim pending", Retryable: true, Err: err}
	}
	return scanRows(rows)
}

// Save upserts within the transaction.
func (t *PgTx) Save(ctx context.Context, row *Row) error {
	return saveRow(ctx, t.tx, row)
}

func (t *PgTx) Commit(ctx context.Context) error {
	if t.external {
		return nil
	}
	if err := t.tx.Commit(ctx); err != nil {
		return &StoreError{Op: "commit", Retryable: true, Err: err}
	}
	return nil
}

func (t *PgTx) Rollback(ctx context.Context) error {
	if t.external {
		return nil
	}
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return &StoreError{Op: "rollback", Retryable: false, Err: err}
	}
	return nil
}
