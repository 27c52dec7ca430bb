package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"example.com/eventrelay/internal/event"
	"example.com/eventrelay/internal/transform"
)

// ErrMissingAggregate reports outbox mode requested without aggregate
// metadata; that is a configuration error, not a runtime condition.
var ErrMissingAggregate = errors.New("outbox: aggregate type and id are required")

// WriteOptions carries the per-call flags of an outbox write.
type WriteOptions struct {
	AggregateType string
	AggregateID   string
	// EventType overrides the payload's self-reported type. When set it must
	// agree with the payload; mismatches fail validation.
	EventType string
	Severity  event.Severity
	// FailOnError propagates assembly, validation, serialization, and store
	// failures to the caller so the surrounding transaction aborts. When
	// false, failures are logged and swallowed.
	FailOnError bool
}

// Writer persists envelopes as PENDING outbox rows inside the caller's
// database transaction. It never calls the broker: atomicity of business
// change and event publication is inherited from the transaction.
type Writer struct {
	factory      *event.Factory
	validator    event.Validator
	transformers transform.Chain
	codec        transform.Codec
	log          zerolog.Logger
}

// NewWriter constructs a Writer. transformers may be nil; codec defaults to
// JSON.
func NewWriter(factory *event.Factory, validator event.Validator, transformers transform.Chain, codec transform.Codec, log zerolog.Logger) *Writer {
	if codec == nil {
		codec = transform.JSONCodec{}
	}
	return &Writer{
		factory:      factory,
		validator:    validator,
		transformers: transformers,
		codec:        codec,
		log:          log.With().Str("component", "outbox_writer").Logger(),
	}
}

// Write assembles, validates, serializes, and inserts one outbox row through
// db, which must be bound to the caller's open transaction. If the
// transaction commits the row is durable; if it aborts the row is absent.
func (w *Writer) Write(ctx context.Context, db RowSaver, payload event.Payload, opts WriteOptions) (*event.Envelope, error) {
	env, err := w.write(ctx, db, payload, opts)
	if err != nil && !opts.FailOnError {
		w.log.Error().Err(err).
			Str("aggregate_type", opts.AggregateType).
			Str("aggregate_id", opts.AggregateID).
			Msg("outbox write failed; suppressed by failOnError=false")
		return nil, nil
	}
	return env, err
}

func (w *Writer) write(ctx context.Context, db RowSaver, payload event.Payload, opts WriteOptions) (*event.Envelope, error) {
	if opts.AggregateType == "" || opts.AggregateID == "" {
		return nil, ErrMissingAggregate
	}

	env, err := w.factory.New(ctx, payload, opts.EventType, opts.Severity)
	if err != nil {
		return nil, err
	}

	if err := w.validator.Validate(env); err != nil {
		return nil, err
	}

	transformed, err := w.transformers.Apply(env)
	if err != nil {
		return nil, fmt.Errorf("outbox: transform envelope %s: %w", env.EventID, err)
	}

	data, err := w.codec.Encode(transformed)
	if err != nil {
		return nil, fmt.Errorf("outbox: serialize envelope %s: %w", env.EventID, err)
	}

	occurredAt := env.OccurredAt
	row := &Row{
		EventID:       env.EventID,
		AggregateType: opts.AggregateType,
		AggregateID:   opts.AggregateID,
		EventType:     env.EventType,
		Payload:       data,
		OccurredAt:    occurredAt,
		Status:        StatusPending,
		NextRetryAt:   &occurredAt,
	}
	if err := db.Save(ctx, row); err != nil {
		return nil, err
	}

	w.log.Debug().
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Str("aggregate_type", opts.AggregateType).
		Str("aggregate_id", opts.AggregateID).
		Msg("outbox row written")
	return env, nil
}
