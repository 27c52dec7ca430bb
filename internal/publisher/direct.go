// Package publisher sends envelopes straight to the broker, bypassing the
// outbox. Direct mode trades the outbox's transactional guarantee for lower
// latency; delivery is still hardened with bounded retries, a dead-letter
// topic, and a local file backup when even the DLQ is down.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"example.com/eventrelay/internal/broker"
	"example.com/eventrelay/internal/clock"
	"example.com/eventrelay/internal/event"
	"example.com/eventrelay/internal/transform"
)

// RetryPolicy is the in-process retry schedule for direct sends: attempt
// intervals grow geometrically from InitialInterval by Multiplier, capped at
// MaxInterval, for at most MaxAttempts attempts.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

func (p *RetryPolicy) applyDefaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 60 * time.Second
	}
}

// Interval returns the pause before attempt n+1 (n counts completed
// attempts, starting at 1).
func (p RetryPolicy) Interval(n int) time.Duration {
	d := p.InitialInterval
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	if d > p.MaxInterval {
		return p.MaxInterval
	}
	return d
}

// PublishOptions carries the per-call flags of a direct publish.
type PublishOptions struct {
	// EventType overrides the payload's self-reported type. When set it must
	// agree with the payload; mismatches fail validation.
	EventType string
	Severity  event.Severity
}

// Direct publishes envelopes synchronously. Publish returns nil only when the
// broker acknowledged the record; events diverted to the DLQ or the file
// backup still report the original send error to the caller.
type Direct struct {
	factory      *event.Factory
	validator    event.Validator
	transformers transform.Chain
	codec        transform.Codec
	client       broker.Client
	retry        RetryPolicy
	topic        string
	dlqTopic     string
	backupDir    string
	clock        clock.Clock
	log          zerolog.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDirect constructs a Direct publisher. transformers may be nil.
func NewDirect(factory *event.Factory, validator event.Validator, transformers transform.Chain, client broker.Client, retry RetryPolicy, topic, dlqTopic, backupDir string, log zerolog.Logger) *Direct {
	retry.applyDefaults()
	return &Direct{
		factory:      factory,
		validator:    validator,
		transformers: transformers,
		codec:        transform.JSONCodec{},
		client:       client,
		retry:        retry,
		topic:        topic,
		dlqTopic:     dlqTopic,
		backupDir:    backupDir,
		clock:        clock.System(),
		log:          log.With().Str("component", "direct_publisher").Logger(),
		sleep:        sleepCtx,
	}
}

// Publish assembles, validates, and sends one envelope, retrying transient
// failures per the policy. On exhaustion the event is wrapped in a
// FailedEventRecord and sent to the DLQ; if the DLQ is also unreachable the
// record lands as a JSON file under the backup directory.
func (d *Direct) Publish(ctx context.Context, payload event.Payload, opts PublishOptions) (*event.Envelope, error) {
	env, err := d.factory.New(ctx, payload, opts.EventType, opts.Severity)
	if err != nil {
		return nil, err
	}
	if err := d.validator.Validate(env); err != nil {
		return nil, err
	}

	transformed, err := d.transformers.Apply(env)
	if err != nil {
		return nil, fmt.Errorf("publisher: transform envelope %s: %w", env.EventID, err)
	}
	data, err := d.codec.Encode(transformed)
	if err != nil {
		// No broker-ready payload exists, so the DLQ record carries only the
		// failure details.
		serErr := fmt.Errorf("publisher: serialize envelope %s: %w", env.EventID, err)
		d.deadLetter(ctx, env.EventID, nil, serErr)
		return env, serErr
	}

	sendErr := d.sendWithRetry(ctx, env.EventID, data)
	if sendErr == nil {
		publishedCounter.Inc()
		return env, nil
	}

	d.deadLetter(ctx, env.EventID, data, sendErr)
	return env, sendErr
}

func (d *Direct) sendWithRetry(ctx context.Context, key string, value []byte) error {
	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		lastErr = d.client.Send(ctx, d.topic, key, value, d.headers(key)...)
		if lastErr == nil {
			return nil
		}
		if !broker.Retryable(lastErr) {
			return lastErr
		}
		retriedCounter.Inc()
		d.log.Warn().Err(lastErr).
			Str("event_id", key).
			Int("attempt", attempt).
			Msg("direct send failed")

		if attempt < d.retry.MaxAttempts {
			if err := d.sleep(ctx, d.retry.Interval(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// deadLetter forwards the failed event to the DLQ, falling back to a local
// file when the DLQ send itself fails. Both paths are logged; neither masks
// the original send error.
func (d *Direct) deadLetter(ctx context.Context, eventID string, payload []byte, cause error) {
	rec := newFailedEventRecord(eventID, d.topic, payload, cause, d.clock.Now())
	data, err := json.Marshal(rec)
	if err == nil {
		err = d.client.Send(ctx, d.dlqTopic, eventID, data)
	}
	if err == nil {
		deadLetteredCounter.Inc()
		d.log.Error().
			Str("event_id", eventID).
			Str("dlq_topic", d.dlqTopic).
			AnErr("cause", cause).
			Msg("event dead-lettered")
		return
	}

	path, backupErr := writeBackup(d.backupDir, rec)
	if backupErr != nil {
		d.log.Error().
			Str("event_id", eventID).
			AnErr("dlq_error", err).
			AnErr("backup_error", backupErr).
			Msg("event lost: DLQ and file backup both failed")
		return
	}
	backedUpCounter.Inc()
	d.log.Error().
		Str("event_id", eventID).
		Str("backup_file", path).
		AnErr("dlq_error", err).
		Msg("DLQ unreachable; event backed up to file")
}

func (d *Direct) headers(eventID string) []broker.Header {
	return []broker.Header{{Key: "eventId", Value: []byte(eventID)}}
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
