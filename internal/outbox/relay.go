package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"example.com/eventrelay/internal/broker"
	"example.com/eventrelay/internal/clock"
	"example.com/eventrelay/internal/transform"
)

// RelayConfig tunes the polling publisher.
type RelayConfig struct {
	Topic        string
	PollInterval time.Duration // tick period P
	SendTimeout  time.Duration // per-record broker timeout T
	MaxRetries   int           // permanent-failure threshold
	RetryBase    time.Duration // backoff base
	RetryCap     time.Duration // backoff ceiling

	BatchSize       int
	BatchMin        int
	BatchMax        int
	DynamicBatching bool

	BreakerEnabled    bool
	BreakerWindow     int
	BreakerThreshold  float64
	BreakerMinSamples int
	BreakerCooldown   time.Duration

	// ShutdownGrace bounds how long an in-flight tick may outlive Run's
	// context before its broker sends are interrupted.
	ShutdownGrace time.Duration
}

func (c *RelayConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 60 * time.Second
	}
	if c.BatchMin <= 0 {
		c.BatchMin = 10
	}
	if c.BatchMax <= 0 {
		c.BatchMax = 500
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BreakerWindow <= 0 {
		c.BreakerWindow = 20
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 0.5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
}

// Relay drains the outbox and forwards rows to the broker. One Relay runs
// per process; replicas coordinate only through the store's skip-locked
// claims.
type Relay struct {
	store   Store
	client  broker.Client
	breaker *CircuitBreaker // nil when disabled
	batcher *BatchController
	codec   transform.Codec
	clock   clock.Clock
	cfg     RelayConfig
	log     zerolog.Logger

	shutdownComplete chan struct{}
}

// NewRelay constructs a Relay from cfg.
func NewRelay(store Store, client broker.Client, cfg RelayConfig, log zerolog.Logger) *Relay {
	cfg.applyDefaults()

	clk := clock.System()
	r := &Relay{
		store:            store,
		client:           client,
		batcher:          NewBatchController(cfg.BatchSize, cfg.BatchMin, cfg.BatchMax),
		codec:            transform.JSONCodec{},
		clock:            clk,
		cfg:              cfg,
		log:              log.With().Str("component", "relay").Logger(),
		shutdownComplete: make(chan struct{}),
	}
	if cfg.BreakerEnabled {
		r.breaker = NewCircuitBreaker(cfg.BreakerWindow, cfg.BreakerThreshold, cfg.BreakerMinSamples, cfg.BreakerCooldown, clk)
	}
	return r
}

// Breaker exposes the circuit breaker for inspection; nil when disabled.
func (r *Relay) Breaker() *CircuitBreaker { return r.breaker }

// Batcher exposes the batch controller for inspection.
func (r *Relay) Batcher() *BatchController { return r.batcher }

// Run drives the tick loop until ctx is cancelled. Every tick is wrapped in
// a catch-all: errors are logged and counted, the loop never terminates on
// them. It should be called in a goroutine.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer func() {
		ticker.Stop()
		close(r.shutdownComplete)
	}()

	r.log.Info().
		Dur("poll_interval", r.cfg.PollInterval).
		Str("topic", r.cfg.Topic).
		Bool("breaker", r.breaker != nil).
		Msg("relay started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("relay stopping")
			return
		case <-ticker.C:
		}
		r.runTick(ctx)
	}
}

// Wait blocks until Run has returned.
func (r *Relay) Wait() {
	<-r.shutdownComplete
}

// runTick executes one tick on a context that survives shutdown for up to
// ShutdownGrace, so an in-flight transaction can commit before outstanding
// broker sends are interrupted.
func (r *Relay) runTick(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()
	stop := context.AfterFunc(parent, func() {
		timer := time.NewTimer(r.cfg.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ctx.Done():
		}
	})
	defer stop()

	if err := r.tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		tickErrorsCounter.Inc()
		r.log.Error().Err(err).Msg("tick failed")
	}
}

// tick claims one batch under row locks, forwards each row in occurredAt
// order, and commits the resulting state transitions in the same
// transaction.
func (r *Relay) tick(ctx context.Context) error {
	if r.breaker != nil && !r.breaker.Allow() {
		// Skip claiming entirely; holding row locks during an outage is
		// wasted work for the database.
		breakerSkipsCounter.Inc()
		return nil
	}

	limit := r.batcher.Size()
	probing := r.breaker != nil && r.breaker.State() == BreakerHalfOpen
	if probing {
		limit = 1 // single probe
	}
	batchSizeGauge.Set(float64(limit))

	// A probe tick that never reaches the broker must hand its slot back, or
	// the breaker would wait forever for an outcome that cannot arrive.
	releaseProbe := func() {
		if probing {
			r.breaker.RecordProbeIdle()
		}
	}

	start := time.Now()
	tx, err := r.store.Begin(ctx)
	if err != nil {
		releaseProbe()
		return err
	}

	rows, err := tx.FindPendingForProcessing(ctx, limit)
	if err != nil {
		_ = tx.Rollback(ctx)
		releaseProbe()
		return err
	}
	if len(rows) == 0 {
		_ = tx.Rollback(ctx)
		releaseProbe()
		if r.cfg.DynamicBatching {
			r.batcher.RecordIdle()
		}
		return nil
	}
	defer tickDuration.Observe(time.Since(start).Seconds())

	polledCounter.Add(float64(len(rows)))

	anyFailure := false
	for _, row := range rows {
		sendErr := r.send(ctx, row)
		now := r.clock.Now()

		if sendErr == nil {
			row.MarkPublished(now)
			publishedCounter.Inc()
			if r.breaker != nil {
				r.breaker.RecordSuccess()
			}
		} else {
			anyFailure = true
			row.ScheduleRetry(now, sendErr, r.cfg.RetryBase, r.cfg.RetryCap, r.cfg.MaxRetries)
			if row.Status == StatusFailed {
				failedCounter.Inc()
				r.log.Error().Err(sendErr).
					Str("event_id", row.EventID).
					Int("retry_count", row.RetryCount).
					Msg("row exhausted retries; marked FAILED")
			} else {
				retriedCounter.Inc()
				r.log.Warn().Err(sendErr).
					Str("event_id", row.EventID).
					Int("retry_count", row.RetryCount).
					Time("next_retry_at", *row.NextRetryAt).
					Msg("send failed; retry scheduled")
			}
			if r.breaker != nil {
				r.breaker.RecordFailure()
			}
		}

		if err := tx.Save(ctx, row); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if r.cfg.DynamicBatching {
		if anyFailure {
			r.batcher.RecordFailure()
		} else {
			r.batcher.RecordSuccess()
		}
	}
	return nil
}

// send forwards one row with the bounded per-record timeout. The record key
// is the event id, so events of one aggregate hash to one partition, and the
// causal-chain ids ride along as headers when the payload decodes.
func (r *Relay) send(ctx context.Context, row *Row) error {
	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()
	return r.client.Send(sendCtx, r.cfg.Topic, row.EventID, row.Payload, r.headersFor(row)...)
}

func (r *Relay) headersFor(row *Row) []broker.Header {
	env, err := r.codec.Decode(row.Payload)
	if err != nil {
		// Headers are best-effort; an opaque payload still ships.
		return nil
	}
	var headers []broker.Header
	if v := env.Metadata.Source.CorrelationID; v != "" {
		headers = append(headers, broker.Header{Key: "correlationId", Value: []byte(v)})
	}
	if v := env.Metadata.Source.CausationID; v != "" {
		headers = append(headers, broker.Header{Key: "causationId", Value: []byte(v)})
	}
	if v := env.Metadata.Source.RootEventID; v != "" {
		headers = append(headers, broker.Header{Key: "rootEventId", Value: []byte(v)})
	}
	return headers
}
