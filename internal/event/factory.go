package event

import (
	"context"
	"fmt"

	"example.com/eventrelay/internal/clock"
)

// IDSource mints envelope identifiers.
type IDSource interface {
	Generate() (string, error)
}

// MetadataProvider captures ambient per-request context for a payload.
type MetadataProvider interface {
	Metadata(ctx context.Context, payload Payload) (Metadata, error)
}

// Factory assembles envelopes. It stamps the event id and sets
// occurredAt == publishedAt from the injected clock, fixing the event's
// identity before anything is persisted or sent.
type Factory struct {
	ids   IDSource
	clock clock.Clock
	meta  MetadataProvider
}

// NewFactory constructs a Factory.
func NewFactory(ids IDSource, clk clock.Clock, meta MetadataProvider) *Factory {
	return &Factory{ids: ids, clock: clk, meta: meta}
}

// New assembles an envelope for payload. eventType overrides the payload's
// self-reported type when non-empty; severity defaults to INFO.
func (f *Factory) New(ctx context.Context, payload Payload, eventType string, severity Severity) (*Envelope, error) {
	if payload == nil {
		return nil, &ValidationError{Reason: "payload is nil"}
	}

	id, err := f.ids.Generate()
	if err != nil {
		return nil, fmt.Errorf("event: generate id: %w", err)
	}

	meta, err := f.meta.Metadata(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("event: capture metadata: %w", err)
	}

	if eventType == "" {
		eventType = payload.EventType()
	}
	if severity == "" {
		severity = SeverityInfo
	}

	now := f.clock.Now()
	return &Envelope{
		EventID:     id,
		EventType:   eventType,
		Severity:    severity,
		Metadata:    meta.Clone(),
		Payload:     payload,
		OccurredAt:  now,
		PublishedAt: now,
	}, nil
}
