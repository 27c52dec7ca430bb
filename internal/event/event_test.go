package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/eventrelay/internal/clock"
)

type orderCreated struct {
	OrderID string `json:"order_id"`
}

func (orderCreated) EventType() string { return "ORDER_CREATED" }

type staticIDs struct{ next int }

func (s *staticIDs) Generate() (string, error) {
	s.next++
	return "id-" + string(rune('0'+s.next)), nil
}

type staticMeta struct{ meta Metadata }

func (m staticMeta) Metadata(context.Context, Payload) (Metadata, error) {
	return m.meta, nil
}

func testMetadata() Metadata {
	return Metadata{
		Source: Source{Service: "orders", Environment: "test", InstanceID: "i-1", Host: "localhost", Version: "1.0.0"},
		Actor:  Actor{ID: "SYSTEM", Role: "ROLE_SYSTEM", IP: "127.0.0.1"},
		Trace:  Trace{TraceID: "t-1", SpanID: "s-1"},
		Schema: Schema{Name: "OrderCreated", Version: 1},
		Tags:   map[string]string{"region": "eu-1"},
	}
}

func TestFactoryStampsIdentityAndTimes(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := NewFactory(&staticIDs{}, clock.NewFake(now), staticMeta{testMetadata()})

	env, err := f.New(context.Background(), orderCreated{OrderID: "O1"}, "", "")
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "ORDER_CREATED", env.EventType)
	assert.Equal(t, SeverityInfo, env.Severity)
	assert.Equal(t, now, env.OccurredAt)
	assert.Equal(t, now, env.PublishedAt)
}

func TestFactoryCopiesTags(t *testing.T) {
	meta := testMetadata()
	f := NewFactory(&staticIDs{}, clock.NewFake(time.Now()), staticMeta{meta})

	env, err := f.New(context.Background(), orderCreated{}, "", SeverityWarn)
	require.NoError(t, err)

	env.Metadata.Tags["region"] = "mutated"
	assert.Equal(t, "eu-1", meta.Tags["region"], "envelope tags must not alias caller's map")
}

func TestValidatorAcceptsWellFormedEnvelope(t *testing.T) {
	now := time.Now().UTC()
	env := &Envelope{
		EventID:     "1",
		EventType:   "ORDER_CREATED",
		Severity:    SeverityInfo,
		Metadata:    testMetadata(),
		Payload:     orderCreated{OrderID: "O1"},
		OccurredAt:  now,
		PublishedAt: now,
	}
	require.NoError(t, NewValidator().Validate(env))
}

func TestValidatorRejections(t *testing.T) {
	now := time.Now().UTC()
	base := func() *Envelope {
		return &Envelope{
			EventID:     "1",
			EventType:   "ORDER_CREATED",
			Severity:    SeverityInfo,
			Metadata:    testMetadata(),
			Payload:     orderCreated{},
			OccurredAt:  now,
			PublishedAt: now,
		}
	}

	cases := map[string]func(*Envelope){
		"missing event id":           func(e *Envelope) { e.EventID = "" },
		"missing event type":         func(e *Envelope) { e.EventType = "" },
		"unknown severity":           func(e *Envelope) { e.Severity = "LOUD" },
		"nil payload":                func(e *Envelope) { e.Payload = nil },
		"missing source service":     func(e *Envelope) { e.Metadata.Source.Service = "" },
		"schema version below one":   func(e *Envelope) { e.Metadata.Schema.Version = 0 },
		"zero occurredAt":            func(e *Envelope) { e.OccurredAt = time.Time{} },
		"zero publishedAt":           func(e *Envelope) { e.PublishedAt = time.Time{} },
		"occurredAt after published": func(e *Envelope) { e.OccurredAt = now.Add(time.Second) },
		"payload type mismatch":      func(e *Envelope) { e.EventType = "SOMETHING_ELSE" },
	}

	v := NewValidator()
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := base()
			mutate(env)
			err := v.Validate(env)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidatorRejectsNilEnvelope(t *testing.T) {
	err := NewValidator().Validate(nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
