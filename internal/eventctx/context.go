// Package eventctx carries per-request diagnostic values on context.Context
// and assembles event metadata from them. Values are explicit context entries
// rather than hidden globals, so propagation across task boundaries is a
// matter of handing the right context to the next goroutine.
package eventctx

import (
	"context"

	"example.com/eventrelay/internal/event"
)

type ctxKey int

const (
	actorKey ctxKey = iota
	traceKey
	correlationKey
	tagsKey
)

const unknown = "unknown"

// DefaultActor is used when no authenticated principal was recorded.
var DefaultActor = event.Actor{ID: "SYSTEM", Role: "ROLE_SYSTEM", IP: "127.0.0.1"}

// Correlation ties an event to its business transaction, its immediate
// trigger, and the first event of the chain.
type Correlation struct {
	CorrelationID string
	CausationID   string
	RootEventID   string
}

// WithActor records the acting principal.
func WithActor(ctx context.Context, actor event.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the recorded actor or DefaultActor.
func ActorFrom(ctx context.Context) event.Actor {
	if a, ok := ctx.Value(actorKey).(event.Actor); ok {
		if a.IP == "" {
			a.IP = DefaultActor.IP
		}
		return a
	}
	return DefaultActor
}

// WithTrace records tracing identifiers.
func WithTrace(ctx context.Context, trace event.Trace) context.Context {
	return context.WithValue(ctx, traceKey, trace)
}

// TraceFrom returns the recorded trace; missing identifiers become "unknown".
func TraceFrom(ctx context.Context) event.Trace {
	tr, _ := ctx.Value(traceKey).(event.Trace)
	if tr.TraceID == "" {
		tr.TraceID = unknown
	}
	if tr.SpanID == "" {
		tr.SpanID = unknown
	}
	return tr
}

// WithCorrelation records the causal chain identifiers.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	return context.WithValue(ctx, correlationKey, c)
}

// CorrelationFrom returns the recorded correlation, zero-valued when absent.
func CorrelationFrom(ctx context.Context) Correlation {
	c, _ := ctx.Value(correlationKey).(Correlation)
	return c
}

// ClearCorrelation removes all three chain identifiers.
func ClearCorrelation(ctx context.Context) context.Context {
	return context.WithValue(ctx, correlationKey, Correlation{})
}

// WithTag adds one diagnostic tag, copying the existing map.
func WithTag(ctx context.Context, key, value string) context.Context {
	existing, _ := ctx.Value(tagsKey).(map[string]string)
	tags := make(map[string]string, len(existing)+1)
	for k, v := range existing {
		tags[k] = v
	}
	tags[key] = value
	return context.WithValue(ctx, tagsKey, tags)
}

// TagsFrom returns the diagnostic tag map, never nil. Null-safe for callers
// that never set tags.
func TagsFrom(ctx context.Context) map[string]string {
	tags, _ := ctx.Value(tagsKey).(map[string]string)
	if tags == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
