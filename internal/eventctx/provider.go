package eventctx

import (
	"context"
	"reflect"
	"sync"

	"example.com/eventrelay/internal/event"
)

// DefaultTagKeys are the diagnostic tags extracted when none are configured.
var DefaultTagKeys = []string{"region", "tenant"}

// SchemaProvider lets a payload declare its schema name, version, and
// registry id. Payloads without it fall back to their type name at version 1.
type SchemaProvider interface {
	EventSchema() event.Schema
}

// Provider assembles event metadata from the process-wide source descriptor
// and the diagnostic values carried on the request context.
type Provider struct {
	source      event.Source
	tagKeys     []string
	schemaCache sync.Map // reflect.Type -> event.Schema
}

// NewProvider constructs a Provider. tagKeys defaults to DefaultTagKeys.
func NewProvider(source event.Source, tagKeys ...string) *Provider {
	if len(tagKeys) == 0 {
		tagKeys = DefaultTagKeys
	}
	return &Provider{source: source, tagKeys: tagKeys}
}

// Metadata captures actor, trace, correlation, tags, and schema for payload.
func (p *Provider) Metadata(ctx context.Context, payload event.Payload) (event.Metadata, error) {
	src := p.source
	corr := CorrelationFrom(ctx)
	src.CorrelationID = corr.CorrelationID
	src.CausationID = corr.CausationID
	src.RootEventID = corr.RootEventID

	trace := TraceFrom(ctx)
	trace.CorrelationID = corr.CorrelationID

	return event.Metadata{
		Source: src,
		Actor:  ActorFrom(ctx),
		Trace:  trace,
		Schema: p.schemaFor(payload),
		Tags:   p.tags(ctx),
	}, nil
}

func (p *Provider) tags(ctx context.Context) map[string]string {
	all := TagsFrom(ctx)
	out := make(map[string]string, len(p.tagKeys))
	for _, key := range p.tagKeys {
		if v, ok := all[key]; ok && v != "" {
			out[key] = v
		}
	}
	return out
}

// schemaFor resolves the payload schema, caching per concrete type.
func (p *Provider) schemaFor(payload event.Payload) event.Schema {
	t := reflect.TypeOf(payload)
	if cached, ok := p.schemaCache.Load(t); ok {
		return cached.(event.Schema)
	}

	var schema event.Schema
	if sp, ok := payload.(SchemaProvider); ok {
		schema = sp.EventSchema()
	}
	if schema.Name == "" {
		rt := t
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		schema.Name = rt.Name()
	}
	if schema.Version < 1 {
		schema.Version = 1
	}

	p.schemaCache.Store(t, schema)
	return schema
}
