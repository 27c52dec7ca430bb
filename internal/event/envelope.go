// Package event defines the immutable envelope that wraps every business
// payload with identity, timing, and context metadata.
package event

import "time"

// Severity classifies the business impact of an event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarn, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Payload is implemented by every business payload; it self-reports the
// business event name carried in the envelope.
type Payload interface {
	EventType() string
}

// Actor identifies who triggered the event.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	IP   string `json:"ip"`
}

// Source describes the producing process and the event's causal chain.
type Source struct {
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	InstanceID    string `json:"instance_id"`
	Host          string `json:"host"`
	Version       string `json:"version"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
	RootEventID   string `json:"root_event_id,omitempty"`
}

// Trace carries distributed-tracing identifiers captured at publish time.
type Trace struct {
	TraceID       string `json:"trace_id"`
	SpanID        string `json:"span_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Schema names the payload contract version.
type Schema struct {
	Name     string `json:"name"`
	Version  int    `json:"version"`
	SchemaID string `json:"schema_id,omitempty"`
}

// Metadata is the per-event context captured when the envelope is assembled.
type Metadata struct {
	Source Source            `json:"source"`
	Actor  Actor             `json:"actor"`
	Trace  Trace             `json:"trace"`
	Schema Schema            `json:"schema"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Clone returns a copy of m with the tag map defensively copied.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = make(map[string]string, len(m.Tags))
		for k, v := range m.Tags {
			out.Tags[k] = v
		}
	}
	return out
}

// Envelope wraps one business payload. Envelopes are assembled by the Factory
// and treated as immutable afterwards; transformers return copies.
type Envelope struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Severity    Severity  `json:"severity"`
	Metadata    Metadata  `json:"metadata"`
	Payload     any       `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`
	PublishedAt time.Time `json:"published_at"`
}
