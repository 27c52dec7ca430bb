package event

import "fmt"

// ValidationError reports a structurally invalid envelope. It is always
// surfaced to the caller, never logged and swallowed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event: invalid envelope: %s", e.Reason)
}

// Validator checks envelopes before they are persisted or sent. Checks are
// structural only; business-level validation is the caller's responsibility.
type Validator interface {
	Validate(env *Envelope) error
}

type structuralValidator struct{}

// NewValidator returns the default structural validator.
func NewValidator() Validator { return structuralValidator{} }

func (structuralValidator) Validate(env *Envelope) error {
	switch {
	case env == nil:
		return &ValidationError{Reason: "envelope is nil"}
	case env.EventID == "":
		return &ValidationError{Reason: "event id is empty"}
	case env.EventType == "":
		return &ValidationError{Reason: "event type is empty"}
	case !env.Severity.Valid():
		return &ValidationError{Reason: fmt.Sprintf("unknown severity %q", env.Severity)}
	case env.Payload == nil:
		return &ValidationError{Reason: "payload is nil"}
	case env.Metadata.Source.Service == "":
		return &ValidationError{Reason: "metadata source service is empty"}
	case env.Metadata.Schema.Version < 1:
		return &ValidationError{Reason: "metadata schema version must be >= 1"}
	case env.OccurredAt.IsZero():
		return &ValidationError{Reason: "occurredAt is zero"}
	case env.PublishedAt.IsZero():
		return &ValidationError{Reason: "publishedAt is zero"}
	case env.OccurredAt.After(env.PublishedAt):
		return &ValidationError{Reason: "occurredAt is after publishedAt"}
	}

	if p, ok := env.Payload.(Payload); ok && p.EventType() != env.EventType {
		return &ValidationError{Reason: fmt.Sprintf("payload reports event type %q, envelope carries %q", p.EventType(), env.EventType)}
	}
	return nil
}
