// Package transform provides the pluggable envelope pipeline applied before
// an envelope is written to the outbox or sent directly: pure functions from
// envelope to envelope, composed in configuration order, followed by a codec.
package transform

import (
	"encoding/json"
	"fmt"

	"example.com/eventrelay/internal/event"
)

// Transformer rewrites an envelope, returning a copy. Implementations must
// not mutate their input.
type Transformer interface {
	Transform(env *event.Envelope) (*event.Envelope, error)
}

// Chain applies transformers left to right.
type Chain []Transformer

// Apply runs the chain. An empty chain returns env unchanged.
func (c Chain) Apply(env *event.Envelope) (*event.Envelope, error) {
	out := env
	for i, t := range c {
		next, err := t.Transform(out)
		if err != nil {
			return nil, fmt.Errorf("transform: step %d: %w", i, err)
		}
		out = next
	}
	return out, nil
}

// Codec serializes envelopes for the outbox payload column and the broker
// record value.
type Codec interface {
	Encode(env *event.Envelope) ([]byte, error)
	Decode(data []byte) (*event.Envelope, error)
}

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Encode(env *event.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transform: encode envelope %s: %w", env.EventID, err)
	}
	return data, nil
}

// Decode unmarshals a serialized envelope. The payload comes back as the
// generic JSON representation, not the original Go type.
func (JSONCodec) Decode(data []byte) (*event.Envelope, error) {
	var env event.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("transform: decode envelope: %w", err)
	}
	return &env, nil
}
