package transform

import (
	"encoding/json"
	"fmt"

	"example.com/eventrelay/internal/event"
)

const maskedValue = "***"

// fieldMasker replaces the named payload fields with a fixed mask before
// serialization. Field names match at any nesting depth.
type fieldMasker struct {
	fields map[string]struct{}
}

// MaskFields returns a Transformer that masks the given payload field names.
func MaskFields(fields ...string) Transformer {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return &fieldMasker{fields: set}
}

func (m *fieldMasker) Transform(env *event.Envelope) (*event.Envelope, error) {
	if len(m.fields) == 0 || env.Payload == nil {
		return env, nil
	}

	// Round-trip through JSON so struct payloads and map payloads mask the
	// same way.
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("mask payload of %s: %w", env.EventID, err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("mask payload of %s: %w", env.EventID, err)
	}

	out := *env
	out.Payload = m.maskValue(generic)
	return &out, nil
}

func (m *fieldMasker) maskValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if _, hit := m.fields[k]; hit {
				val[k] = maskedValue
				continue
			}
			val[k] = m.maskValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = m.maskValue(inner)
		}
		return val
	default:
		return v
	}
}
