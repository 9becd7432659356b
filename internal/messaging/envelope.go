package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/sumitak/ms-kafka-saga-dp/pkg/kafka"
)

// ErrMalformed marks a message that can never be processed. It wraps
// kafka.ErrPermanent so the consumer group routes such messages to the
// dead-letter topic instead of retrying them.
var ErrMalformed = fmt.Errorf("%w: malformed message", kafka.ErrPermanent)

// Envelope is the wire format shared by all topics: a type discriminator
// plus the raw payload. Payloads only ever gain optional fields, the
// envelope itself never changes shape.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	return json.Marshal(Envelope{Event: event, Payload: raw})
}

func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformed)
	}

	return &env, nil
}

// Unmarshal decodes the payload into the typed message for the envelope's
// event type.
func (e *Envelope) Unmarshal(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Event, err)
	}

	return nil
}
