// Package wire owns the default message codec for a link.
//
// Ownership boundary:
// - the JSON envelope shape exchanged with a relay
//
// - encode/decode seams injected into a link
//
// A link accepts any EncodeFunc/DecodeFunc pair; this package is the
// batteries-included default.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidEnvelope = errors.New("wire: invalid envelope")

// Envelope is one application message on the wire.
type Envelope struct {
	Type        string          `json:"type"`
	ID          string          `json:"id,omitempty"`
	TimestampMS uint64          `json:"timestamp_ms,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}
	return nil
}

// NewEnvelope builds a stamped envelope around payload. A nil payload
// produces an envelope with no payload field.
func NewEnvelope(kind string, payload any) (Envelope, error) {
	env := Envelope{
		Type:        kind,
		ID:          uuid.NewString(),
		TimestampMS: uint64(time.Now().UnixMilli()),
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("wire: marshal payload: %w", err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Encode serializes one outbound message. Envelopes are validated before
// marshal; any other value is marshaled as-is.
func Encode(v any) ([]byte, error) {
	if env, ok := v.(Envelope); ok {
		if err := env.Validate(); err != nil {
			return nil, err
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return data, nil
}

// Decode parses one inbound unit into an Envelope.
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}
