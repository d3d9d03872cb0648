package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned for frames that are not valid envelopes.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownType is returned for envelopes with an unrecognised type tag.
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope is the routed outer structure of every frame.
type Envelope struct {
	To      string
	Payload Payload
}

// Type returns the payload's tag.
func (e Envelope) Type() Type {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

type wireEnvelope struct {
	Type    Type            `json:"type"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a text frame into an Envelope with a typed payload.
func Decode(frame []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(frame, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if wire.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	var payload Payload
	switch wire.Type {
	case TypeJoin:
		payload = &Join{}
	case TypeJoinRoom:
		payload = &JoinRoom{}
	case TypeUserList:
		payload = &UserList{}
	case TypeSystemMessage:
		payload = &SystemMessage{}
	case TypeEncryptedMessage:
		payload = &EncryptedMessage{}
	case TypeTyping:
		payload = &Typing{}
	case TypeOffer, TypeAnswer, TypeCandidate:
		payload = &Signal{Kind: wire.Type}
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, wire.Type)
	}

	raw := bytes.TrimSpace(wire.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: %s without payload", ErrMalformedFrame, wire.Type)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, wire.Type, err)
	}
	if v, ok := payload.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return Envelope{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, wire.Type, err)
		}
	}

	return Envelope{To: wire.To, Payload: payload}, nil
}

// Encode serialises an envelope into a text frame.
func Encode(env Envelope) ([]byte, error) {
	if env.Payload == nil {
		return nil, fmt.Errorf("encode envelope: nil payload")
	}
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", env.Payload.Type(), err)
	}
	return json.Marshal(wireEnvelope{
		Type:    env.Payload.Type(),
		To:      env.To,
		Payload: payload,
	})
}
