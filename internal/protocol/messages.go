package protocol

import (
	"encoding/json"
	"errors"

	"secure_messenger/internal/key_exchange"
)

// Type tags an envelope's payload.
type Type string

const (
	TypeJoin             Type = "JOIN"
	TypeJoinRoom         Type = "JOIN_ROOM"
	TypeUserList         Type = "USER_LIST"
	TypeSystemMessage    Type = "SYSTEM_MESSAGE"
	TypeOffer            Type = "OFFER"
	TypeAnswer           Type = "ANSWER"
	TypeCandidate        Type = "CANDIDATE"
	TypeEncryptedMessage Type = "ENCRYPTED_MESSAGE"
	TypeTyping           Type = "TYPING"
)

// StatusOnline is the only presence status the relay reports.
const StatusOnline = "online"

// Payload is implemented by every message body. The set is closed.
type Payload interface {
	Type() Type
}

// Relayed payloads carry a sender id that the relay overwrites.
type Relayed interface {
	Payload
	Sender() string
	SetSender(id string)
}

// Join announces a client's identity.
type Join struct {
	Username  string          `json:"username"`
	Avatar    string          `json:"avatar"`
	PublicKey json.RawMessage `json:"publicKey"`
}

func (*Join) Type() Type { return TypeJoin }

// JoinRoom moves the sender to another room.
type JoinRoom struct {
	RoomName string `json:"roomName"`
}

func (*JoinRoom) Type() Type { return TypeJoinRoom }

// Member is one roster row.
type Member struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Avatar    string          `json:"avatar"`
	PublicKey json.RawMessage `json:"publicKey"`
	Room      string          `json:"room"`
	Status    string          `json:"status"`
}

// UserList is the roster of one room.
type UserList struct {
	Members []Member
}

func (*UserList) Type() Type { return TypeUserList }

func (u *UserList) MarshalJSON() ([]byte, error) {
	members := u.Members
	if members == nil {
		members = []Member{}
	}
	return json.Marshal(members)
}

func (u *UserList) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &u.Members)
}

// SystemMessage is a server notice shown to a room.
type SystemMessage struct {
	Text string `json:"text"`
}

func (*SystemMessage) Type() Type { return TypeSystemMessage }

// EncryptedMessage carries ciphertext the relay cannot read. Body is kept
// as the sender wrote it so the relay forwards it without re-encoding.
type EncryptedMessage struct {
	From string
	Body json.RawMessage
}

// NewEncryptedMessage wraps a sealed body for sending.
func NewEncryptedMessage(body key_exchange.EncryptedBody) (*EncryptedMessage, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &EncryptedMessage{Body: raw}, nil
}

func (*EncryptedMessage) Type() Type { return TypeEncryptedMessage }
func (m *EncryptedMessage) Sender() string { return m.From }
func (m *EncryptedMessage) SetSender(id string) { m.From = id }

// Sealed decodes the body into its iv and ciphertext.
func (m *EncryptedMessage) Sealed() (key_exchange.EncryptedBody, error) {
	var body key_exchange.EncryptedBody
	if len(m.Body) == 0 {
		return body, errors.New("missing body")
	}
	if err := json.Unmarshal(m.Body, &body); err != nil {
		return body, err
	}
	return body, nil
}

func (m *EncryptedMessage) validate() error {
	_, err := m.Sealed()
	return err
}

func (m *EncryptedMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		From string          `json:"from,omitempty"`
		Body json.RawMessage `json:"body"`
	}{From: m.From, Body: m.Body})
}

func (m *EncryptedMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		From json.RawMessage `json:"from"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.From = claimedSender(wire.From)
	m.Body = wire.Body
	return nil
}

// Typing is an ephemeral typing indicator.
type Typing struct {
	From     string
	IsTyping bool
}

func (*Typing) Type() Type { return TypeTyping }
func (t *Typing) Sender() string { return t.From }
func (t *Typing) SetSender(id string) { t.From = id }

func (t *Typing) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		From     string `json:"from,omitempty"`
		IsTyping bool   `json:"isTyping"`
	}{From: t.From, IsTyping: t.IsTyping})
}

func (t *Typing) UnmarshalJSON(data []byte) error {
	var wire struct {
		From     json.RawMessage `json:"from"`
		IsTyping bool            `json:"isTyping"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.From = claimedSender(wire.From)
	t.IsTyping = wire.IsTyping
	return nil
}

// claimedSender returns the client's "from" claim when it is a string.
// Any other shape is discarded, the relay overwrites it anyway.
func claimedSender(raw json.RawMessage) string {
	var from string
	if len(raw) == 0 || json.Unmarshal(raw, &from) != nil {
		return ""
	}
	return from
}

// Signal is an OFFER, ANSWER or CANDIDATE body. Its fields are passed
// through untouched apart from "from".
type Signal struct {
	Kind   Type
	From   string
	Fields map[string]json.RawMessage
}

func (s *Signal) Type() Type { return s.Kind }
func (s *Signal) Sender() string { return s.From }
func (s *Signal) SetSender(id string) { s.From = id }

func (s *Signal) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Fields)+1)
	for k, v := range s.Fields {
		out[k] = v
	}
	delete(out, "from")
	if s.From != "" {
		from, err := json.Marshal(s.From)
		if err != nil {
			return nil, err
		}
		out["from"] = from
	}
	return json.Marshal(out)
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["from"]; ok {
		s.From = claimedSender(raw)
		delete(fields, "from")
	}
	s.Fields = fields
	return nil
}

// IsSignal reports whether t is one of the passthrough signalling types.
func IsSignal(t Type) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}
