package client

import (
	"encoding/json"

	"secure_messenger/internal/key_exchange"
	"secure_messenger/internal/protocol"
)

// Event is something the read loop observed. The set is closed.
type Event interface {
	isEvent()
}

// RosterUpdated carries the current room roster.
type RosterUpdated struct {
	Members []protocol.Member
	Self    protocol.Member
}

// SystemNotice is a relay notice such as a join or leave.
type SystemNotice struct {
	Text string
}

// MessageReceived is a decrypted message. Messages that fail to decrypt
// never become events.
type MessageReceived struct {
	From     string
	Username string
	Content  key_exchange.MessageContent
}

type TypingChanged struct {
	From     string
	IsTyping bool
}

// SignalReceived carries an OFFER, ANSWER or CANDIDATE untouched.
type SignalReceived struct {
	Kind   protocol.Type
	From   string
	Fields map[string]json.RawMessage
}

func (RosterUpdated) isEvent()   {}
func (SystemNotice) isEvent()    {}
func (MessageReceived) isEvent() {}
func (TypingChanged) isEvent()   {}
func (SignalReceived) isEvent()  {}
