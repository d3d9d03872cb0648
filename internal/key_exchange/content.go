package key_exchange

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// MessageContent is the plaintext record carried inside an EncryptedBody.
// TTL is in milliseconds; zero means the message does not expire. It is a
// display hint for the receiving UI only: nothing deletes anything.
type MessageContent struct {
	Text string `json:"text"`
	TTL  int64  `json:"ttl"`
}

// Expires reports whether the sender asked for the message to be hidden.
func (m MessageContent) Expires() bool {
	return m.TTL > 0
}

// Lifetime returns TTL as a duration.
func (m MessageContent) Lifetime() time.Duration {
	return time.Duration(m.TTL) * time.Millisecond
}

// SealContent encodes content as JSON and encrypts it.
func SealContent(key []byte, content MessageContent) (EncryptedBody, error) {
	if content.TTL < 0 {
		return EncryptedBody{}, fmt.Errorf("ttl must not be negative: %d", content.TTL)
	}
	plaintext, err := json.Marshal(content)
	if err != nil {
		return EncryptedBody{}, fmt.Errorf("failed to marshal content: %w", err)
	}
	return Encrypt(key, plaintext)
}

// OpenContent decrypts body and decodes the content record.
//
// Compatibility: plaintext that is not a JSON object with a "text" field is
// returned verbatim as Text with TTL 0. Early clients sent bare strings.
func OpenContent(key []byte, body EncryptedBody) (MessageContent, error) {
	plaintext, err := Decrypt(key, body)
	if err != nil {
		return MessageContent{}, err
	}
	return ParseContent(plaintext), nil
}

// ParseContent applies the content decoding rules to decrypted bytes.
func ParseContent(plaintext []byte) MessageContent {
	var fields struct {
		Text *string         `json:"text"`
		TTL  json.RawMessage `json:"ttl"`
	}
	if err := json.Unmarshal(plaintext, &fields); err != nil || fields.Text == nil {
		return MessageContent{Text: string(plaintext)}
	}
	return MessageContent{Text: *fields.Text, TTL: parseTTL(fields.TTL)}
}

// parseTTL reads a ttl hint leniently. Fractions are truncated and anything
// that is not a positive number, or a string holding one, means no expiry.
func parseTTL(raw json.RawMessage) int64 {
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return 0
	}
	if ms, err := n.Int64(); err == nil {
		return max(ms, 0)
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}
