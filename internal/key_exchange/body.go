package key_exchange

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncryptedBody is a single-use AES-GCM output. Both fields travel as
// standard base64 strings.
type EncryptedBody struct {
	IV         []byte
	Ciphertext []byte
}

type encryptedBodyJSON struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext,omitempty"`
	// Data is the field name used by the browser client for the ciphertext.
	Data string `json:"data,omitempty"`
}

func (b EncryptedBody) MarshalJSON() ([]byte, error) {
	return json.Marshal(encryptedBodyJSON{
		IV:         base64.StdEncoding.EncodeToString(b.IV),
		Ciphertext: base64.StdEncoding.EncodeToString(b.Ciphertext),
	})
}

func (b *EncryptedBody) UnmarshalJSON(data []byte) error {
	var raw encryptedBodyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ciphertext := raw.Ciphertext
	if ciphertext == "" {
		ciphertext = raw.Data
	}
	if raw.IV == "" || ciphertext == "" {
		return fmt.Errorf("encrypted body requires iv and ciphertext")
	}

	iv, err := base64.StdEncoding.DecodeString(raw.IV)
	if err != nil {
		return fmt.Errorf("failed to decode iv: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	b.IV = iv
	b.Ciphertext = ct
	return nil
}
