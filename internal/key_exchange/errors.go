package key_exchange

import "errors"

var (
	// ErrKeyFormat is returned for malformed or unsupported public key material.
	ErrKeyFormat = errors.New("key format error")
	// ErrKeyAgreement is returned when ECDH cannot be performed between two keys.
	ErrKeyAgreement = errors.New("key agreement error")
	// ErrDecryption covers every authenticated decryption failure. Callers
	// drop the message; no partial plaintext is ever returned.
	ErrDecryption = errors.New("decryption failure")
)
