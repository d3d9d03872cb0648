package key_exchange

import (
	"crypto/ecdh"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of derived AES-256-GCM keys.
const KeySize = 32

// hkdfInfo binds derived keys to this protocol. Both peers use the same
// label and no salt, so the derivation stays symmetric.
const hkdfInfo = "secure-messenger/v1/aes-256-gcm"

// DeriveSharedKey runs ECDH between the local private key and the peer's
// public key and feeds the agreed secret through HKDF-SHA256.
// DeriveSharedKey(a.priv, b.pub) == DeriveSharedKey(b.priv, a.pub).
func DeriveSharedKey(local *ecdh.PrivateKey, remote *ecdh.PublicKey) ([]byte, error) {
	if local == nil || remote == nil {
		return nil, fmt.Errorf("%w: missing key", ErrKeyAgreement)
	}
	if local.Curve() != remote.Curve() {
		return nil, fmt.Errorf("%w: curve mismatch", ErrKeyAgreement)
	}

	secret, err := local.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyAgreement, err)
	}

	return HKDFDeriveKey(secret, nil, hkdfInfo)
}

// HKDFDeriveKey expands sharedSecret into a KeySize key.
func HKDFDeriveKey(sharedSecret, salt []byte, info string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, sharedSecret, salt, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}
