package key_exchange

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// NonceSize is the AES-GCM nonce length in bytes (96 bits).
const NonceSize = 12

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(key []byte, plaintext []byte) (EncryptedBody, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return EncryptedBody{}, err
	}

	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return EncryptedBody{}, fmt.Errorf("failed to create iv: %w", err)
	}

	return EncryptedBody{
		IV:         iv,
		Ciphertext: gcm.Seal(nil, iv, plaintext, nil),
	}, nil
}

// Decrypt opens body under key. Every failure is reported as ErrDecryption.
func Decrypt(key []byte, body EncryptedBody) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(body.IV) != NonceSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, NonceSize, len(body.IV))
	}
	if len(body.Ciphertext) < gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	plaintext, err := gcm.Open(nil, body.IV, body.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}
