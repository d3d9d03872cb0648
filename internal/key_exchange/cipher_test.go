package key_exchange

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintexts := [][]byte{
		{},
		[]byte("hi"),
		[]byte(`{"text":"hi","ttl":0}`),
		bytes.Repeat([]byte{0xff}, 4096),
	}
	for _, p := range plaintexts {
		body, err := Encrypt(key, p)
		require.NoError(t, err)
		require.Len(t, body.IV, NonceSize)

		got, err := Decrypt(key, body)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(p, got))
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key := testKey(t)
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		body, err := Encrypt(key, []byte("same plaintext"))
		require.NoError(t, err)
		require.False(t, seen[string(body.IV)], "nonce reused")
		seen[string(body.IV)] = true
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	key := testKey(t)
	body, err := Encrypt(key, []byte("attack at dawn"))
	require.NoError(t, err)

	for i := 0; i < len(body.Ciphertext)*8; i++ {
		tampered := EncryptedBody{IV: body.IV, Ciphertext: bytes.Clone(body.Ciphertext)}
		tampered.Ciphertext[i/8] ^= 1 << (i % 8)
		got, err := Decrypt(key, tampered)
		require.ErrorIs(t, err, ErrDecryption)
		require.Nil(t, got)
	}

	for i := 0; i < len(body.IV)*8; i++ {
		tampered := EncryptedBody{IV: bytes.Clone(body.IV), Ciphertext: body.Ciphertext}
		tampered.IV[i/8] ^= 1 << (i % 8)
		got, err := Decrypt(key, tampered)
		require.ErrorIs(t, err, ErrDecryption)
		require.Nil(t, got)
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	key := testKey(t)
	body, err := Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(testKey(t), body)
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = Decrypt(key, EncryptedBody{IV: body.IV[:8], Ciphertext: body.Ciphertext})
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = Decrypt(key, EncryptedBody{IV: body.IV, Ciphertext: body.Ciphertext[:4]})
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = Decrypt([]byte("short"), body)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestEncryptedBodyJSON(t *testing.T) {
	key := testKey(t)
	body, err := Encrypt(key, []byte("hello"))
	require.NoError(t, err)

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(encoded, &fields))
	assert.Contains(t, fields, "iv")
	assert.Contains(t, fields, "ciphertext")

	var decoded EncryptedBody
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	got, err := Decrypt(key, decoded)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestEncryptedBodyAcceptsDataField(t *testing.T) {
	var body EncryptedBody
	err := json.Unmarshal([]byte(`{"iv":"AAAAAAAAAAAAAAAA","data":"AQID"}`), &body)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, body.Ciphertext)
	assert.Len(t, body.IV, NonceSize)
}

func TestEncryptedBodyRejectsIncomplete(t *testing.T) {
	var body EncryptedBody
	assert.Error(t, json.Unmarshal([]byte(`{"iv":"AAAA"}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"iv":"***","ciphertext":"AQID"}`), &body))
}
