package key_exchange

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/go-jose/go-jose/v4"
)

// Curve is the only curve peers agree on. It is not negotiated.
var Curve = ecdh.P256()

// KeyPair is a client's identity key pair. It lives for one client session.
type KeyPair struct {
	PublicKey  *ecdh.PublicKey
	PrivateKey *ecdh.PrivateKey
}

// GenerateKeyPair generates an ECDH key pair using P-256 curve (to match browser clients)
func GenerateKeyPair() (KeyPair, error) {
	priv, err := Curve.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return KeyPair{PublicKey: priv.PublicKey(), PrivateKey: priv}, nil
}

// ExportPublicKey encodes pub as a JSON Web Key suitable for JOIN and roster payloads.
func ExportPublicKey(pub *ecdh.PublicKey) (json.RawMessage, error) {
	if pub == nil || pub.Curve() != Curve {
		return nil, fmt.Errorf("%w: public key is not on P-256", ErrKeyFormat)
	}

	// P-256 uncompressed point encoding: 0x04 || X(32) || Y(32)
	encoded := pub.Bytes()
	if len(encoded) != 65 || encoded[0] != 4 {
		return nil, fmt.Errorf("%w: unexpected public key encoding: len=%d", ErrKeyFormat, len(encoded))
	}

	jwk := jose.JSONWebKey{
		Key: &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(encoded[1:33]),
			Y:     new(big.Int).SetBytes(encoded[33:65]),
		},
	}
	out, err := jwk.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jwk: %w", err)
	}
	return out, nil
}

// ImportPublicKey parses a peer's JWK. Anything other than a public P-256
// key fails with ErrKeyFormat.
func ImportPublicKey(material []byte) (*ecdh.PublicKey, error) {
	if len(material) == 0 {
		return nil, fmt.Errorf("%w: empty key material", ErrKeyFormat)
	}

	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(material); err != nil {
		return nil, fmt.Errorf("%w: failed to parse jwk: %v", ErrKeyFormat, err)
	}
	if !jwk.IsPublic() {
		return nil, fmt.Errorf("%w: jwk is not a public key", ErrKeyFormat)
	}

	switch k := jwk.Key.(type) {
	case *ecdh.PublicKey:
		if k.Curve() != Curve {
			return nil, fmt.Errorf("%w: unsupported curve", ErrKeyFormat)
		}
		return k, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: unsupported curve: %s", ErrKeyFormat, k.Curve.Params().Name)
		}
		pub, err := k.ECDH()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to build ecdh public key: %v", ErrKeyFormat, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unsupported key type: %T", ErrKeyFormat, jwk.Key)
	}
}

// SamePublicKey reports whether two JWK documents carry the same key.
func SamePublicKey(a, b []byte) bool {
	ka, err := ImportPublicKey(a)
	if err != nil {
		return false
	}
	kb, err := ImportPublicKey(b)
	if err != nil {
		return false
	}
	return ka.Equal(kb)
}
