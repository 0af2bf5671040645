package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58/base58"
)

// PublicKeySize is the length of an account address in bytes.
const PublicKeySize = ed25519.PublicKeySize

// PrivateKey wraps ed25519 private key bytes.
type PrivateKey []byte

// PublicKey wraps ed25519 public key bytes. Program-derived addresses share
// this type even though no private key exists for them.
type PublicKey []byte

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// String returns the base58 text form used everywhere as an address.
func (pub PublicKey) String() string {
	return base58.Encode(pub)
}

// Equal reports whether two keys hold the same bytes.
func (pub PublicKey) Equal(other PublicKey) bool {
	return ed25519.PublicKey(pub).Equal(ed25519.PublicKey(other))
}

// String returns the base58-encoded 64-byte keypair (seed || pubkey).
func (priv PrivateKey) String() string {
	return base58.Encode(priv)
}

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PubKeyFromString decodes a base58 address.
func PubKeyFromString(s string) (PublicKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("address must be %d bytes, got %d", PublicKeySize, len(b))
	}
	return PublicKey(b), nil
}

// MustPubKey decodes s and panics on failure. Intended for constants.
func MustPubKey(s string) PublicKey {
	pub, err := PubKeyFromString(s)
	if err != nil {
		panic(err)
	}
	return pub
}

// PrivKeyFromString decodes a base58 keypair.
func PrivKeyFromString(s string) (PrivateKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return PrivateKey(b), nil
}
