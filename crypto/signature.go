package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58/base58"
)

// Sign signs data with the private key and returns a base58 signature.
func Sign(priv PrivateKey, data []byte) string {
	sig := ed25519.Sign(ed25519.PrivateKey(priv), data)
	return base58.Encode(sig)
}

// Verify checks a base58 signature against data using the public key.
func Verify(pub PublicKey, data []byte, sig string) error {
	raw, err := base58.Decode(sig)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(raw))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, raw) {
		return errors.New("signature verification failed")
	}
	return nil
}
