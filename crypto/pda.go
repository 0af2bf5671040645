package crypto

import (
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	// MaxSeeds is the number of seeds a single address derivation accepts,
	// bump included.
	MaxSeeds = 16
	// MaxSeedLength bounds every individual seed.
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrOnCurve               = errors.New("derived address lies on the ed25519 curve")
	ErrNoViableBump          = errors.New("unable to find a viable bump seed")
)

// CreateProgramAddress hashes seeds, the program id and a fixed marker into a
// 32-byte address. Addresses that decode as a valid curve point are rejected
// with ErrOnCurve so that no private key can ever sign for them.
func CreateProgramAddress(program PublicKey, seeds ...[]byte) (PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return nil, ErrTooManySeeds
	}

	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}
		if _, err := h.Write(s); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}
	for _, v := range [][]byte{program, []byte(pdaMarker)} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	var pub [32]byte
	copy(pub[:], h.Sum(nil))

	// x/crypto keeps its edwards25519 point type internal, so the off-curve
	// test goes through the jdgcs fork.
	var A edwards25519.ExtendedGroupElement
	if A.FromBytes(&pub) {
		return nil, ErrOnCurve
	}
	return pub[:], nil
}

// FindProgramAddress walks the bump seed down from 255 and returns the first
// off-curve address together with the bump that produced it.
func FindProgramAddress(program PublicKey, seeds ...[]byte) (PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return nil, 0, ErrTooManySeeds
	}
	bump := []byte{math.MaxUint8}
	withBump := append(append(make([][]byte, 0, len(seeds)+1), seeds...), bump)
	for i := 0; i < math.MaxUint8; i++ {
		pub, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return pub, bump[0], nil
		}
		if err != ErrOnCurve {
			return nil, 0, err
		}
		bump[0]--
	}
	return nil, 0, ErrNoViableBump
}

// IsOnCurve reports whether pub decodes as an ed25519 point, i.e. whether it
// can belong to a wallet rather than a program-derived address.
func IsOnCurve(pub PublicKey) bool {
	if len(pub) != PublicKeySize {
		return false
	}
	var b [32]byte
	copy(b[:], pub)
	var A edwards25519.ExtendedGroupElement
	return A.FromBytes(&b)
}
