package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyText_RoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	decoded, err := PubKeyFromString(pub.String())
	require.NoError(t, err)
	assert.True(t, pub.Equal(decoded))

	privDecoded, err := PrivKeyFromString(priv.String())
	require.NoError(t, err)
	assert.True(t, pub.Equal(privDecoded.Public()))
}

func TestPubKeyFromString_Invalid(t *testing.T) {
	_, err := PubKeyFromString("not-base58-0OIl")
	assert.Error(t, err)

	_, err = PubKeyFromString("3mJr7AoUXx2Wqd")
	assert.Error(t, err)

	assert.Panics(t, func() { MustPubKey("") })
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	_, other, err := GenerateKeyPair()
	require.NoError(t, err)

	sig := Sign(priv, []byte("redeem"))
	assert.NoError(t, Verify(pub, []byte("redeem"), sig))
	assert.Error(t, Verify(pub, []byte("redeem twice"), sig))
	assert.Error(t, Verify(other, []byte("redeem"), sig))
	assert.Error(t, Verify(pub, []byte("redeem"), "zz"))
}

func TestHashParts_Deterministic(t *testing.T) {
	a := HashParts([]byte("coupon"), []byte{1})
	b := HashParts([]byte("coupon"), []byte{1})
	assert.Equal(t, a, b)
	assert.Len(t, Hash([]byte("x")), 64)
}
