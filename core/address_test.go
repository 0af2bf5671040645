package core

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/crypto"
)

var testProgram = crypto.MustPubKey("9KXygjHvLprtTUJjd2wtK7WZXTRfNpUwEQy8pnivQPVF")

func TestFindDealAddress(t *testing.T) {
	merchant := newAddr(t)

	a, bump, err := FindDealAddress(testProgram, merchant, "Half price pizza")
	require.NoError(t, err)
	b, bump2, err := FindDealAddress(testProgram, merchant, "Half price pizza")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, bump, bump2)

	// The stored bump reproduces the address.
	pub, err := crypto.CreateProgramAddress(testProgram,
		[]byte(SeedDeal), crypto.MustPubKey(merchant), []byte("Half price pizza"), []byte{bump})
	require.NoError(t, err)
	assert.Equal(t, a, pub.String())

	other, _, err := FindDealAddress(testProgram, merchant, "Half price pasta")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	_, _, err = FindDealAddress(testProgram, merchant, strings.Repeat("x", MaxTitleLen+1))
	assert.ErrorIs(t, err, ErrStringTooLong)

	_, _, err = FindDealAddress(testProgram, "bogus", "title")
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestFindCouponAddress_IndexSeed(t *testing.T) {
	deal := newAddr(t)
	first, bump, err := FindCouponAddress(testProgram, deal, 0)
	require.NoError(t, err)
	second, _, err := FindCouponAddress(testProgram, deal, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], 0)
	pub, err := crypto.CreateProgramAddress(testProgram, []byte(SeedCoupon), crypto.MustPubKey(deal), idx[:], []byte{bump})
	require.NoError(t, err)
	assert.Equal(t, first, pub.String())
}

func TestFindAddresses_DistinctPerKind(t *testing.T) {
	coupon := newAddr(t)
	user := newAddr(t)

	pool, _, err := FindRewardsPoolAddress(testProgram)
	require.NoError(t, err)
	mint, _, err := FindCouponMintAddress(testProgram, coupon)
	require.NoError(t, err)
	listing, _, err := FindListingAddress(testProgram, coupon)
	require.NoError(t, err)
	staked, _, err := FindStakedCouponAddress(testProgram, coupon)
	require.NoError(t, err)
	rating, _, err := FindRatingAddress(testProgram, coupon, user)
	require.NoError(t, err)
	c1, _, err := FindCommentAddress(testProgram, coupon, user, 100)
	require.NoError(t, err)
	c2, _, err := FindCommentAddress(testProgram, coupon, user, 101)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, a := range []string{pool, mint, listing, staked, rating, c1, c2} {
		assert.False(t, seen[a], "duplicate address %s", a)
		seen[a] = true
		assert.False(t, crypto.IsOnCurve(crypto.MustPubKey(a)))
	}
}
