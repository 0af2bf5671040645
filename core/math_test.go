package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformFee(t *testing.T) {
	cases := []struct {
		price, fee, seller uint64
	}{
		{50_000_000, 1_250_000, 48_750_000},
		{1, 0, 1},
		{39, 0, 39},
		{40, 1, 39},
		{10_000, 250, 9_750},
		{math.MaxUint64, 461168601842738790, math.MaxUint64 - 461168601842738790},
	}
	for _, tc := range cases {
		fee, seller, err := PlatformFee(tc.price, 250)
		require.NoError(t, err)
		assert.Equal(t, tc.fee, fee, "price %d", tc.price)
		assert.Equal(t, tc.seller, seller, "price %d", tc.price)
		assert.Equal(t, tc.price, fee+seller)
	}
}

func TestAccruedRewards(t *testing.T) {
	got, err := AccruedRewards(172_800, 100_000)
	require.NoError(t, err)
	assert.EqualValues(t, 200_000, got)

	got, err = AccruedRewards(SecondsPerDay-1, 100_000)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = AccruedRewards(SecondsPerDay+SecondsPerDay/2, 100_000)
	require.NoError(t, err)
	assert.EqualValues(t, 100_000, got)

	_, err = AccruedRewards(2*SecondsPerDay, 1<<63)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	got, err = AccruedRewards(0, 100_000)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = AccruedRewards(-5, 100_000)
	require.NoError(t, err)
	assert.Zero(t, got)

	// The product exceeds 64 bits but the quotient fits.
	got, err = AccruedRewards(math.MaxInt64, SecondsPerDay)
	require.NoError(t, err)
	assert.EqualValues(t, math.MaxInt64, got)

	_, err = AccruedRewards(math.MaxInt64, math.MaxUint64)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	sum, err := CheckedAdd(2, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, sum)

	_, err = CheckedSub(1, 2)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = MulDiv(1, 1, 0)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestRentExemptMinimum(t *testing.T) {
	assert.EqualValues(t, (128+100)*3480*2, RentExemptMinimum(100))
	assert.Greater(t, RentExemptMinimum(DealSpace), RentExemptMinimum(CouponSpace))
}
