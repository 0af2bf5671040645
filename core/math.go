package core

import "github.com/holiman/uint256"

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return sum.Uint64(), nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// MulDiv returns floor(a*b/d) computed in 256 bits, so the product never
// wraps. A zero divisor or a quotient above 2^64-1 is an overflow.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrArithmeticOverflow
	}
	q := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	q.Div(q, uint256.NewInt(d))
	if !q.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return q.Uint64(), nil
}

// PlatformFee splits a sale price into the platform fee (floor of
// price*bps/10000) and the seller's share.
func PlatformFee(price, bps uint64) (fee, sellerAmount uint64, err error) {
	fee, err = MulDiv(price, bps, 10_000)
	if err != nil {
		return 0, 0, err
	}
	sellerAmount, err = CheckedSub(price, fee)
	return fee, sellerAmount, err
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	p, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !p.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return p.Uint64(), nil
}

// AccruedRewards pays ratePerDay for every whole day in elapsed seconds.
// A partial day accrues nothing.
func AccruedRewards(elapsed int64, ratePerDay uint64) (uint64, error) {
	if elapsed <= 0 {
		return 0, nil
	}
	return CheckedMul(uint64(elapsed)/SecondsPerDay, ratePerDay)
}

// SecondsPerDay is the reward accrual period.
const SecondsPerDay = 86_400
