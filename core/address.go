package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tolelom/dealchain/crypto"
)

// Seed prefixes. The seed tuples below are the address contract shared with
// every client and indexer; changing one moves every account of that type.
//
//	rewards pool   "rewards_pool"
//	deal           "deal" | merchant (32) | title (raw UTF-8, <= 32 bytes)
//	coupon         "coupon" | deal (32) | u64 little-endian mint index
//	coupon mint    "coupon_mint" | coupon (32)
//	listing        "listing" | coupon (32)
//	staked coupon  "staked_coupon" | coupon (32)
//	rating         "rating" | deal (32) | user (32)
//	comment        "comment" | deal (32) | author (32) | i64 little-endian timestamp
//
// The bump is appended as a final one-byte seed.
const (
	SeedRewardsPool  = "rewards_pool"
	SeedDeal         = "deal"
	SeedCoupon       = "coupon"
	SeedCouponMint   = "coupon_mint"
	SeedListing      = "listing"
	SeedStakedCoupon = "staked_coupon"
	SeedRating       = "rating"
	SeedComment      = "comment"
)

func derive(program crypto.PublicKey, seeds ...[]byte) (string, uint8, error) {
	addr, bump, err := crypto.FindProgramAddress(program, seeds...)
	if err != nil {
		if errors.Is(err, crypto.ErrMaxSeedLengthExceeded) {
			return "", 0, fmt.Errorf("derive address: %w", ErrStringTooLong)
		}
		return "", 0, fmt.Errorf("derive address: %w", err)
	}
	return addr.String(), bump, nil
}

func keySeed(addr string) ([]byte, error) {
	pub, err := crypto.PubKeyFromString(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return pub, nil
}

// FindRewardsPoolAddress returns the singleton pool address.
func FindRewardsPoolAddress(program crypto.PublicKey) (string, uint8, error) {
	return derive(program, []byte(SeedRewardsPool))
}

// FindDealAddress returns the address of merchant's deal with the given title.
func FindDealAddress(program crypto.PublicKey, merchant, title string) (string, uint8, error) {
	m, err := keySeed(merchant)
	if err != nil {
		return "", 0, err
	}
	if len(title) > MaxTitleLen {
		return "", 0, fmt.Errorf("title is %d bytes: %w", len(title), ErrStringTooLong)
	}
	return derive(program, []byte(SeedDeal), m, []byte(title))
}

// FindCouponAddress returns the address of the index-th coupon minted from deal.
func FindCouponAddress(program crypto.PublicKey, deal string, index uint64) (string, uint8, error) {
	d, err := keySeed(deal)
	if err != nil {
		return "", 0, err
	}
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	return derive(program, []byte(SeedCoupon), d, idx[:])
}

// FindCouponMintAddress returns the token identity recorded for coupon.
func FindCouponMintAddress(program crypto.PublicKey, coupon string) (string, uint8, error) {
	c, err := keySeed(coupon)
	if err != nil {
		return "", 0, err
	}
	return derive(program, []byte(SeedCouponMint), c)
}

// FindListingAddress returns the listing address for coupon.
func FindListingAddress(program crypto.PublicKey, coupon string) (string, uint8, error) {
	c, err := keySeed(coupon)
	if err != nil {
		return "", 0, err
	}
	return derive(program, []byte(SeedListing), c)
}

// FindStakedCouponAddress returns the stake-position address for coupon.
func FindStakedCouponAddress(program crypto.PublicKey, coupon string) (string, uint8, error) {
	c, err := keySeed(coupon)
	if err != nil {
		return "", 0, err
	}
	return derive(program, []byte(SeedStakedCoupon), c)
}

// FindRatingAddress returns the address of user's rating of deal.
func FindRatingAddress(program crypto.PublicKey, deal, user string) (string, uint8, error) {
	d, err := keySeed(deal)
	if err != nil {
		return "", 0, err
	}
	u, err := keySeed(user)
	if err != nil {
		return "", 0, err
	}
	return derive(program, []byte(SeedRating), d, u)
}

// FindCommentAddress returns the address of author's comment on deal keyed
// by timestamp.
func FindCommentAddress(program crypto.PublicKey, deal, author string, timestamp int64) (string, uint8, error) {
	d, err := keySeed(deal)
	if err != nil {
		return "", 0, err
	}
	a, err := keySeed(author)
	if err != nil {
		return "", 0, err
	}
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(timestamp))
	return derive(program, []byte(SeedComment), d, a, ts[:])
}
