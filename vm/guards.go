package vm

import (
	"github.com/tolelom/dealchain/core"
)

// Staked reports whether a StakedCoupon exists for coupon.
func (c *Context) Staked(coupon string) (bool, error) {
	addr, _, err := core.FindStakedCouponAddress(c.Params.ProgramID, coupon)
	if err != nil {
		return false, err
	}
	_, err = c.State.GetStakedCoupon(addr)
	return Exists(err)
}

// Listed reports whether coupon has an active listing.
func (c *Context) Listed(coupon string) (bool, error) {
	addr, _, err := core.FindListingAddress(c.Params.ProgramID, coupon)
	if err != nil {
		return false, err
	}
	l, err := c.State.GetListing(addr)
	if ok, err := Exists(err); !ok || err != nil {
		return false, err
	}
	return l.IsActive, nil
}

// RequireIdle fails with ErrCouponStaked or ErrCouponListed when coupon is
// locked by the staking pool or the marketplace.
func (c *Context) RequireIdle(coupon string) error {
	staked, err := c.Staked(coupon)
	if err != nil {
		return err
	}
	if staked {
		return core.ErrCouponStaked
	}
	listed, err := c.Listed(coupon)
	if err != nil {
		return err
	}
	if listed {
		return core.ErrCouponListed
	}
	return nil
}
