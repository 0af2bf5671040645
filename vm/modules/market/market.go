// Package market implements the secondary coupon marketplace. A coupon has
// at most one Listing account, created on first listing and reactivated on
// every later one.
package market

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/vm"
)

func init() {
	vm.Register(core.TxListCoupon, handleListCoupon)
	vm.Register(core.TxDelistCoupon, handleDelistCoupon)
	vm.Register(core.TxBuyCoupon, handleBuyCoupon)
}

func handleListCoupon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ListCouponPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode list_coupon payload: %w", err)
	}
	if p.PriceLamports == 0 {
		return core.ErrInvalidPrice
	}
	c, err := ctx.State.GetCoupon(p.Coupon)
	if err != nil {
		return vm.NotFound(err, "coupon", p.Coupon)
	}
	if c.IsRedeemed {
		return core.ErrAlreadyRedeemed
	}
	seller := ctx.Signer()
	if c.Owner != seller {
		return core.ErrNotOwner
	}
	staked, err := ctx.Staked(c.Address)
	if err != nil {
		return err
	}
	if staked {
		return core.ErrCouponStaked
	}

	addr, bump, err := core.FindListingAddress(ctx.Params.ProgramID, c.Address)
	if err != nil {
		return err
	}
	l, err := ctx.State.GetListing(addr)
	exists, err := vm.Exists(err)
	if err != nil {
		return err
	}
	if exists && l.IsActive {
		return core.ErrCouponListed
	}
	if !exists {
		if err := ctx.FundAccount(seller, addr, core.ListingSpace); err != nil {
			return err
		}
		l = &core.Listing{Address: addr, Coupon: c.Address, Bump: bump}
	}
	l.Seller = seller
	l.PriceLamports = p.PriceLamports
	l.IsActive = true
	l.CreatedAt = ctx.Now()
	if err := ctx.State.SetListing(l); err != nil {
		return err
	}

	ctx.Emit(events.EventCouponListed, map[string]any{
		"listing": addr,
		"coupon":  c.Address,
		"deal":    c.Deal,
		"seller":  seller,
		"price":   p.PriceLamports,
	})
	return nil
}

func handleDelistCoupon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.DelistCouponPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode delist_coupon payload: %w", err)
	}
	addr, _, err := core.FindListingAddress(ctx.Params.ProgramID, p.Coupon)
	if err != nil {
		return err
	}
	l, err := ctx.State.GetListing(addr)
	if err != nil {
		return vm.NotFound(err, "listing", addr)
	}
	if l.Seller != ctx.Signer() {
		return core.ErrNotOwner
	}
	if !l.IsActive {
		return nil
	}
	l.IsActive = false
	if err := ctx.State.SetListing(l); err != nil {
		return err
	}

	ctx.Emit(events.EventCouponDelisted, map[string]any{
		"listing": addr,
		"coupon":  l.Coupon,
		"seller":  l.Seller,
	})
	return nil
}

func handleBuyCoupon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BuyCouponPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buy_coupon payload: %w", err)
	}
	addr, _, err := core.FindListingAddress(ctx.Params.ProgramID, p.Coupon)
	if err != nil {
		return err
	}
	l, err := ctx.State.GetListing(addr)
	if err != nil {
		return vm.NotFound(err, "listing", addr)
	}
	c, err := ctx.State.GetCoupon(l.Coupon)
	if err != nil {
		return vm.NotFound(err, "coupon", l.Coupon)
	}
	if !l.IsActive {
		return core.ErrListingInactive
	}
	if c.IsRedeemed {
		return core.ErrAlreadyRedeemed
	}
	buyer := ctx.Signer()
	if c.Owner != l.Seller || buyer == l.Seller {
		return core.ErrInvalidListing
	}

	fee, sellerAmount, err := core.PlatformFee(l.PriceLamports, ctx.Params.PlatformFeeBps)
	if err != nil {
		return err
	}
	balance, err := ctx.Balance(buyer)
	if err != nil {
		return err
	}
	if balance < l.PriceLamports {
		return fmt.Errorf("%w: price %d, balance %d", core.ErrInsufficientFunds, l.PriceLamports, balance)
	}
	if err := ctx.Transfer(buyer, l.Seller, sellerAmount); err != nil {
		return err
	}
	if err := ctx.Transfer(buyer, ctx.Params.PlatformWallet, fee); err != nil {
		return err
	}

	c.Owner = buyer
	if err := ctx.State.SetCoupon(c); err != nil {
		return err
	}
	l.IsActive = false
	if err := ctx.State.SetListing(l); err != nil {
		return err
	}

	ctx.Emit(events.EventCouponSold, map[string]any{
		"listing":       addr,
		"coupon":        c.Address,
		"deal":          c.Deal,
		"buyer":         buyer,
		"seller":        l.Seller,
		"price":         l.PriceLamports,
		"seller_amount": sellerAmount,
		"fee":           fee,
	})
	return nil
}
