// Package coupon implements minting, redemption and peer-to-peer transfer of
// coupons.
package coupon

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/crypto"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/vm"
)

// Token metadata handed to the external token service on mint.
const (
	MetadataSymbol = "DEAL"
	metadataName   = "%s - Coupon #%d"
)

func init() {
	vm.Register(core.TxMintCoupon, handleMintCoupon)
	vm.Register(core.TxRedeemCoupon, handleRedeemCoupon)
	vm.Register(core.TxTransferCoupon, handleTransferCoupon)
}

func handleMintCoupon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MintCouponPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode mint_coupon payload: %w", err)
	}
	if err := vm.CheckLen("metadata_uri", p.MetadataURI, core.MaxMetadataURILen); err != nil {
		return err
	}
	d, err := ctx.State.GetDeal(p.Deal)
	if err != nil {
		return vm.NotFound(err, "deal", p.Deal)
	}
	if !d.IsActive {
		return core.ErrDealInactive
	}
	if d.CurrentSupply >= d.MaxSupply {
		return core.ErrMaxSupplyReached
	}
	if d.Expired(ctx.Now()) {
		return core.ErrDealExpired
	}

	user := ctx.Signer()
	program := ctx.Params.ProgramID
	addr, bump, err := core.FindCouponAddress(program, d.Address, d.CurrentSupply)
	if err != nil {
		return err
	}
	_, err = ctx.State.GetCoupon(addr)
	if exists, err := vm.Exists(err); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: coupon %s", core.ErrAccountAlreadyExists, addr)
	}
	mint, _, err := core.FindCouponMintAddress(program, addr)
	if err != nil {
		return err
	}

	if err := ctx.Transfer(user, d.Merchant, d.PriceLamports); err != nil {
		return err
	}
	if err := ctx.FundAccount(user, addr, core.CouponSpace); err != nil {
		return err
	}

	serial, err := core.CheckedAdd(d.CurrentSupply, 1)
	if err != nil {
		return err
	}
	c := &core.Coupon{
		Address:  addr,
		Deal:     d.Address,
		Owner:    user,
		Mint:     mint,
		MintedAt: ctx.Now(),
		Bump:     bump,
	}
	if err := ctx.State.SetCoupon(c); err != nil {
		return err
	}
	d.CurrentSupply = serial
	if err := ctx.State.SetDeal(d); err != nil {
		return err
	}

	ctx.Emit(events.EventCouponMinted, map[string]any{
		"coupon": addr,
		"deal":   d.Address,
		"owner":  user,
		"mint":   mint,
		"price":  d.PriceLamports,
		"metadata": map[string]any{
			"name":   fmt.Sprintf(metadataName, d.Title, serial),
			"symbol": MetadataSymbol,
			"uri":    p.MetadataURI,
		},
	})
	return nil
}

func handleRedeemCoupon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RedeemCouponPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode redeem_coupon payload: %w", err)
	}
	c, err := ctx.State.GetCoupon(p.Coupon)
	if err != nil {
		return vm.NotFound(err, "coupon", p.Coupon)
	}
	if p.Deal != "" && p.Deal != c.Deal {
		return core.ErrInvalidListing
	}
	d, err := ctx.State.GetDeal(c.Deal)
	if err != nil {
		return vm.NotFound(err, "deal", c.Deal)
	}
	if d.Merchant != ctx.Signer() {
		return core.ErrUnauthorizedMerchant
	}
	if c.IsRedeemed {
		return core.ErrAlreadyRedeemed
	}
	if d.Expired(ctx.Now()) {
		return core.ErrDealExpired
	}
	if err := ctx.RequireIdle(c.Address); err != nil {
		return err
	}

	now := ctx.Now()
	c.IsRedeemed = true
	c.RedeemedAt = &now
	if err := ctx.State.SetCoupon(c); err != nil {
		return err
	}

	ctx.Emit(events.EventCouponRedeemed, map[string]any{
		"coupon":   c.Address,
		"deal":     d.Address,
		"owner":    c.Owner,
		"merchant": d.Merchant,
	})
	return nil
}

func handleTransferCoupon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferCouponPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_coupon payload: %w", err)
	}
	newOwner, err := crypto.PubKeyFromString(p.NewOwner)
	if err != nil {
		return fmt.Errorf("%w: new owner: %v", core.ErrInvalidAccount, err)
	}
	if !crypto.IsOnCurve(newOwner) {
		return fmt.Errorf("%w: new owner %s is a program address", core.ErrInvalidAccount, p.NewOwner)
	}
	c, err := ctx.State.GetCoupon(p.Coupon)
	if err != nil {
		return vm.NotFound(err, "coupon", p.Coupon)
	}
	if c.IsRedeemed {
		return core.ErrAlreadyRedeemed
	}
	if c.Owner != ctx.Signer() {
		return core.ErrNotOwner
	}
	if err := ctx.RequireIdle(c.Address); err != nil {
		return err
	}

	prev := c.Owner
	c.Owner = p.NewOwner
	if err := ctx.State.SetCoupon(c); err != nil {
		return err
	}

	ctx.Emit(events.EventCouponTransferred, map[string]any{
		"coupon": c.Address,
		"deal":   c.Deal,
		"from":   prev,
		"to":     p.NewOwner,
	})
	return nil
}
