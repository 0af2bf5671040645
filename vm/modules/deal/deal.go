// Package deal implements the merchant side of the program: opening deals
// and toggling or repricing them.
package deal

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/vm"
)

func init() {
	vm.Register(core.TxCreateDeal, handleCreateDeal)
	vm.Register(core.TxUpdateDeal, handleUpdateDeal)
}

func handleCreateDeal(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CreateDealPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode create_deal payload: %w", err)
	}
	if p.DiscountPercent < 1 || p.DiscountPercent > 100 {
		return core.ErrInvalidDiscount
	}
	if p.MaxSupply == 0 {
		return core.ErrInvalidSupply
	}
	if p.ExpiryTimestamp <= ctx.Now() {
		return core.ErrInvalidExpiry
	}
	if p.PriceLamports == 0 {
		return core.ErrInvalidPrice
	}
	if err := vm.CheckLen("title", p.Title, core.MaxTitleLen); err != nil {
		return err
	}
	if err := vm.CheckLen("description", p.Description, core.MaxDescriptionLen); err != nil {
		return err
	}
	if err := vm.CheckLen("category", p.Category, core.MaxCategoryLen); err != nil {
		return err
	}

	merchant := ctx.Signer()
	addr, bump, err := core.FindDealAddress(ctx.Params.ProgramID, merchant, p.Title)
	if err != nil {
		return err
	}
	_, err = ctx.State.GetDeal(addr)
	exists, err := vm.Exists(err)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: deal %q", core.ErrAccountAlreadyExists, p.Title)
	}
	if err := ctx.FundAccount(merchant, addr, core.DealSpace); err != nil {
		return err
	}

	d := &core.Deal{
		Address:         addr,
		Merchant:        merchant,
		Title:           p.Title,
		Description:     p.Description,
		DiscountPercent: p.DiscountPercent,
		MaxSupply:       p.MaxSupply,
		ExpiryTimestamp: p.ExpiryTimestamp,
		Category:        p.Category,
		PriceLamports:   p.PriceLamports,
		IsActive:        true,
		Bump:            bump,
	}
	if err := ctx.State.SetDeal(d); err != nil {
		return err
	}

	ctx.Emit(events.EventDealCreated, map[string]any{
		"deal":       addr,
		"merchant":   merchant,
		"title":      p.Title,
		"category":   p.Category,
		"max_supply": p.MaxSupply,
		"price":      p.PriceLamports,
	})
	return nil
}

func handleUpdateDeal(ctx *vm.Context, payload json.RawMessage) error {
	var p core.UpdateDealPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode update_deal payload: %w", err)
	}
	d, err := ctx.State.GetDeal(p.Deal)
	if err != nil {
		return vm.NotFound(err, "deal", p.Deal)
	}
	if d.Merchant != ctx.Signer() {
		return core.ErrUnauthorizedMerchant
	}
	if p.PriceLamports != nil && *p.PriceLamports == 0 {
		return core.ErrInvalidPrice
	}

	if p.IsActive != nil {
		d.IsActive = *p.IsActive
	}
	if p.PriceLamports != nil {
		d.PriceLamports = *p.PriceLamports
	}
	if err := ctx.State.SetDeal(d); err != nil {
		return err
	}

	ctx.Emit(events.EventDealUpdated, map[string]any{
		"deal":      d.Address,
		"is_active": d.IsActive,
		"price":     d.PriceLamports,
	})
	return nil
}
