// Package social implements deal ratings and comments.
package social

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/vm"
)

func init() {
	vm.Register(core.TxRateDeal, handleRateDeal)
	vm.Register(core.TxAddComment, handleAddComment)
}

// handleRateDeal records one rating per (deal, user). A second rating from
// the same user is rejected so the deal's aggregate always equals the sum
// of its rating accounts.
func handleRateDeal(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RateDealPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode rate_deal payload: %w", err)
	}
	if p.Rating < 1 || p.Rating > 5 {
		return core.ErrInvalidRating
	}
	d, err := ctx.State.GetDeal(p.Deal)
	if err != nil {
		return vm.NotFound(err, "deal", p.Deal)
	}

	user := ctx.Signer()
	addr, bump, err := core.FindRatingAddress(ctx.Params.ProgramID, d.Address, user)
	if err != nil {
		return err
	}
	_, err = ctx.State.GetRating(addr)
	if exists, err := vm.Exists(err); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s already rated %s", core.ErrAccountAlreadyExists, user, d.Address)
	}

	total, err := core.CheckedAdd(d.TotalRatings, 1)
	if err != nil {
		return err
	}
	sum, err := core.CheckedAdd(d.RatingSum, uint64(p.Rating))
	if err != nil {
		return err
	}
	if err := ctx.FundAccount(user, addr, core.DealRatingSpace); err != nil {
		return err
	}
	r := &core.DealRating{
		Address:   addr,
		Deal:      d.Address,
		User:      user,
		Rating:    p.Rating,
		CreatedAt: ctx.Now(),
		Bump:      bump,
	}
	if err := ctx.State.SetRating(r); err != nil {
		return err
	}
	d.TotalRatings = total
	d.RatingSum = sum
	if err := ctx.State.SetDeal(d); err != nil {
		return err
	}

	ctx.Emit(events.EventDealRated, map[string]any{
		"rating_account": addr,
		"deal":           d.Address,
		"user":           user,
		"rating":         p.Rating,
	})
	return nil
}

func handleAddComment(ctx *vm.Context, payload json.RawMessage) error {
	var p core.AddCommentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode add_comment payload: %w", err)
	}
	if len(p.Content) > core.MaxCommentLen {
		return core.ErrCommentTooLong
	}
	d, err := ctx.State.GetDeal(p.Deal)
	if err != nil {
		return vm.NotFound(err, "deal", p.Deal)
	}

	author := ctx.Signer()
	addr, bump, err := core.FindCommentAddress(ctx.Params.ProgramID, d.Address, author, p.Timestamp)
	if err != nil {
		return err
	}
	_, err = ctx.State.GetComment(addr)
	if exists, err := vm.Exists(err); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: comment at %d", core.ErrAccountAlreadyExists, p.Timestamp)
	}
	if err := ctx.FundAccount(author, addr, core.CommentSpace); err != nil {
		return err
	}
	c := &core.Comment{
		Address:   addr,
		Deal:      d.Address,
		Author:    author,
		Content:   p.Content,
		Timestamp: p.Timestamp,
		CreatedAt: ctx.Now(),
		Bump:      bump,
	}
	if err := ctx.State.SetComment(c); err != nil {
		return err
	}

	ctx.Emit(events.EventCommentAdded, map[string]any{
		"comment":   addr,
		"deal":      d.Address,
		"author":    author,
		"timestamp": p.Timestamp,
	})
	return nil
}
