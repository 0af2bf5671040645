// Package staking implements the coupon staking pool. Rewards accrue per
// whole day a coupon stays staked at the pool's daily rate and are paid from
// the lamports held at the pool address above its rent reserve.
package staking

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/vm"
)

func init() {
	vm.Register(core.TxInitRewardsPool, handleInitRewardsPool)
	vm.Register(core.TxUpdateRewardsPool, handleUpdateRewardsPool)
	vm.Register(core.TxStakeCoupon, handleStakeCoupon)
	vm.Register(core.TxUnstakeCoupon, handleUnstakeCoupon)
	vm.Register(core.TxClaimRewards, handleClaimRewards)
}

// PendingRewards returns the rewards staked has accrued at now under pool's
// current rate.
func PendingRewards(pool *core.RewardsPool, staked *core.StakedCoupon, now int64) (uint64, error) {
	return core.AccruedRewards(now-staked.LastClaimAt, pool.RewardRatePerDay)
}

// Available returns the lamports the pool can pay out without dipping into
// its rent reserve.
func Available(state core.State, pool *core.RewardsPool) (uint64, error) {
	acc, err := state.GetAccount(pool.Address)
	if err != nil {
		return 0, err
	}
	reserve := core.RentExemptMinimum(core.RewardsPoolSpace)
	if acc.Balance <= reserve {
		return 0, nil
	}
	return acc.Balance - reserve, nil
}

func loadPool(ctx *vm.Context) (*core.RewardsPool, error) {
	addr, _, err := core.FindRewardsPoolAddress(ctx.Params.ProgramID)
	if err != nil {
		return nil, err
	}
	pool, err := ctx.State.GetRewardsPool(addr)
	if err != nil {
		return nil, vm.NotFound(err, "rewards pool", addr)
	}
	return pool, nil
}

func loadStake(ctx *vm.Context, coupon string) (*core.StakedCoupon, error) {
	addr, _, err := core.FindStakedCouponAddress(ctx.Params.ProgramID, coupon)
	if err != nil {
		return nil, err
	}
	sc, err := ctx.State.GetStakedCoupon(addr)
	if err != nil {
		return nil, vm.NotFound(err, "staked coupon", addr)
	}
	if sc.Staker != ctx.Signer() {
		return nil, core.ErrNotOwner
	}
	return sc, nil
}

func handleInitRewardsPool(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RewardsPoolPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode initialize_rewards_pool payload: %w", err)
	}
	addr, bump, err := core.FindRewardsPoolAddress(ctx.Params.ProgramID)
	if err != nil {
		return err
	}
	_, err = ctx.State.GetRewardsPool(addr)
	if exists, err := vm.Exists(err); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: rewards pool", core.ErrAccountAlreadyExists)
	}

	admin := ctx.Signer()
	if err := ctx.FundAccount(admin, addr, core.RewardsPoolSpace); err != nil {
		return err
	}
	pool := &core.RewardsPool{
		Address:          addr,
		RewardRatePerDay: p.RewardRatePerDay,
		Admin:            admin,
		Bump:             bump,
	}
	if err := ctx.State.SetRewardsPool(pool); err != nil {
		return err
	}

	ctx.Emit(events.EventPoolInitialized, map[string]any{
		"pool":  addr,
		"admin": admin,
		"rate":  p.RewardRatePerDay,
	})
	return nil
}

func handleUpdateRewardsPool(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RewardsPoolPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode update_rewards_pool payload: %w", err)
	}
	pool, err := loadPool(ctx)
	if err != nil {
		return err
	}
	if pool.Admin != ctx.Signer() {
		return core.ErrUnauthorized
	}
	prev := pool.RewardRatePerDay
	pool.RewardRatePerDay = p.RewardRatePerDay
	if err := ctx.State.SetRewardsPool(pool); err != nil {
		return err
	}

	ctx.Emit(events.EventPoolUpdated, map[string]any{
		"pool":      pool.Address,
		"prev_rate": prev,
		"rate":      p.RewardRatePerDay,
	})
	return nil
}

func handleStakeCoupon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.StakePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode stake_coupon payload: %w", err)
	}
	c, err := ctx.State.GetCoupon(p.Coupon)
	if err != nil {
		return vm.NotFound(err, "coupon", p.Coupon)
	}
	if c.IsRedeemed {
		return core.ErrAlreadyRedeemed
	}
	staker := ctx.Signer()
	if c.Owner != staker {
		return core.ErrNotOwner
	}
	listed, err := ctx.Listed(c.Address)
	if err != nil {
		return err
	}
	if listed {
		return core.ErrCouponListed
	}
	pool, err := loadPool(ctx)
	if err != nil {
		return err
	}

	addr, bump, err := core.FindStakedCouponAddress(ctx.Params.ProgramID, c.Address)
	if err != nil {
		return err
	}
	_, err = ctx.State.GetStakedCoupon(addr)
	if exists, err := vm.Exists(err); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: coupon %s already staked", core.ErrAccountAlreadyExists, c.Address)
	}
	if err := ctx.FundAccount(staker, addr, core.StakedCouponSpace); err != nil {
		return err
	}

	now := ctx.Now()
	sc := &core.StakedCoupon{
		Address:     addr,
		Coupon:      c.Address,
		Staker:      staker,
		StakedAt:    now,
		LastClaimAt: now,
		Bump:        bump,
	}
	if err := ctx.State.SetStakedCoupon(sc); err != nil {
		return err
	}
	if pool.TotalStaked, err = core.CheckedAdd(pool.TotalStaked, 1); err != nil {
		return err
	}
	if err := ctx.State.SetRewardsPool(pool); err != nil {
		return err
	}

	ctx.Emit(events.EventCouponStaked, map[string]any{
		"stake":  addr,
		"coupon": c.Address,
		"staker": staker,
	})
	return nil
}

func handleUnstakeCoupon(ctx *vm.Context, payload json.RawMessage) error {
	var p core.StakePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode unstake_coupon payload: %w", err)
	}
	sc, err := loadStake(ctx, p.Coupon)
	if err != nil {
		return err
	}
	pool, err := loadPool(ctx)
	if err != nil {
		return err
	}

	var settled uint64
	if ctx.Params.SettleRewardsOnUnstake {
		pending, err := PendingRewards(pool, sc, ctx.Now())
		if err != nil {
			return err
		}
		avail, err := Available(ctx.State, pool)
		if err != nil {
			return err
		}
		if pending > 0 && pending <= avail {
			if err := ctx.Transfer(pool.Address, sc.Staker, pending); err != nil {
				return err
			}
			settled = pending
		}
	}

	if err := ctx.CloseAccount(sc.Address, sc.Staker); err != nil {
		return err
	}
	if err := ctx.State.DeleteStakedCoupon(sc.Address); err != nil {
		return err
	}
	if pool.TotalStaked, err = core.CheckedSub(pool.TotalStaked, 1); err != nil {
		return err
	}
	if err := ctx.State.SetRewardsPool(pool); err != nil {
		return err
	}

	ctx.Emit(events.EventCouponUnstaked, map[string]any{
		"stake":   sc.Address,
		"coupon":  sc.Coupon,
		"staker":  sc.Staker,
		"settled": settled,
	})
	return nil
}

func handleClaimRewards(ctx *vm.Context, payload json.RawMessage) error {
	var p core.StakePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim_rewards payload: %w", err)
	}
	sc, err := loadStake(ctx, p.Coupon)
	if err != nil {
		return err
	}
	pool, err := loadPool(ctx)
	if err != nil {
		return err
	}
	now := ctx.Now()
	pending, err := PendingRewards(pool, sc, now)
	if err != nil {
		return err
	}
	if pending == 0 {
		return core.ErrNoRewardsToClaim
	}
	avail, err := Available(ctx.State, pool)
	if err != nil {
		return err
	}
	if avail < pending {
		return fmt.Errorf("%w: pending %d, available %d", core.ErrInsufficientPoolFunds, pending, avail)
	}
	if err := ctx.Transfer(pool.Address, sc.Staker, pending); err != nil {
		return err
	}
	sc.LastClaimAt = now
	if err := ctx.State.SetStakedCoupon(sc); err != nil {
		return err
	}

	ctx.Emit(events.EventRewardsClaimed, map[string]any{
		"stake":  sc.Address,
		"coupon": sc.Coupon,
		"staker": sc.Staker,
		"amount": pending,
	})
	return nil
}
