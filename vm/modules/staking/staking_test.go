package staking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/internal/testutil"
	"github.com/tolelom/dealchain/vm"
	"github.com/tolelom/dealchain/vm/modules/staking"
	"github.com/tolelom/dealchain/wallet"
)

const rate = 100_000

type fixture struct {
	t      *testing.T
	h      *testutil.Harness
	admin  *wallet.Wallet
	user   *wallet.Wallet
	pool   string
	coupon string
}

func newFixture(t *testing.T, params vm.Params, funding uint64) *fixture {
	h := testutil.NewHarnessWithParams(t, params)
	f := &fixture{
		t:     t,
		h:     h,
		admin: h.Wallet(testutil.Lamports),
		user:  h.Wallet(testutil.Lamports),
	}
	merchant := h.Wallet(testutil.Lamports)
	deal := h.CreateDeal(merchant, h.DealPayload("Coffee"))
	f.coupon = h.MintCoupon(f.user, deal)
	f.pool = h.InitPool(f.admin, rate, funding)
	return f
}

func (f *fixture) stake() {
	f.h.MustRun(f.h.Must(f.user.StakeCoupon(f.coupon, f.h.Nonce(f.user))))
}

func (f *fixture) stakeState() *core.StakedCoupon {
	sc, err := f.h.State.GetStakedCoupon(f.h.StakeAddress(f.coupon))
	require.NoError(f.t, err)
	return sc
}

func (f *fixture) poolState() *core.RewardsPool {
	p, err := f.h.State.GetRewardsPool(f.pool)
	require.NoError(f.t, err)
	return p
}

func TestInitRewardsPool(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 0)
	h := f.h

	p := f.poolState()
	assert.Equal(t, f.admin.Address(), p.Admin)
	assert.EqualValues(t, rate, p.RewardRatePerDay)
	assert.Zero(t, p.TotalStaked)
	assert.Equal(t, core.RentExemptMinimum(core.RewardsPoolSpace), h.Balance(f.pool))

	err := h.Run(h.Must(f.user.InitRewardsPool(1, h.Nonce(f.user))))
	assert.ErrorIs(t, err, core.ErrAccountAlreadyExists)
}

func TestUpdateRewardsPool(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 0)
	h := f.h

	err := h.Run(h.Must(f.user.UpdateRewardsPool(1, h.Nonce(f.user))))
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	h.MustRun(h.Must(f.admin.UpdateRewardsPool(250_000, h.Nonce(f.admin))))
	assert.EqualValues(t, 250_000, f.poolState().RewardRatePerDay)
}

func TestStakeCoupon(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 10_000_000)
	h := f.h
	f.stake()

	sc, err := h.State.GetStakedCoupon(h.StakeAddress(f.coupon))
	require.NoError(t, err)
	assert.Equal(t, f.coupon, sc.Coupon)
	assert.Equal(t, f.user.Address(), sc.Staker)
	assert.Equal(t, h.Now, sc.StakedAt)
	assert.Equal(t, h.Now, sc.LastClaimAt)
	assert.EqualValues(t, 1, f.poolState().TotalStaked)

	// The owner keeps the coupon but cannot move it while staked.
	assert.Equal(t, f.user.Address(), h.Coupon(f.coupon).Owner)
	other := h.Wallet(0)
	err = h.Run(h.Must(f.user.TransferCoupon(f.coupon, other.Address(), h.Nonce(f.user))))
	assert.ErrorIs(t, err, core.ErrCouponStaked)

	err = h.Run(h.Must(f.user.StakeCoupon(f.coupon, h.Nonce(f.user))))
	assert.ErrorIs(t, err, core.ErrAccountAlreadyExists)
}

func TestStakeCoupon_Rejections(t *testing.T) {
	h := testutil.NewHarness(t)
	merchant := h.Wallet(testutil.Lamports)
	user := h.Wallet(testutil.Lamports)
	stranger := h.Wallet(testutil.Lamports)
	deal := h.CreateDeal(merchant, h.DealPayload("Tea"))
	coupon := h.MintCoupon(user, deal)

	err := h.Run(h.Must(user.StakeCoupon(coupon, h.Nonce(user))))
	assert.ErrorIs(t, err, core.ErrAccountNotFound, "no pool yet")

	h.InitPool(merchant, rate, 0)
	err = h.Run(h.Must(stranger.StakeCoupon(coupon, h.Nonce(stranger))))
	assert.ErrorIs(t, err, core.ErrNotOwner)

	h.MustRun(h.Must(user.ListCoupon(coupon, 5, h.Nonce(user))))
	err = h.Run(h.Must(user.StakeCoupon(coupon, h.Nonce(user))))
	assert.ErrorIs(t, err, core.ErrCouponListed)

	h.MustRun(h.Must(user.DelistCoupon(coupon, h.Nonce(user))))
	h.MustRun(h.Must(merchant.RedeemCoupon(coupon, deal, h.Nonce(merchant))))
	err = h.Run(h.Must(user.StakeCoupon(coupon, h.Nonce(user))))
	assert.ErrorIs(t, err, core.ErrAlreadyRedeemed)
}

func TestClaimRewards(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 10_000_000)
	h := f.h
	f.stake()

	err := h.Run(h.Must(f.user.ClaimRewards(f.coupon, h.Nonce(f.user))))
	assert.ErrorIs(t, err, core.ErrNoRewardsToClaim)

	h.Advance(2 * core.SecondsPerDay)
	userBefore := h.Balance(f.user.Address())
	poolBefore := h.Balance(f.pool)
	h.MustRun(h.Must(f.user.ClaimRewards(f.coupon, h.Nonce(f.user))))

	assert.Equal(t, userBefore+200_000, h.Balance(f.user.Address()))
	assert.Equal(t, poolBefore-200_000, h.Balance(f.pool))
	sc, err := h.State.GetStakedCoupon(h.StakeAddress(f.coupon))
	require.NoError(t, err)
	assert.Equal(t, h.Now, sc.LastClaimAt)

	// Claiming again in the same second pays nothing.
	err = h.Run(h.Must(f.user.ClaimRewards(f.coupon, h.Nonce(f.user))))
	assert.ErrorIs(t, err, core.ErrNoRewardsToClaim)

	stranger := h.Wallet(testutil.Lamports)
	h.Advance(core.SecondsPerDay)
	err = h.Run(h.Must(stranger.ClaimRewards(f.coupon, h.Nonce(stranger))))
	assert.ErrorIs(t, err, core.ErrNotOwner)
}

func TestClaimRewards_WholeDaysOnly(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 10_000_000)
	h := f.h
	f.stake()

	h.Advance(3600)
	err := h.Run(h.Must(f.user.ClaimRewards(f.coupon, h.Nonce(f.user))))
	assert.ErrorIs(t, err, core.ErrNoRewardsToClaim)

	// 1.5 days after staking pays one day.
	h.Advance(core.SecondsPerDay + core.SecondsPerDay/2 - 3600)
	before := h.Balance(f.user.Address())
	h.MustRun(h.Must(f.user.ClaimRewards(f.coupon, h.Nonce(f.user))))
	assert.Equal(t, before+rate, h.Balance(f.user.Address()))

	pending, err := staking.PendingRewards(f.poolState(), f.stakeState(), h.Now+core.SecondsPerDay-1)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestClaimRewards_UsesCurrentRate(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 10_000_000)
	h := f.h
	f.stake()

	h.Advance(core.SecondsPerDay)
	h.MustRun(h.Must(f.admin.UpdateRewardsPool(300_000, h.Nonce(f.admin))))
	before := h.Balance(f.user.Address())
	h.MustRun(h.Must(f.user.ClaimRewards(f.coupon, h.Nonce(f.user))))
	assert.Equal(t, before+300_000, h.Balance(f.user.Address()))
}

func TestClaimRewards_PoolCannotPay(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 100)
	h := f.h
	f.stake()
	h.Advance(2 * core.SecondsPerDay)

	poolBefore := h.Balance(f.pool)
	err := h.Run(h.Must(f.user.ClaimRewards(f.coupon, h.Nonce(f.user))))
	assert.ErrorIs(t, err, core.ErrInsufficientPoolFunds)
	assert.Equal(t, poolBefore, h.Balance(f.pool))

	// The rent reserve is never paid out.
	avail, err := staking.Available(h.State, f.poolState())
	require.NoError(t, err)
	assert.EqualValues(t, 100, avail)
}

func TestUnstakeCoupon_ForfeitsRewards(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 10_000_000)
	h := f.h
	before := h.Balance(f.user.Address())
	f.stake()
	h.Advance(2 * core.SecondsPerDay)

	poolBefore := h.Balance(f.pool)
	h.MustRun(h.Must(f.user.UnstakeCoupon(f.coupon, h.Nonce(f.user))))

	// Rent comes back, rewards do not.
	assert.Equal(t, before, h.Balance(f.user.Address()))
	assert.Equal(t, poolBefore, h.Balance(f.pool))
	assert.Zero(t, h.Balance(h.StakeAddress(f.coupon)))
	assert.Zero(t, f.poolState().TotalStaked)
	_, err := h.State.GetStakedCoupon(h.StakeAddress(f.coupon))
	assert.ErrorIs(t, err, core.ErrNotFound)

	// The coupon is free again and can be restaked.
	f.stake()
	assert.EqualValues(t, 1, f.poolState().TotalStaked)
}

func TestUnstakeCoupon_Settles(t *testing.T) {
	params := vm.DefaultParams()
	params.SettleRewardsOnUnstake = true
	f := newFixture(t, params, 10_000_000)
	h := f.h
	before := h.Balance(f.user.Address())
	f.stake()
	h.Advance(2 * core.SecondsPerDay)

	h.MustRun(h.Must(f.user.UnstakeCoupon(f.coupon, h.Nonce(f.user))))
	assert.Equal(t, before+200_000, h.Balance(f.user.Address()))
}

func TestUnstakeCoupon_SettleSkipsUnderfundedPool(t *testing.T) {
	params := vm.DefaultParams()
	params.SettleRewardsOnUnstake = true
	f := newFixture(t, params, 100)
	h := f.h
	before := h.Balance(f.user.Address())
	f.stake()
	h.Advance(2 * core.SecondsPerDay)

	h.MustRun(h.Must(f.user.UnstakeCoupon(f.coupon, h.Nonce(f.user))))
	assert.Equal(t, before, h.Balance(f.user.Address()))
}

func TestUnstakeCoupon_NotStaker(t *testing.T) {
	f := newFixture(t, vm.DefaultParams(), 0)
	h := f.h
	f.stake()

	err := h.Run(h.Must(f.admin.UnstakeCoupon(f.coupon, h.Nonce(f.admin))))
	assert.ErrorIs(t, err, core.ErrNotOwner)

	other := h.Wallet(testutil.Lamports)
	err = h.Run(h.Must(other.UnstakeCoupon(other.Address(), h.Nonce(other))))
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
}

func TestPendingRewards(t *testing.T) {
	pool := &core.RewardsPool{RewardRatePerDay: 86_400}
	sc := &core.StakedCoupon{LastClaimAt: 1_000}

	got, err := staking.PendingRewards(pool, sc, 1_000)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = staking.PendingRewards(pool, sc, 1_000+core.SecondsPerDay-1)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = staking.PendingRewards(pool, sc, 1_000+2*core.SecondsPerDay+61)
	require.NoError(t, err)
	assert.EqualValues(t, 2*86_400, got)
}
