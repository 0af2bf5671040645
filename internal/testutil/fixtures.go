package testutil

import (
	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/wallet"
)

// Lamports is one SOL-equivalent unit, for readable test balances.
const Lamports = 1_000_000_000

// DealPayload returns a valid deal open for thirty days from the harness
// clock: 10 coupons at 0.001 units each.
func (h *Harness) DealPayload(title string) core.CreateDealPayload {
	return core.CreateDealPayload{
		Title:           title,
		Description:     "Two for one on weekdays",
		DiscountPercent: 50,
		MaxSupply:       10,
		ExpiryTimestamp: h.Now + 30*core.SecondsPerDay,
		Category:        "food",
		PriceLamports:   1_000_000,
	}
}

// CreateDeal opens p for merchant and returns the deal address.
func (h *Harness) CreateDeal(merchant *wallet.Wallet, p core.CreateDealPayload) string {
	h.t.Helper()
	h.MustRun(h.Must(merchant.CreateDeal(p, h.Nonce(merchant))))
	addr, _, err := core.FindDealAddress(h.Params.ProgramID, merchant.Address(), p.Title)
	require.NoError(h.t, err)
	return addr
}

// Deal loads a deal.
func (h *Harness) Deal(addr string) *core.Deal {
	h.t.Helper()
	d, err := h.State.GetDeal(addr)
	require.NoError(h.t, err)
	return d
}

// Coupon loads a coupon.
func (h *Harness) Coupon(addr string) *core.Coupon {
	h.t.Helper()
	c, err := h.State.GetCoupon(addr)
	require.NoError(h.t, err)
	return c
}

// NextCouponAddress is the address the next mint from deal will use.
func (h *Harness) NextCouponAddress(deal string) string {
	h.t.Helper()
	addr, _, err := core.FindCouponAddress(h.Params.ProgramID, deal, h.Deal(deal).CurrentSupply)
	require.NoError(h.t, err)
	return addr
}

// MintCoupon mints the next coupon of deal to user and returns its address.
func (h *Harness) MintCoupon(user *wallet.Wallet, deal string) string {
	h.t.Helper()
	addr := h.NextCouponAddress(deal)
	h.MustRun(h.Must(user.MintCoupon(deal, "https://example.com/coupon.json", h.Nonce(user))))
	return addr
}

// PoolAddress returns the rewards pool address.
func (h *Harness) PoolAddress() string {
	h.t.Helper()
	addr, _, err := core.FindRewardsPoolAddress(h.Params.ProgramID)
	require.NoError(h.t, err)
	return addr
}

// InitPool creates the rewards pool with admin and tops it up with funding
// lamports above its rent reserve.
func (h *Harness) InitPool(admin *wallet.Wallet, ratePerDay, funding uint64) string {
	h.t.Helper()
	h.MustRun(h.Must(admin.InitRewardsPool(ratePerDay, h.Nonce(admin))))
	pool := h.PoolAddress()
	if funding > 0 {
		h.MustRun(h.Must(admin.Transfer(pool, funding, h.Nonce(admin))))
	}
	return pool
}

// StakeAddress returns the stake-position address of coupon.
func (h *Harness) StakeAddress(coupon string) string {
	h.t.Helper()
	addr, _, err := core.FindStakedCouponAddress(h.Params.ProgramID, coupon)
	require.NoError(h.t, err)
	return addr
}

// ListingAddress returns the listing address of coupon.
func (h *Harness) ListingAddress(coupon string) string {
	h.t.Helper()
	addr, _, err := core.FindListingAddress(h.Params.ProgramID, coupon)
	require.NoError(h.t, err)
	return addr
}
