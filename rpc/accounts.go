package rpc

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/indexer"
	"github.com/tolelom/dealchain/vm/modules/staking"
)

// dealView adds the derived figures clients display next to a deal.
type dealView struct {
	*core.Deal
	AverageRating string `json:"average_rating"`
	Remaining     uint64 `json:"remaining_supply"`
	Expired       bool   `json:"expired"`
}

type rewardsView struct {
	Pool      *core.RewardsPool  `json:"pool"`
	Stake     *core.StakedCoupon `json:"stake"`
	Pending   uint64             `json:"pending"`
	Available uint64             `json:"available"`
	Claimable uint64             `json:"claimable"`
	AsOf      int64              `json:"as_of"`
}

type programInfo struct {
	ProgramID              string        `json:"program_id"`
	PlatformWallet         string        `json:"platform_wallet"`
	PlatformFeeBps         uint64        `json:"platform_fee_bps"`
	PlatformFeePercent     string        `json:"platform_fee_percent"`
	SettleRewardsOnUnstake bool          `json:"settle_rewards_on_unstake"`
	Instructions           []core.TxType `json:"instructions"`
}

func decimalU64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// averageRating renders rating_sum / total_ratings to two places, "0" when
// nobody has rated yet.
func averageRating(d *core.Deal) string {
	if d.TotalRatings == 0 {
		return "0"
	}
	return decimalU64(d.RatingSum).DivRound(decimalU64(d.TotalRatings), 2).String()
}

func bpsPercent(bps uint64) string {
	return decimalU64(bps).Shift(-2).String()
}

// chainNow is the timestamp of the tip, the clock the program last ran at.
func (h *Handler) chainNow() int64 {
	if tip := h.bc.Tip(); tip != nil {
		return tip.Header.Timestamp
	}
	return h.now().Unix()
}

func (h *Handler) address(req Request) (string, *Response) {
	var p struct {
		Address string `json:"address"`
	}
	if resp := bind(req, &p, map[string]*string{"address": &p.Address}); resp != nil {
		return "", resp
	}
	return p.Address, nil
}

func (h *Handler) getBalance(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	acc, err := h.state.GetAccount(addr)
	if err != nil {
		return stateError(req.ID, "account", err)
	}
	return okResponse(req.ID, acc)
}

func (h *Handler) getDeal(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	deal, err := h.state.GetDeal(addr)
	if err != nil {
		return stateError(req.ID, "deal", err)
	}
	return okResponse(req.ID, dealView{
		Deal:          deal,
		AverageRating: averageRating(deal),
		Remaining:     deal.MaxSupply - deal.CurrentSupply,
		Expired:       deal.Expired(h.chainNow()),
	})
}

func (h *Handler) getCoupon(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	coupon, err := h.state.GetCoupon(addr)
	if err != nil {
		return stateError(req.ID, "coupon", err)
	}
	return okResponse(req.ID, coupon)
}

func (h *Handler) getListing(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	listing, err := h.state.GetListing(addr)
	if err != nil {
		return stateError(req.ID, "listing", err)
	}
	return okResponse(req.ID, listing)
}

func (h *Handler) getStakedCoupon(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	sc, err := h.state.GetStakedCoupon(addr)
	if err != nil {
		return stateError(req.ID, "staked coupon", err)
	}
	return okResponse(req.ID, sc)
}

func (h *Handler) getRating(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	rating, err := h.state.GetRating(addr)
	if err != nil {
		return stateError(req.ID, "rating", err)
	}
	return okResponse(req.ID, rating)
}

func (h *Handler) getComment(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	comment, err := h.state.GetComment(addr)
	if err != nil {
		return stateError(req.ID, "comment", err)
	}
	return okResponse(req.ID, comment)
}

func (h *Handler) getRewardsPool(req Request) Response {
	addr, _, err := core.FindRewardsPoolAddress(h.params.ProgramID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	pool, err := h.state.GetRewardsPool(addr)
	if err != nil {
		return stateError(req.ID, "rewards pool", err)
	}
	return okResponse(req.ID, pool)
}

// pendingRewards reports what claim_rewards would pay for a coupon at the
// current tip time.
func (h *Handler) pendingRewards(req Request) Response {
	var p struct {
		Coupon string `json:"coupon"`
	}
	if resp := bind(req, &p, map[string]*string{"coupon": &p.Coupon}); resp != nil {
		return *resp
	}
	poolAddr, _, err := core.FindRewardsPoolAddress(h.params.ProgramID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	stakeAddr, _, err := core.FindStakedCouponAddress(h.params.ProgramID, p.Coupon)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	pool, err := h.state.GetRewardsPool(poolAddr)
	if err != nil {
		return stateError(req.ID, "rewards pool", err)
	}
	stake, err := h.state.GetStakedCoupon(stakeAddr)
	if err != nil {
		return stateError(req.ID, "staked coupon", err)
	}

	now := h.chainNow()
	pending, err := staking.PendingRewards(pool, stake, now)
	if err != nil {
		return rejected(req.ID, err)
	}
	available, err := staking.Available(h.state, pool)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, rewardsView{
		Pool:      pool,
		Stake:     stake,
		Pending:   pending,
		Available: available,
		Claimable: min(pending, available),
		AsOf:      now,
	})
}

// deriveAddress computes a program-derived address from its seed inputs.
func (h *Handler) deriveAddress(req Request) Response {
	var p struct {
		Kind      string `json:"kind"`
		Merchant  string `json:"merchant"`
		Title     string `json:"title"`
		Deal      string `json:"deal"`
		Index     uint64 `json:"index"`
		Coupon    string `json:"coupon"`
		User      string `json:"user"`
		Author    string `json:"author"`
		Timestamp int64  `json:"timestamp"`
	}
	if resp := bind(req, &p, map[string]*string{"kind": &p.Kind}); resp != nil {
		return *resp
	}

	program := h.params.ProgramID
	var (
		addr string
		bump uint8
		err  error
	)
	switch p.Kind {
	case core.SeedRewardsPool:
		addr, bump, err = core.FindRewardsPoolAddress(program)
	case core.SeedDeal:
		addr, bump, err = core.FindDealAddress(program, p.Merchant, p.Title)
	case core.SeedCoupon:
		addr, bump, err = core.FindCouponAddress(program, p.Deal, p.Index)
	case core.SeedCouponMint:
		addr, bump, err = core.FindCouponMintAddress(program, p.Coupon)
	case core.SeedListing:
		addr, bump, err = core.FindListingAddress(program, p.Coupon)
	case core.SeedStakedCoupon:
		addr, bump, err = core.FindStakedCouponAddress(program, p.Coupon)
	case core.SeedRating:
		addr, bump, err = core.FindRatingAddress(program, p.Deal, p.User)
	case core.SeedComment:
		addr, bump, err = core.FindCommentAddress(program, p.Deal, p.Author, p.Timestamp)
	default:
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unknown address kind %q", p.Kind))
	}
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": addr, "bump": bump})
}

// indexQuery builds a method answering a secondary-index lookup keyed by
// one string parameter.
func indexQuery(param string, lookup func(*indexer.Indexer, string) ([]string, error)) method {
	return func(h *Handler, req Request) Response {
		var p map[string]string
		if resp := bind(req, &p, nil); resp != nil {
			return *resp
		}
		key := p[param]
		if key == "" {
			return errResponse(req.ID, CodeInvalidParams, param+" is required")
		}
		ids, err := lookup(h.indexer, key)
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		if ids == nil {
			ids = []string{}
		}
		return okResponse(req.ID, ids)
	}
}

func (h *Handler) getDeals(req Request) Response {
	ids, err := h.indexer.Deals()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if ids == nil {
		ids = []string{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getActiveListings(req Request) Response {
	ids, err := h.indexer.ActiveListings()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if ids == nil {
		ids = []string{}
	}
	return okResponse(req.ID, ids)
}
