package core

// String bounds. Title doubles as an address seed, so it is capped at the
// seed length limit.
const (
	MaxTitleLen       = 32
	MaxDescriptionLen = 500
	MaxCategoryLen    = 50
	MaxCommentLen     = 500
	MaxMetadataURILen = 200
)

const pubkeyLen = 32

// Space is the allocated size of each account, discriminator included.
// Strings are sized at their maximum so an account never needs to grow.
const (
	RewardsPoolSpace  = DiscriminatorSize + 8 + 8 + pubkeyLen + 1
	DealSpace         = DiscriminatorSize + pubkeyLen + (4 + MaxTitleLen) + (4 + MaxDescriptionLen) + 1 + 8 + 8 + 8 + (4 + MaxCategoryLen) + 8 + 1 + 8 + 8 + 1
	CouponSpace       = DiscriminatorSize + pubkeyLen*3 + 1 + 8 + (1 + 8) + 1
	ListingSpace      = DiscriminatorSize + pubkeyLen*2 + 8 + 1 + 8 + 1
	StakedCouponSpace = DiscriminatorSize + pubkeyLen*2 + 8 + 8 + 1
	DealRatingSpace   = DiscriminatorSize + pubkeyLen*2 + 1 + 8 + 1
	CommentSpace      = DiscriminatorSize + pubkeyLen*2 + (4 + MaxCommentLen) + 8 + 8 + 1
)

var (
	rewardsPoolDisc  = discriminator("RewardsPool")
	dealDisc         = discriminator("Deal")
	couponDisc       = discriminator("Coupon")
	listingDisc      = discriminator("Listing")
	stakedCouponDisc = discriminator("StakedCoupon")
	dealRatingDisc   = discriminator("DealRating")
	commentDisc      = discriminator("Comment")
)

// RewardsPool is the singleton staking pool. Its lamport balance lives in
// the wallet ledger under the pool's own address.
type RewardsPool struct {
	Address          string `json:"address"`
	TotalStaked      uint64 `json:"total_staked"`
	RewardRatePerDay uint64 `json:"reward_rate_per_day"`
	Admin            string `json:"admin"`
	Bump             uint8  `json:"bump"`
}

func (p *RewardsPool) MarshalBinary() ([]byte, error) {
	w := newLayoutWriter(rewardsPoolDisc, RewardsPoolSpace)
	w.u64(p.TotalStaked)
	w.u64(p.RewardRatePerDay)
	w.pubkey(p.Admin)
	w.u8(p.Bump)
	return w.bytes()
}

func (p *RewardsPool) UnmarshalBinary(data []byte) error {
	r := newLayoutReader(data, rewardsPoolDisc, "RewardsPool")
	p.TotalStaked = r.u64()
	p.RewardRatePerDay = r.u64()
	p.Admin = r.pubkey()
	p.Bump = r.u8()
	return r.err
}

// Deal is a merchant's discount offer.
type Deal struct {
	Address         string `json:"address"`
	Merchant        string `json:"merchant"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DiscountPercent uint8  `json:"discount_percent"`
	MaxSupply       uint64 `json:"max_supply"`
	CurrentSupply   uint64 `json:"current_supply"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
	Category        string `json:"category"`
	PriceLamports   uint64 `json:"price_lamports"`
	IsActive        bool   `json:"is_active"`
	TotalRatings    uint64 `json:"total_ratings"`
	RatingSum       uint64 `json:"rating_sum"`
	Bump            uint8  `json:"bump"`
}

// Expired reports whether the deal can no longer be minted or redeemed at now.
func (d *Deal) Expired(now int64) bool {
	return now >= d.ExpiryTimestamp
}

func (d *Deal) MarshalBinary() ([]byte, error) {
	w := newLayoutWriter(dealDisc, DealSpace)
	w.pubkey(d.Merchant)
	w.str(d.Title)
	w.str(d.Description)
	w.u8(d.DiscountPercent)
	w.u64(d.MaxSupply)
	w.u64(d.CurrentSupply)
	w.i64(d.ExpiryTimestamp)
	w.str(d.Category)
	w.u64(d.PriceLamports)
	w.boolean(d.IsActive)
	w.u64(d.TotalRatings)
	w.u64(d.RatingSum)
	w.u8(d.Bump)
	return w.bytes()
}

func (d *Deal) UnmarshalBinary(data []byte) error {
	r := newLayoutReader(data, dealDisc, "Deal")
	d.Merchant = r.pubkey()
	d.Title = r.str()
	d.Description = r.str()
	d.DiscountPercent = r.u8()
	d.MaxSupply = r.u64()
	d.CurrentSupply = r.u64()
	d.ExpiryTimestamp = r.i64()
	d.Category = r.str()
	d.PriceLamports = r.u64()
	d.IsActive = r.boolean()
	d.TotalRatings = r.u64()
	d.RatingSum = r.u64()
	d.Bump = r.u8()
	return r.err
}

// Coupon is one minted discount right. Mint is the token identity handed to
// the external token/metadata service.
type Coupon struct {
	Address    string `json:"address"`
	Deal       string `json:"deal"`
	Owner      string `json:"owner"`
	Mint       string `json:"mint"`
	IsRedeemed bool   `json:"is_redeemed"`
	MintedAt   int64  `json:"minted_at"`
	RedeemedAt *int64 `json:"redeemed_at"`
	Bump       uint8  `json:"bump"`
}

func (c *Coupon) MarshalBinary() ([]byte, error) {
	w := newLayoutWriter(couponDisc, CouponSpace)
	w.pubkey(c.Deal)
	w.pubkey(c.Owner)
	w.pubkey(c.Mint)
	w.boolean(c.IsRedeemed)
	w.i64(c.MintedAt)
	w.optI64(c.RedeemedAt)
	w.u8(c.Bump)
	return w.bytes()
}

func (c *Coupon) UnmarshalBinary(data []byte) error {
	r := newLayoutReader(data, couponDisc, "Coupon")
	c.Deal = r.pubkey()
	c.Owner = r.pubkey()
	c.Mint = r.pubkey()
	c.IsRedeemed = r.boolean()
	c.MintedAt = r.i64()
	c.RedeemedAt = r.optI64()
	c.Bump = r.u8()
	return r.err
}

// Listing is the per-coupon resale offer. It is never deleted; a sale or a
// delist only deactivates it.
type Listing struct {
	Address       string `json:"address"`
	Coupon        string `json:"coupon"`
	Seller        string `json:"seller"`
	PriceLamports uint64 `json:"price_lamports"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     int64  `json:"created_at"`
	Bump          uint8  `json:"bump"`
}

func (l *Listing) MarshalBinary() ([]byte, error) {
	w := newLayoutWriter(listingDisc, ListingSpace)
	w.pubkey(l.Coupon)
	w.pubkey(l.Seller)
	w.u64(l.PriceLamports)
	w.boolean(l.IsActive)
	w.i64(l.CreatedAt)
	w.u8(l.Bump)
	return w.bytes()
}

func (l *Listing) UnmarshalBinary(data []byte) error {
	r := newLayoutReader(data, listingDisc, "Listing")
	l.Coupon = r.pubkey()
	l.Seller = r.pubkey()
	l.PriceLamports = r.u64()
	l.IsActive = r.boolean()
	l.CreatedAt = r.i64()
	l.Bump = r.u8()
	return r.err
}

// StakedCoupon exists exactly while its coupon is staked.
type StakedCoupon struct {
	Address     string `json:"address"`
	Coupon      string `json:"coupon"`
	Staker      string `json:"staker"`
	StakedAt    int64  `json:"staked_at"`
	LastClaimAt int64  `json:"last_claim_at"`
	Bump        uint8  `json:"bump"`
}

func (s *StakedCoupon) MarshalBinary() ([]byte, error) {
	w := newLayoutWriter(stakedCouponDisc, StakedCouponSpace)
	w.pubkey(s.Coupon)
	w.pubkey(s.Staker)
	w.i64(s.StakedAt)
	w.i64(s.LastClaimAt)
	w.u8(s.Bump)
	return w.bytes()
}

func (s *StakedCoupon) UnmarshalBinary(data []byte) error {
	r := newLayoutReader(data, stakedCouponDisc, "StakedCoupon")
	s.Coupon = r.pubkey()
	s.Staker = r.pubkey()
	s.StakedAt = r.i64()
	s.LastClaimAt = r.i64()
	s.Bump = r.u8()
	return r.err
}

// DealRating is one user's star rating for a deal.
type DealRating struct {
	Address   string `json:"address"`
	Deal      string `json:"deal"`
	User      string `json:"user"`
	Rating    uint8  `json:"rating"`
	CreatedAt int64  `json:"created_at"`
	Bump      uint8  `json:"bump"`
}

func (d *DealRating) MarshalBinary() ([]byte, error) {
	w := newLayoutWriter(dealRatingDisc, DealRatingSpace)
	w.pubkey(d.Deal)
	w.pubkey(d.User)
	w.u8(d.Rating)
	w.i64(d.CreatedAt)
	w.u8(d.Bump)
	return w.bytes()
}

func (d *DealRating) UnmarshalBinary(data []byte) error {
	r := newLayoutReader(data, dealRatingDisc, "DealRating")
	d.Deal = r.pubkey()
	d.User = r.pubkey()
	d.Rating = r.u8()
	d.CreatedAt = r.i64()
	d.Bump = r.u8()
	return r.err
}

// Comment is an append-only note on a deal. Timestamp is the caller-chosen
// address key; CreatedAt is the block time it landed at.
type Comment struct {
	Address   string `json:"address"`
	Deal      string `json:"deal"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	CreatedAt int64  `json:"created_at"`
	Bump      uint8  `json:"bump"`
}

func (c *Comment) MarshalBinary() ([]byte, error) {
	w := newLayoutWriter(commentDisc, CommentSpace)
	w.pubkey(c.Deal)
	w.pubkey(c.Author)
	w.str(c.Content)
	w.i64(c.Timestamp)
	w.i64(c.CreatedAt)
	w.u8(c.Bump)
	return w.bytes()
}

func (c *Comment) UnmarshalBinary(data []byte) error {
	r := newLayoutReader(data, commentDisc, "Comment")
	c.Deal = r.pubkey()
	c.Author = r.pubkey()
	c.Content = r.str()
	c.Timestamp = r.i64()
	c.CreatedAt = r.i64()
	c.Bump = r.u8()
	return r.err
}
