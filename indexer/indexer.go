// Package indexer maintains secondary indexes over committed events so
// clients can list coupons, deals, listings and social records without
// scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/storage"
)

const (
	prefixOwnerCoupons  = "idx:owner:coupon:"
	prefixDealCoupons   = "idx:deal:coupon:"
	prefixMerchantDeals = "idx:merchant:deal:"
	prefixDealComments  = "idx:deal:comment:"
	prefixDealRatings   = "idx:deal:rating:"
	prefixStakerCoupons = "idx:staker:coupon:"
	keyActiveListings   = "idx:listing:active"
	keyDeals            = "idx:deal:all"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db  storage.DB
	log *logrus.Entry
	mu  sync.Mutex
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{
		db:  db,
		log: logrus.StandardLogger().WithField("type", "indexer"),
	}
	emitter.Subscribe(events.EventDealCreated, idx.onDealCreated)
	emitter.Subscribe(events.EventCouponMinted, idx.onCouponMinted)
	emitter.Subscribe(events.EventCouponTransferred, idx.onCouponMoved)
	emitter.Subscribe(events.EventCouponSold, idx.onCouponSold)
	emitter.Subscribe(events.EventCouponListed, idx.onCouponListed)
	emitter.Subscribe(events.EventCouponDelisted, idx.onCouponDelisted)
	emitter.Subscribe(events.EventCouponStaked, idx.onCouponStaked)
	emitter.Subscribe(events.EventCouponUnstaked, idx.onCouponUnstaked)
	emitter.Subscribe(events.EventDealRated, idx.onDealRated)
	emitter.Subscribe(events.EventCommentAdded, idx.onCommentAdded)
	return idx
}

// CouponsByOwner returns the coupon addresses currently owned by owner.
func (idx *Indexer) CouponsByOwner(owner string) ([]string, error) {
	return idx.getList(prefixOwnerCoupons + owner)
}

// CouponsByDeal returns every coupon minted from deal, in mint order.
func (idx *Indexer) CouponsByDeal(deal string) ([]string, error) {
	return idx.getList(prefixDealCoupons + deal)
}

// DealsByMerchant returns the deals opened by merchant.
func (idx *Indexer) DealsByMerchant(merchant string) ([]string, error) {
	return idx.getList(prefixMerchantDeals + merchant)
}

// Deals returns every deal address in creation order.
func (idx *Indexer) Deals() ([]string, error) {
	return idx.getList(keyDeals)
}

// CommentsByDeal returns the comment addresses posted on deal.
func (idx *Indexer) CommentsByDeal(deal string) ([]string, error) {
	return idx.getList(prefixDealComments + deal)
}

// RatingsByDeal returns the rating addresses recorded for deal.
func (idx *Indexer) RatingsByDeal(deal string) ([]string, error) {
	return idx.getList(prefixDealRatings + deal)
}

// StakesByStaker returns the coupons staker currently has staked.
func (idx *Indexer) StakesByStaker(staker string) ([]string, error) {
	return idx.getList(prefixStakerCoupons + staker)
}

// ActiveListings returns the listing addresses currently for sale.
func (idx *Indexer) ActiveListings() ([]string, error) {
	return idx.getList(keyActiveListings)
}

// ---- event handlers ----

func str(ev events.Event, key string) string {
	v, _ := ev.Data[key].(string)
	return v
}

func (idx *Indexer) onDealCreated(ev events.Event) {
	deal, merchant := str(ev, "deal"), str(ev, "merchant")
	if deal == "" || merchant == "" {
		return
	}
	idx.add(prefixMerchantDeals+merchant, deal)
	idx.add(keyDeals, deal)
}

func (idx *Indexer) onCouponMinted(ev events.Event) {
	coupon, deal, owner := str(ev, "coupon"), str(ev, "deal"), str(ev, "owner")
	if coupon == "" {
		return
	}
	idx.add(prefixOwnerCoupons+owner, coupon)
	idx.add(prefixDealCoupons+deal, coupon)
}

func (idx *Indexer) onCouponMoved(ev events.Event) {
	coupon, from, to := str(ev, "coupon"), str(ev, "from"), str(ev, "to")
	if coupon == "" || from == "" || to == "" {
		return
	}
	idx.remove(prefixOwnerCoupons+from, coupon)
	idx.add(prefixOwnerCoupons+to, coupon)
}

func (idx *Indexer) onCouponSold(ev events.Event) {
	coupon, seller, buyer := str(ev, "coupon"), str(ev, "seller"), str(ev, "buyer")
	if coupon == "" {
		return
	}
	idx.remove(prefixOwnerCoupons+seller, coupon)
	idx.add(prefixOwnerCoupons+buyer, coupon)
	idx.remove(keyActiveListings, str(ev, "listing"))
}

func (idx *Indexer) onCouponListed(ev events.Event) {
	if l := str(ev, "listing"); l != "" {
		idx.add(keyActiveListings, l)
	}
}

func (idx *Indexer) onCouponDelisted(ev events.Event) {
	if l := str(ev, "listing"); l != "" {
		idx.remove(keyActiveListings, l)
	}
}

func (idx *Indexer) onCouponStaked(ev events.Event) {
	if c, s := str(ev, "coupon"), str(ev, "staker"); c != "" && s != "" {
		idx.add(prefixStakerCoupons+s, c)
	}
}

func (idx *Indexer) onCouponUnstaked(ev events.Event) {
	if c, s := str(ev, "coupon"), str(ev, "staker"); c != "" && s != "" {
		idx.remove(prefixStakerCoupons+s, c)
	}
}

func (idx *Indexer) onDealRated(ev events.Event) {
	if r, d := str(ev, "rating_account"), str(ev, "deal"); r != "" && d != "" {
		idx.add(prefixDealRatings+d, r)
	}
}

func (idx *Indexer) onCommentAdded(ev events.Event) {
	if c, d := str(ev, "comment"), str(ev, "deal"); c != "" && d != "" {
		idx.add(prefixDealComments+d, c)
	}
}

// ---- list helpers ----

func (idx *Indexer) add(key, value string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.addToList(key, value); err != nil {
		idx.log.WithError(err).WithField("key", key).Warn("index add")
	}
}

func (idx *Indexer) remove(key, value string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.removeFromList(key, value); err != nil {
		idx.log.WithError(err).WithField("key", key).Warn("index remove")
	}
}

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	data, err := json.Marshal(append(ids, value))
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) removeFromList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
