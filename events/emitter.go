package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit EventType = "block_commit"
	EventTxExecuted  EventType = "tx_executed"
	EventTxFailed    EventType = "tx_failed"

	EventLamportTransfer EventType = "lamport_transfer"

	EventDealCreated EventType = "deal_created"
	EventDealUpdated EventType = "deal_updated"

	EventCouponMinted      EventType = "coupon_minted"
	EventCouponRedeemed    EventType = "coupon_redeemed"
	EventCouponTransferred EventType = "coupon_transferred"

	EventDealRated    EventType = "deal_rated"
	EventCommentAdded EventType = "comment_added"

	EventCouponListed   EventType = "coupon_listed"
	EventCouponDelisted EventType = "coupon_delisted"
	EventCouponSold     EventType = "coupon_sold"

	EventPoolInitialized EventType = "rewards_pool_initialized"
	EventPoolUpdated     EventType = "rewards_pool_updated"
	EventCouponStaked    EventType = "coupon_staked"
	EventCouponUnstaked  EventType = "coupon_unstaked"
	EventRewardsClaimed  EventType = "rewards_claimed"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
	log      *logrus.Entry
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[EventType][]Handler),
		log:      logrus.StandardLogger().WithField("type", "events/emitter"),
	}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all matching subscribers synchronously. A panicking
// subscriber is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.WithFields(logrus.Fields{
						"event": ev.Type,
						"tx_id": ev.TxID,
						"panic": r,
					}).Error("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
