package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter(t *testing.T) {
	e := NewEmitter()
	var typed, all []EventType
	e.Subscribe(EventCouponMinted, func(ev Event) { typed = append(typed, ev.Type) })
	e.SubscribeAll(func(ev Event) { all = append(all, ev.Type) })

	e.Emit(Event{Type: EventCouponMinted})
	e.Emit(Event{Type: EventDealCreated})

	assert.Equal(t, []EventType{EventCouponMinted}, typed)
	assert.Equal(t, []EventType{EventCouponMinted, EventDealCreated}, all)
}

func TestEmitterSurvivesPanickingHandler(t *testing.T) {
	e := NewEmitter()
	var delivered int
	e.Subscribe(EventCouponSold, func(Event) { panic("boom") })
	e.Subscribe(EventCouponSold, func(Event) { delivered++ })

	assert.NotPanics(t, func() { e.Emit(Event{Type: EventCouponSold, TxID: "tx"}) })
	assert.Equal(t, 1, delivered)
}
