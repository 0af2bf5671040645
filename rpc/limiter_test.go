package rpc

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tolelom/dealchain/core"
)

func TestClientLimiter(t *testing.T) {
	disabled := newClientLimiter(0, 10)
	assert.Nil(t, disabled)
	for i := 0; i < 100; i++ {
		assert.True(t, disabled.Allow("a"))
	}

	l := newClientLimiter(0.001, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"))
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "limits are per client")
}

func TestClientLimiter_DefaultBurst(t *testing.T) {
	l := newClientLimiter(0.5, 0)
	assert.Equal(t, 1, l.burst)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestRemoteHost(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", remoteHost(r))
	r.RemoteAddr = "unix"
	assert.Equal(t, "unix", remoteHost(r))
}

func TestParseTypes(t *testing.T) {
	assert.Empty(t, parseTypes(nil))
	got := parseTypes([]string{"coupon_minted,coupon_sold", " deal_created "})
	assert.True(t, got["coupon_minted"])
	assert.True(t, got["coupon_sold"])
	assert.True(t, got["deal_created"])
	assert.Len(t, got, 3)
}

func TestAverageRating(t *testing.T) {
	assert.Equal(t, "0", averageRating(&core.Deal{}))
	assert.Equal(t, "3.33", averageRating(&core.Deal{TotalRatings: 3, RatingSum: 10}))
	assert.Equal(t, "5", averageRating(&core.Deal{TotalRatings: 2, RatingSum: 10}))
	assert.Equal(t, "2.5", bpsPercent(250))
}
