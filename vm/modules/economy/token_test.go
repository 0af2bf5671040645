package economy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/internal/testutil"
)

func TestTransfer(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(1_000)
	bob := h.Wallet(0)

	h.MustRun(h.Must(alice.Transfer(bob.Address(), 400, h.Nonce(alice))))
	assert.EqualValues(t, 600, h.Balance(alice.Address()))
	assert.EqualValues(t, 400, h.Balance(bob.Address()))
	assert.EqualValues(t, 1, h.Nonce(alice))

	err := h.Run(h.Must(alice.Transfer(bob.Address(), 601, h.Nonce(alice))))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	err = h.Run(h.Must(alice.Transfer("not-an-address", 1, h.Nonce(alice))))
	assert.ErrorIs(t, err, core.ErrInvalidAccount)

	zero := h.Must(alice.Transfer(bob.Address(), 0, h.Nonce(alice)))
	err = h.Run(zero)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	r := core.NewReceipt(zero, 0, err)
	if assert.NotNil(t, r.Error) {
		assert.Equal(t, "InvalidAmount", r.Error.Name)
	}

	assert.EqualValues(t, 600, h.Balance(alice.Address()))
	assert.EqualValues(t, 1, h.Nonce(alice))
}

func TestTransfer_FeeIsBurned(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(1_000)
	bob := h.Wallet(0)
	alice.SetFee(10)

	h.MustRun(h.Must(alice.Transfer(bob.Address(), 100, h.Nonce(alice))))
	assert.EqualValues(t, 890, h.Balance(alice.Address()))
	assert.EqualValues(t, 100, h.Balance(bob.Address()))

	// A failed instruction refunds its fee.
	err := h.Run(h.Must(alice.Transfer(bob.Address(), 10_000, h.Nonce(alice))))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.EqualValues(t, 890, h.Balance(alice.Address()))
}

func TestTransfer_FundsRewardsPool(t *testing.T) {
	h := testutil.NewHarness(t)
	admin := h.Wallet(testutil.Lamports)
	pool := h.InitPool(admin, 1, 5_000)
	assert.Equal(t, core.RentExemptMinimum(core.RewardsPoolSpace)+5_000, h.Balance(pool))
}
