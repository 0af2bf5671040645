package vm_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/internal/testutil"
	"github.com/tolelom/dealchain/vm"
	"github.com/tolelom/dealchain/wallet"
)

func TestRegistry(t *testing.T) {
	r := vm.NewRegistry()
	noop := func(*vm.Context, json.RawMessage) error { return nil }
	r.Register(core.TxTransfer, noop)
	assert.True(t, r.Has(core.TxTransfer))
	assert.False(t, r.Has(core.TxBuyCoupon))
	assert.Panics(t, func() {
		r.Register(core.TxTransfer, noop)
	})

	err := r.Execute(core.TxBuyCoupon, &vm.Context{}, nil)
	assert.ErrorIs(t, err, core.ErrUnknownTxType)
}

func TestRegisteredInstructions(t *testing.T) {
	// testutil links every module.
	_ = testutil.ChainID
	want := []core.TxType{
		core.TxTransfer,
		core.TxCreateDeal, core.TxUpdateDeal,
		core.TxMintCoupon, core.TxRedeemCoupon, core.TxTransferCoupon,
		core.TxRateDeal, core.TxAddComment,
		core.TxListCoupon, core.TxDelistCoupon, core.TxBuyCoupon,
		core.TxInitRewardsPool, core.TxUpdateRewardsPool,
		core.TxStakeCoupon, core.TxUnstakeCoupon, core.TxClaimRewards,
	}
	assert.ElementsMatch(t, want, vm.Registered())
}

func TestExecuteTx_Nonce(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(1_000)
	bob := h.Wallet(0)

	tx := h.Must(alice.Transfer(bob.Address(), 1, 0))
	h.MustRun(tx)

	// Replays and gaps are both rejected.
	assert.ErrorContains(t, h.Run(tx), "invalid nonce")
	assert.ErrorContains(t, h.Run(h.Must(alice.Transfer(bob.Address(), 1, 5))), "invalid nonce")
	assert.EqualValues(t, 1, h.Balance(bob.Address()))
}

func TestExecuteTx_Rejections(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(1_000)

	foreign, err := wallet.Generate("other-chain")
	require.NoError(t, err)
	err = h.Run(h.Must(foreign.Transfer(alice.Address(), 1, 0)))
	assert.ErrorIs(t, err, core.ErrWrongChain)

	tampered := h.Must(alice.Transfer(alice.Address(), 1, 0))
	tampered.Fee = 99
	assert.ErrorContains(t, h.Run(tampered), "signature")

	unknown := h.Must(alice.NewTx(core.TxType("mint_nft"), 0, map[string]string{}))
	assert.ErrorIs(t, h.Run(unknown), core.ErrUnknownTxType)

	alice.SetFee(2_000)
	err = h.Run(h.Must(alice.Transfer(alice.Address(), 1, 0)))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	assert.EqualValues(t, 1_000, h.Balance(alice.Address()))
	assert.Zero(t, h.Nonce(alice))
}

func TestExecuteTx_FailureIsAtomic(t *testing.T) {
	h := testutil.NewHarness(t)
	merchant := h.Wallet(testutil.Lamports)
	p := h.DealPayload("Atomic")
	p.PriceLamports = 500

	// Enough for the price but not the coupon rent: the price transfer made
	// before the rent check is rolled back.
	deal := h.CreateDeal(merchant, p)
	user := h.Wallet(600)
	merchantBefore := h.Balance(merchant.Address())

	err := h.Run(h.Must(user.MintCoupon(deal, "", 0)))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.EqualValues(t, 600, h.Balance(user.Address()))
	assert.Equal(t, merchantBefore, h.Balance(merchant.Address()))
	assert.Zero(t, h.Deal(deal).CurrentSupply)
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(1_000)
	bob := h.Wallet(0)

	var seen []events.EventType
	h.Emitter.SubscribeAll(func(ev events.Event) { seen = append(seen, ev.Type) })

	tx := h.Must(alice.Transfer(bob.Address(), 10, 0))
	block := h.NextBlock(tx)
	require.NoError(t, h.Exec.ExecuteTx(block, tx))
	assert.Empty(t, seen)

	receipt := core.NewReceipt(tx, block.Header.Height, nil)
	h.Exec.FlushEvents(block, []*core.Receipt{receipt}, nil)
	assert.Equal(t, []events.EventType{events.EventLamportTransfer, events.EventTxExecuted}, seen)
}

func TestFailedTxEmitsOnlyFailure(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(10)

	var seen []events.Event
	h.Emitter.SubscribeAll(func(ev events.Event) { seen = append(seen, ev) })

	_ = h.Run(h.Must(alice.Transfer(alice.Address(), 100, 0)))
	require.Len(t, seen, 1)
	assert.Equal(t, events.EventTxFailed, seen[0].Type)
	r := seen[0].Data["receipt"].(*core.Receipt)
	assert.True(t, r.Failed())
	require.NotNil(t, r.Error)
	assert.Equal(t, core.ErrInsufficientFunds.Code, r.Error.Code)
}

func TestDiscardEvents(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(1_000)

	var seen int
	h.Emitter.SubscribeAll(func(events.Event) { seen++ })

	tx := h.Must(alice.Transfer(alice.Address(), 10, 0))
	block := h.NextBlock(tx)
	require.NoError(t, h.Exec.ExecuteTx(block, tx))
	h.Exec.DiscardEvents()
	h.State.Discard()
	h.Exec.FlushEvents(block, nil, nil)
	assert.Zero(t, seen)
	assert.Zero(t, h.Nonce(alice))
}

func TestSimulate(t *testing.T) {
	h := testutil.NewHarness(t)
	merchant := h.Wallet(testutil.Lamports)
	user := h.Wallet(testutil.Lamports)
	deal := h.CreateDeal(merchant, h.DealPayload("Preview"))

	var seen int
	h.Emitter.SubscribeAll(func(events.Event) { seen++ })

	tx := h.Must(user.MintCoupon(deal, "", 0))
	block := h.NextBlock()
	receipt, err := h.Exec.Simulate(block, tx)
	require.NoError(t, err)
	assert.False(t, receipt.Failed())
	assert.Equal(t, block.Header.Height, receipt.BlockHeight)

	assert.Zero(t, h.Deal(deal).CurrentSupply)
	assert.EqualValues(t, testutil.Lamports, h.Balance(user.Address()))
	assert.Zero(t, h.Nonce(user))
	h.Exec.FlushEvents(block, nil, nil)
	assert.Zero(t, seen)

	h.Advance(31 * core.SecondsPerDay)
	receipt, err = h.Exec.Simulate(h.NextBlock(), tx)
	require.NoError(t, err)
	assert.True(t, receipt.Failed())
	require.NotNil(t, receipt.Error)
	assert.Equal(t, "DealExpired", receipt.Error.Name)
	assert.Zero(t, h.Nonce(user))
}

func TestExecuteBlock(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(1_000)
	bob := h.Wallet(0)

	good := h.Must(alice.Transfer(bob.Address(), 10, 0))
	receipts, err := h.Exec.ExecuteBlock(h.NextBlock(good))
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, core.ReceiptSuccess, receipts[0].Status)
	h.State.Discard()
	h.Exec.DiscardEvents()

	bad := h.Must(alice.Transfer(bob.Address(), 5_000, 1))
	_, err = h.Exec.ExecuteBlock(h.NextBlock(good, bad))
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestExecutePending(t *testing.T) {
	h := testutil.NewHarness(t)
	alice := h.Wallet(100)
	bob := h.Wallet(0)

	txs := []*core.Transaction{
		h.Must(alice.Transfer(bob.Address(), 60, 0)),
		h.Must(alice.Transfer(bob.Address(), 60, 1)),
		h.Must(alice.Transfer(bob.Address(), 40, 1)),
	}
	receipts, failed := h.RunBlock(txs...)
	require.Len(t, receipts, 2)
	require.Len(t, failed, 1)
	assert.Equal(t, txs[1].ID, failed[0].TxID)
	assert.Zero(t, h.Balance(alice.Address()))
	assert.EqualValues(t, 100, h.Balance(bob.Address()))

	r, err := h.Chain.GetReceipt(txs[1].ID)
	require.NoError(t, err)
	assert.True(t, r.Failed())
}

func TestParamsValidate(t *testing.T) {
	p := vm.DefaultParams()
	require.NoError(t, p.Validate())

	bad := p
	bad.PlatformFeeBps = 10_001
	assert.Error(t, bad.Validate())

	bad = p
	bad.PlatformWallet = "nope"
	assert.Error(t, bad.Validate())

	bad = p
	bad.ProgramID = nil
	assert.Error(t, bad.Validate())
}
