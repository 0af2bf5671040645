package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/storage"
	"github.com/tolelom/dealchain/vm"
	"github.com/tolelom/dealchain/wallet"

	// Instruction handlers register themselves in init().
	_ "github.com/tolelom/dealchain/vm/modules/coupon"
	_ "github.com/tolelom/dealchain/vm/modules/deal"
	_ "github.com/tolelom/dealchain/vm/modules/economy"
	_ "github.com/tolelom/dealchain/vm/modules/market"
	_ "github.com/tolelom/dealchain/vm/modules/social"
	_ "github.com/tolelom/dealchain/vm/modules/staking"
)

// ChainID is the chain every harness runs.
const ChainID = "dealchain-test"

// GenesisTime is the harness clock at height 0 (2024-01-01T00:00:00Z).
const GenesisTime int64 = 1_704_067_200

// Harness runs transactions one block at a time over in-memory storage
// with a controllable clock.
type Harness struct {
	t testing.TB

	DB      *MemDB
	State   *storage.StateDB
	Emitter *events.Emitter
	Exec    *vm.Executor
	Chain   *core.Blockchain
	Params  vm.Params

	// Now is the timestamp of the next block.
	Now int64
}

// NewHarness builds a harness with default program parameters.
func NewHarness(t testing.TB) *Harness {
	return NewHarnessWithParams(t, vm.DefaultParams())
}

// NewHarnessWithParams builds a harness running params.
func NewHarnessWithParams(t testing.TB, params vm.Params) *Harness {
	t.Helper()
	db := NewMemDB()
	h := &Harness{
		t:       t,
		DB:      db,
		State:   storage.NewStateDB(db),
		Emitter: events.NewEmitter(),
		Chain:   core.NewBlockchain(storage.NewBlockStore(db)),
		Params:  params,
		Now:     GenesisTime,
	}
	h.Exec = vm.NewExecutor(h.State, h.Emitter, params)

	require.NoError(t, h.Chain.Init())
	genesis := core.NewBlockAt(ChainID, 0, "", "", GenesisTime, nil)
	genesis.Hash = genesis.ComputeHash()
	require.NoError(t, h.Chain.AddBlock(genesis, nil))
	return h
}

// Advance moves the clock forward by seconds.
func (h *Harness) Advance(seconds int64) { h.Now += seconds }

// Fund credits lamports to address directly in committed state.
func (h *Harness) Fund(address string, lamports uint64) {
	h.t.Helper()
	acc, err := h.State.GetAccount(address)
	require.NoError(h.t, err)
	acc.Balance += lamports
	require.NoError(h.t, h.State.SetAccount(acc))
	require.NoError(h.t, h.State.Commit())
}

// Wallet returns a new wallet funded with lamports.
func (h *Harness) Wallet(lamports uint64) *wallet.Wallet {
	h.t.Helper()
	w, err := wallet.Generate(ChainID)
	require.NoError(h.t, err)
	if lamports > 0 {
		h.Fund(w.Address(), lamports)
	}
	return w
}

// Nonce returns the next nonce of w.
func (h *Harness) Nonce(w *wallet.Wallet) uint64 {
	h.t.Helper()
	acc, err := h.State.GetAccount(w.Address())
	require.NoError(h.t, err)
	return acc.Nonce
}

// Balance returns the lamports held at address.
func (h *Harness) Balance(address string) uint64 {
	h.t.Helper()
	acc, err := h.State.GetAccount(address)
	require.NoError(h.t, err)
	return acc.Balance
}

// Must unwraps a wallet builder result.
func (h *Harness) Must(tx *core.Transaction, err error) *core.Transaction {
	h.t.Helper()
	require.NoError(h.t, err)
	return tx
}

// NextBlock returns an empty block at the next height stamped with Now.
func (h *Harness) NextBlock(txs ...*core.Transaction) *core.Block {
	tip := h.Chain.Tip()
	return core.NewBlockAt(ChainID, tip.Header.Height+1, tip.Hash, "", h.Now, txs)
}

// Run executes tx alone in the next block. On success the block is
// appended, state committed and events published; on failure state is
// unchanged and the instruction error is returned.
func (h *Harness) Run(tx *core.Transaction) error {
	h.t.Helper()
	block := h.NextBlock(tx)
	if err := h.Exec.ExecuteTx(block, tx); err != nil {
		h.Exec.FlushEvents(block, nil, []*core.Receipt{core.NewReceipt(tx, 0, err)})
		return err
	}
	h.commit(block, []*core.Receipt{core.NewReceipt(tx, block.Header.Height, nil)}, nil)
	return nil
}

// MustRun is Run that fails the test on error.
func (h *Harness) MustRun(tx *core.Transaction) {
	h.t.Helper()
	require.NoError(h.t, h.Run(tx))
}

// RunBlock proposes txs together in the next block the way a validator
// does: failures are dropped and reported, the rest commit.
func (h *Harness) RunBlock(txs ...*core.Transaction) (receipts, failed []*core.Receipt) {
	h.t.Helper()
	block := h.NextBlock()
	included, receipts, failed := h.Exec.ExecutePending(block, txs)
	block.Transactions = included
	block.Header.TxRoot = core.ComputeTxRoot(included)
	h.commit(block, receipts, failed)
	return receipts, failed
}

func (h *Harness) commit(block *core.Block, receipts, failed []*core.Receipt) {
	h.t.Helper()
	block.Header.StateRoot = h.State.ComputeRoot()
	block.Hash = block.ComputeHash()
	require.NoError(h.t, h.Chain.AddBlock(block, receipts))
	require.NoError(h.t, h.State.Commit())
	for _, r := range failed {
		require.NoError(h.t, h.Chain.RecordFailure(r))
	}
	h.Exec.FlushEvents(block, receipts, failed)
}
