package consensus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/config"
	"github.com/tolelom/dealchain/consensus"
	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/crypto"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/internal/testutil"
	"github.com/tolelom/dealchain/storage"
	"github.com/tolelom/dealchain/vm"
	"github.com/tolelom/dealchain/wallet"
)

type node struct {
	state   *storage.StateDB
	chain   *core.Blockchain
	mempool *core.Mempool
	emitter *events.Emitter
	poa     *consensus.PoA
}

func newNode(t *testing.T, cfg *config.Config, key crypto.PrivateKey) *node {
	t.Helper()
	db := testutil.NewMemDB()
	n := &node{
		state:   storage.NewStateDB(db),
		chain:   core.NewBlockchain(storage.NewBlockStore(db)),
		mempool: core.NewMempool(cfg.Genesis.ChainID),
		emitter: events.NewEmitter(),
	}
	require.NoError(t, n.chain.Init())
	genesis, err := config.CreateGenesisBlock(cfg, n.state)
	require.NoError(t, err)
	require.NoError(t, n.chain.AddBlock(genesis, nil))

	params, err := cfg.Params()
	require.NoError(t, err)
	exec := vm.NewExecutor(n.state, n.emitter, params)
	n.poa = consensus.New(cfg, n.chain, n.state, n.mempool, exec, n.emitter, key)
	n.poa.SetClock(func() int64 { return testutil.GenesisTime + 10 })
	return n
}

func balance(t *testing.T, n *node, addr string) uint64 {
	t.Helper()
	acc, err := n.state.GetAccount(addr)
	require.NoError(t, err)
	return acc.Balance
}

type network struct {
	cfg       *config.Config
	validator crypto.PrivateKey
	alice     *wallet.Wallet
	bob       *wallet.Wallet
}

func newNetwork(t *testing.T) *network {
	validator, pub, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	alice, err := wallet.Generate("dealchain-poa")
	require.NoError(t, err)
	bob, err := wallet.Generate("dealchain-poa")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Genesis.ChainID = "dealchain-poa"
	cfg.Genesis.Timestamp = testutil.GenesisTime
	cfg.Genesis.Alloc[alice.Address()] = 1_000
	cfg.Validators = []string{pub.String()}
	require.NoError(t, cfg.Validate())
	return &network{cfg: cfg, validator: validator, alice: alice, bob: bob}
}

func TestProduceAndApplyBlock(t *testing.T) {
	nw := newNetwork(t)
	producer := newNode(t, nw.cfg, nw.validator)
	follower := newNode(t, nw.cfg, nw.validator)

	var announced []*core.Block
	producer.poa.OnProduce(func(b *core.Block) { announced = append(announced, b) })
	var commits int
	follower.emitter.Subscribe(events.EventBlockCommit, func(events.Event) { commits++ })

	good, err := nw.alice.Transfer(nw.bob.Address(), 400, 0)
	require.NoError(t, err)
	bad, err := nw.alice.Transfer(nw.bob.Address(), 5_000, 1)
	require.NoError(t, err)
	require.NoError(t, producer.mempool.Add(good))
	require.NoError(t, producer.mempool.Add(bad))

	block, err := producer.poa.ProduceBlock()
	require.NoError(t, err)
	assert.EqualValues(t, 1, block.Header.Height)
	assert.Equal(t, testutil.GenesisTime+10, block.Header.Timestamp)
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, good.ID, block.Transactions[0].ID)
	assert.Zero(t, producer.mempool.Size())
	assert.Equal(t, []*core.Block{block}, announced)

	r, err := producer.chain.GetReceipt(bad.ID)
	require.NoError(t, err)
	assert.True(t, r.Failed())

	require.NoError(t, follower.poa.ApplyBlock(block))
	assert.Equal(t, 1, commits)
	assert.Equal(t, producer.chain.Tip().Hash, follower.chain.Tip().Hash)
	assert.EqualValues(t, 600, balance(t, follower, nw.alice.Address()))
	assert.EqualValues(t, 400, balance(t, follower, nw.bob.Address()))
	assert.Equal(t, producer.state.ComputeRoot(), follower.state.ComputeRoot())

	// Replaying the same block fails on linkage.
	assert.Error(t, follower.poa.ApplyBlock(block))
}

func TestApplyBlock_RejectsTampering(t *testing.T) {
	nw := newNetwork(t)
	producer := newNode(t, nw.cfg, nw.validator)
	follower := newNode(t, nw.cfg, nw.validator)

	tx, err := nw.alice.Transfer(nw.bob.Address(), 100, 0)
	require.NoError(t, err)
	require.NoError(t, producer.mempool.Add(tx))
	block, err := producer.poa.ProduceBlock()
	require.NoError(t, err)

	forged := *block
	header := block.Header
	header.StateRoot = "00"
	forged.Header = header
	assert.ErrorContains(t, follower.poa.ApplyBlock(&forged), "signature")

	// A correctly signed block with the wrong state root is rolled back.
	wrongRoot := core.NewBlockAt(block.Header.ChainID, 1, block.Header.PrevHash, block.Header.Proposer, block.Header.Timestamp, block.Transactions)
	wrongRoot.Header.TxRoot = core.ComputeTxRoot(block.Transactions)
	wrongRoot.Header.StateRoot = "not-the-root"
	wrongRoot.Sign(nw.validator)
	assert.ErrorContains(t, follower.poa.ApplyBlock(wrongRoot), "state root mismatch")
	assert.EqualValues(t, 1_000, balance(t, follower, nw.alice.Address()))
	assert.EqualValues(t, 0, follower.chain.Height())

	require.NoError(t, follower.poa.ApplyBlock(block))
}

func TestProduceBlock_NotProposer(t *testing.T) {
	nw := newNetwork(t)
	other, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	n := newNode(t, nw.cfg, other)

	assert.False(t, n.poa.IsProposer())
	_, err = n.poa.ProduceBlock()
	assert.ErrorIs(t, err, consensus.ErrNotProposer)
}

func TestProduceBlock_ClockNeverRunsBackwards(t *testing.T) {
	nw := newNetwork(t)
	n := newNode(t, nw.cfg, nw.validator)
	n.poa.SetClock(func() int64 { return testutil.GenesisTime - 100 })

	block, err := n.poa.ProduceBlock()
	require.NoError(t, err)
	assert.Equal(t, testutil.GenesisTime, block.Header.Timestamp)
}
