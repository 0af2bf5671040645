// Package consensus implements Proof-of-Authority block production.
// Validators propose blocks in round-robin order. Each block is signed by
// the proposer; other nodes verify the signature before accepting the block.
package consensus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/dealchain/config"
	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/crypto"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/metrics"
	"github.com/tolelom/dealchain/storage"
	"github.com/tolelom/dealchain/vm"
)

// ErrNotProposer is returned by ProduceBlock outside this node's turn.
var ErrNotProposer = errors.New("not the proposer for this round")

// PoA is the Proof-of-Authority consensus engine. It is the only writer of
// committed state: both locally produced and synced blocks go through it.
type PoA struct {
	cfg     *config.Config
	bc      *core.Blockchain
	state   *storage.StateDB
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	privKey crypto.PrivateKey
	pubKey  crypto.PublicKey
	log     *logrus.Entry

	// clock returns the wall clock in unix seconds.
	clock func() int64
	// announce, if set, gossips every locally produced block.
	announce func(*core.Block)

	// mu serialises block production and block application.
	mu sync.Mutex
}

// New creates a PoA engine for the local validator identified by privKey.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state *storage.StateDB,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
) *PoA {
	return &PoA{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		privKey: privKey,
		pubKey:  privKey.Public(),
		log:     logrus.StandardLogger().WithField("type", "consensus/poa"),
		clock:   func() int64 { return time.Now().Unix() },
	}
}

// SetClock replaces the wall clock used to stamp new blocks.
func (p *PoA) SetClock(clock func() int64) { p.clock = clock }

// OnProduce registers a callback run after each locally produced block.
func (p *PoA) OnProduce(fn func(*core.Block)) { p.announce = fn }

// IsProposer reports whether this node should propose the next block.
func (p *PoA) IsProposer() bool {
	if len(p.cfg.Validators) == 0 {
		return false
	}
	nextHeight := p.bc.Height() + 1
	idx := int(nextHeight) % len(p.cfg.Validators)
	return p.cfg.Validators[idx] == p.pubKey.String()
}

// ProduceBlock builds, executes, signs and commits the next block. Pending
// transactions that fail are left out of the block, get a failed receipt
// and are dropped from the mempool.
func (p *PoA) ProduceBlock() (*core.Block, error) {
	if !p.IsProposer() {
		return nil, ErrNotProposer
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	limit := p.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = 500
	}
	candidates := p.mempool.Pending(limit)

	tip := p.bc.Tip()
	prevHash, nextHeight := config.GenesisHash, int64(1)
	now := p.clock()
	if tip != nil {
		prevHash = tip.Hash
		nextHeight = tip.Header.Height + 1
		if now < tip.Header.Timestamp {
			now = tip.Header.Timestamp
		}
	}

	block := core.NewBlockAt(p.cfg.Genesis.ChainID, nextHeight, prevHash, p.pubKey.String(), now, nil)
	included, receipts, failed := p.exec.ExecutePending(block, candidates)
	block.Transactions = included
	block.Header.TxRoot = core.ComputeTxRoot(included)

	// Root is computed from the write buffer before flushing so a failed
	// AddBlock leaves persisted state untouched.
	block.Header.StateRoot = p.state.ComputeRoot()
	block.Sign(p.privKey)

	if err := p.bc.AddBlock(block, receipts); err != nil {
		p.state.Discard()
		p.exec.DiscardEvents()
		return nil, fmt.Errorf("add block: %w", err)
	}
	if err := p.state.Commit(); err != nil {
		p.log.WithError(err).WithField("height", block.Header.Height).Fatal("block stored but state commit failed")
	}
	for _, r := range failed {
		if err := p.bc.RecordFailure(r); err != nil {
			p.log.WithError(err).WithField("tx_id", r.TxID).Warn("store failed receipt")
		}
	}

	p.finish(block, receipts, failed)

	done := make([]string, 0, len(candidates))
	for _, tx := range candidates {
		done = append(done, tx.ID)
	}
	p.mempool.Remove(done)
	metrics.MempoolSize.Set(float64(p.mempool.Size()))
	if p.announce != nil {
		p.announce(block)
	}
	return block, nil
}

// ApplyBlock executes a block received from a peer, checks its state root
// and commits it. Any failure leaves state as it was.
func (p *PoA) ApplyBlock(block *core.Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ValidateBlock(block); err != nil {
		return err
	}
	receipts, err := p.exec.ExecuteBlock(block)
	if err != nil {
		p.state.Discard()
		p.exec.DiscardEvents()
		return fmt.Errorf("execute block %d: %w", block.Header.Height, err)
	}
	if root := p.state.ComputeRoot(); block.Header.StateRoot != root {
		p.state.Discard()
		p.exec.DiscardEvents()
		return fmt.Errorf("block %d state root mismatch: computed %s want %s", block.Header.Height, root, block.Header.StateRoot)
	}
	if err := p.bc.AddBlock(block, receipts); err != nil {
		p.state.Discard()
		p.exec.DiscardEvents()
		return fmt.Errorf("add block: %w", err)
	}
	if err := p.state.Commit(); err != nil {
		p.log.WithError(err).WithField("height", block.Header.Height).Fatal("synced block stored but state commit failed")
	}
	p.finish(block, receipts, nil)

	ids := make([]string, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = tx.ID
	}
	p.mempool.Remove(ids)
	return nil
}

func (p *PoA) finish(block *core.Block, receipts, failed []*core.Receipt) {
	p.exec.FlushEvents(block, receipts, failed)
	if p.emitter != nil {
		p.emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: block.Header.Height,
			Data: map[string]any{
				"hash":      block.Hash,
				"txs":       len(block.Transactions),
				"failed":    len(failed),
				"timestamp": block.Header.Timestamp,
			},
		})
	}
	metrics.BlockHeight.Set(float64(block.Header.Height))
	metrics.BlockTransactions.Observe(float64(len(block.Transactions)))
	p.log.WithFields(logrus.Fields{
		"height": block.Header.Height,
		"hash":   block.Hash,
		"txs":    len(block.Transactions),
		"failed": len(failed),
	}).Info("block committed")
}

// ValidateBlock checks chain id, proposer rotation, signature and linkage.
func (p *PoA) ValidateBlock(block *core.Block) error {
	if len(p.cfg.Validators) == 0 {
		return errors.New("no validators configured")
	}
	if block.Header.ChainID != p.cfg.Genesis.ChainID {
		return fmt.Errorf("chain id mismatch: got %q want %q", block.Header.ChainID, p.cfg.Genesis.ChainID)
	}
	idx := int(block.Header.Height) % len(p.cfg.Validators)
	expected := p.cfg.Validators[idx]
	if block.Header.Proposer != expected {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, expected)
	}

	pub, err := crypto.PubKeyFromString(block.Header.Proposer)
	if err != nil {
		return fmt.Errorf("invalid proposer pubkey: %w", err)
	}
	if err := block.Verify(pub); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}
	if block.Header.TxRoot != core.ComputeTxRoot(block.Transactions) {
		return errors.New("tx root mismatch")
	}

	tip := p.bc.Tip()
	if tip == nil {
		if !config.IsGenesisHash(block.Header.PrevHash) {
			return errors.New("first block must reference genesis prev-hash")
		}
		return nil
	}
	if block.Header.PrevHash != tip.Hash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
	}
	if block.Header.Height != tip.Header.Height+1 {
		return fmt.Errorf("height mismatch: got %d want %d", block.Header.Height, tip.Header.Height+1)
	}
	return nil
}

// Run starts the block-production loop with the given interval. It blocks
// until done is closed.
func (p *PoA) Run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !p.IsProposer() {
				continue
			}
			if _, err := p.ProduceBlock(); err != nil {
				p.log.WithError(err).Warn("produce block")
			}
		}
	}
}
