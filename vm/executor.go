package vm

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/metrics"
)

// Executor applies transactions to the state using the global Handler
// registry. All execution is serialised under one lock, so each instruction
// sees the effects of every instruction before it and nothing else.
type Executor struct {
	mu       sync.Mutex
	state    core.State
	emitter  *events.Emitter
	params   Params
	registry *Registry
	log      *logrus.Entry

	// pending holds events of executed but not yet committed transactions.
	pending []events.Event
}

// NewExecutor creates an Executor with the given state, event emitter and
// program parameters.
func NewExecutor(state core.State, emitter *events.Emitter, params Params) *Executor {
	return &Executor{
		state:    state,
		emitter:  emitter,
		params:   params,
		registry: globalRegistry,
		log:      logrus.StandardLogger().WithField("type", "vm/executor"),
	}
}

// Params returns the program parameters the executor runs with.
func (e *Executor) Params() Params { return e.params }

// State returns the state the executor writes to.
func (e *Executor) State() core.State { return e.state }

// ExecuteBlock applies every transaction of a block received from a peer.
// A failing transaction rejects the whole block; the caller discards state.
func (e *Executor) ExecuteBlock(block *core.Block) ([]*core.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	receipts := make([]*core.Receipt, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if err := e.executeTx(block, tx); err != nil {
			return nil, fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
		receipts = append(receipts, core.NewReceipt(tx, block.Header.Height, nil))
	}
	return receipts, nil
}

// ExecutePending runs candidate transactions for a block being proposed.
// Successful ones are returned for inclusion with their receipts; failed
// ones are reverted individually and reported with failure receipts.
func (e *Executor) ExecutePending(block *core.Block, txs []*core.Transaction) (included []*core.Transaction, receipts, failed []*core.Receipt) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, tx := range txs {
		if err := e.executeTx(block, tx); err != nil {
			e.log.WithFields(logrus.Fields{
				"tx_id": tx.ID,
				"tx":    tx.Type,
				"from":  tx.From,
			}).WithError(err).Debug("transaction rejected")
			failed = append(failed, core.NewReceipt(tx, 0, err))
			continue
		}
		included = append(included, tx)
		receipts = append(receipts, core.NewReceipt(tx, block.Header.Height, nil))
	}
	return included, receipts, failed
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executeTx(block, tx)
}

// Simulate executes tx against the current state and reverts every effect.
// The receipt reports what the transaction would do in block.
func (e *Executor) Simulate(block *core.Block, tx *core.Transaction) (*core.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapID, err := e.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	mark := len(e.pending)
	execErr := e.executeTx(block, tx)
	e.pending = e.pending[:mark]
	if err := e.state.RevertToSnapshot(snapID); err != nil {
		return nil, fmt.Errorf("revert simulation: %w", err)
	}
	return core.NewReceipt(tx, block.Header.Height, execErr), nil
}

// FlushEvents publishes the buffered events of a committed block, followed
// by EventTxExecuted for each receipt and EventTxFailed for each rejection.
func (e *Executor) FlushEvents(block *core.Block, receipts, failed []*core.Receipt) {
	e.mu.Lock()
	evs := e.pending
	e.pending = nil
	e.mu.Unlock()

	if e.emitter == nil {
		for _, ev := range evs {
			observeEvent(ev)
		}
		return
	}
	for _, ev := range evs {
		ev.BlockHeight = block.Header.Height
		observeEvent(ev)
		e.emitter.Emit(ev)
	}
	for _, r := range receipts {
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        r.TxID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(r.Type), "from": r.From, "receipt": r},
		})
	}
	for _, r := range failed {
		e.emitter.Emit(events.Event{
			Type: events.EventTxFailed,
			TxID: r.TxID,
			Data: map[string]any{"type": string(r.Type), "from": r.From, "receipt": r},
		})
	}
}

// DiscardEvents drops buffered events after a block was abandoned.
func (e *Executor) DiscardEvents() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
}

func (e *Executor) executeTx(block *core.Block, tx *core.Transaction) error {
	start := time.Now()
	err := e.runTx(block, tx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if pe, ok := core.AsProgramError(err); ok {
			outcome = pe.Name
		}
	}
	metrics.ObserveInstruction(string(tx.Type), outcome, start)
	return err
}

func (e *Executor) runTx(block *core.Block, tx *core.Transaction) error {
	if tx.ChainID != block.Header.ChainID {
		return core.ErrWrongChain
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	ctx := &Context{State: e.state, Block: block, Tx: tx, Params: e.params}
	if err := e.applyTx(ctx); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}
	e.pending = append(e.pending, ctx.events...)
	return nil
}

// applyTx checks the nonce, deducts the fee, increments the nonce, then
// dispatches to the handler.
func (e *Executor) applyTx(ctx *Context) error {
	tx := ctx.Tx
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("%w: fee %d, balance %d", core.ErrInsufficientFunds, tx.Fee, acc.Balance)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return err
	}
	return e.registry.Execute(tx.Type, ctx, tx.Payload)
}

// observeEvent feeds committed domain events into the business counters.
func observeEvent(ev events.Event) {
	switch ev.Type {
	case events.EventCouponMinted:
		metrics.CouponsMinted.Inc()
	case events.EventCouponSold:
		if v, ok := ev.Data["seller_amount"].(uint64); ok {
			metrics.MarketVolume.WithLabelValues("seller").Add(float64(v))
		}
		if v, ok := ev.Data["fee"].(uint64); ok {
			metrics.MarketVolume.WithLabelValues("platform").Add(float64(v))
		}
	case events.EventRewardsClaimed:
		if v, ok := ev.Data["amount"].(uint64); ok {
			metrics.RewardsPaid.Add(float64(v))
		}
	}
}
