package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/indexer"
	"github.com/tolelom/dealchain/metrics"
	"github.com/tolelom/dealchain/vm"
)

type method func(h *Handler, req Request) Response

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	exec    *vm.Executor
	state   core.State
	params  vm.Params
	indexer *indexer.Indexer
	chainID string
	now     func() time.Time
	relay   func(*core.Transaction)
	methods map[string]method
}

// NewHandler creates an RPC Handler. State and program parameters are read
// through exec so simulations and queries see the same view.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, exec *vm.Executor, idx *indexer.Indexer, chainID string) *Handler {
	h := &Handler{
		bc:      bc,
		mempool: mempool,
		exec:    exec,
		state:   exec.State(),
		params:  exec.Params(),
		indexer: idx,
		chainID: chainID,
		now:     time.Now,
	}
	h.methods = map[string]method{
		"getBlockHeight": func(h *Handler, req Request) Response { return okResponse(req.ID, h.bc.Height()) },
		"getMempoolSize": func(h *Handler, req Request) Response { return okResponse(req.ID, h.mempool.Size()) },
		"getBlock":       (*Handler).getBlock,
		"getTxReceipt":   (*Handler).getTxReceipt,
		"sendTx":         (*Handler).sendTx,
		"simulateTx":     (*Handler).simulateTx,

		"getBalance":      (*Handler).getBalance,
		"getDeal":         (*Handler).getDeal,
		"getCoupon":       (*Handler).getCoupon,
		"getListing":      (*Handler).getListing,
		"getStakedCoupon": (*Handler).getStakedCoupon,
		"getRating":       (*Handler).getRating,
		"getComment":      (*Handler).getComment,
		"getRewardsPool":  (*Handler).getRewardsPool,
		"pendingRewards":  (*Handler).pendingRewards,
		"deriveAddress":   (*Handler).deriveAddress,

		"getDeals":           (*Handler).getDeals,
		"getDealsByMerchant": indexQuery("merchant", (*indexer.Indexer).DealsByMerchant),
		"getCouponsByOwner":  indexQuery("owner", (*indexer.Indexer).CouponsByOwner),
		"getCouponsByDeal":   indexQuery("deal", (*indexer.Indexer).CouponsByDeal),
		"getCommentsByDeal":  indexQuery("deal", (*indexer.Indexer).CommentsByDeal),
		"getRatingsByDeal":   indexQuery("deal", (*indexer.Indexer).RatingsByDeal),
		"getStakesByStaker":  indexQuery("staker", (*indexer.Indexer).StakesByStaker),
		"getActiveListings":  (*Handler).getActiveListings,

		"getProgramInfo":   (*Handler).getProgramInfo,
		"getProgramErrors": func(h *Handler, req Request) Response { return okResponse(req.ID, core.ProgramErrors()) },
	}
	return h
}

// SetClock replaces the wall clock used to time simulations.
func (h *Handler) SetClock(now func() time.Time) { h.now = now }

// OnAccept registers a callback run for every transaction sendTx admits to
// the mempool, typically gossip to peers.
func (h *Handler) OnAccept(fn func(*core.Transaction)) { h.relay = fn }

// Methods returns the names of every served method.
func (h *Handler) Methods() []string {
	names := make([]string, 0, len(h.methods))
	for name := range h.methods {
		names = append(names, name)
	}
	return names
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	m, ok := h.methods[req.Method]
	if !ok {
		metrics.RPCCallsTotal.WithLabelValues("unknown", "true").Inc()
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
	resp := m(h, req)
	metrics.RPCCallsTotal.WithLabelValues(req.Method, fmt.Sprint(resp.Error != nil)).Inc()
	return resp
}

// bind decodes req.Params into v and checks that every named string field
// is non-empty.
func bind(req Request, v any, required map[string]*string) *Response {
	if len(req.Params) == 0 {
		req.Params = []byte("{}")
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &resp
	}
	for name, field := range required {
		if *field == "" {
			resp := errResponse(req.ID, CodeInvalidParams, name+" is required")
			return &resp
		}
	}
	return nil
}

// stateError maps a state lookup failure onto a response.
func stateError(id any, what string, err error) Response {
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(id, CodeNotFound, what+" not found")
	}
	return errResponse(id, CodeInternalError, err.Error())
}

// rejected maps an instruction failure onto a response carrying the
// program error, if any.
func rejected(id any, err error) Response {
	resp := errResponse(id, CodeRejected, err.Error())
	if pe, ok := core.AsProgramError(err); ok {
		resp.Error.Data = pe
	}
	return resp
}

func (h *Handler) getBlock(req Request) Response {
	var p struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if resp := bind(req, &p, nil); resp != nil {
		return *resp
	}

	var block *core.Block
	var err error
	switch {
	case p.Hash != "":
		block, err = h.bc.GetBlock(p.Hash)
	case p.Height != nil:
		block, err = h.bc.GetBlockByHeight(*p.Height)
	default:
		block = h.bc.Tip()
	}
	if err != nil {
		return stateError(req.ID, "block", err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getTxReceipt(req Request) Response {
	var p struct {
		TxID string `json:"tx_id"`
	}
	if resp := bind(req, &p, map[string]*string{"tx_id": &p.TxID}); resp != nil {
		return *resp
	}
	receipt, err := h.bc.GetReceipt(p.TxID)
	if err != nil {
		if _, pending := h.mempool.Get(p.TxID); pending {
			return okResponse(req.ID, map[string]string{"tx_id": p.TxID, "status": "pending"})
		}
		return stateError(req.ID, "receipt", err)
	}
	return okResponse(req.ID, receipt)
}

func (h *Handler) decodeTx(req Request) (*core.Transaction, *Response) {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, err.Error())
		return nil, &resp
	}
	if tx.ChainID != h.chainID {
		resp := errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
		return nil, &resp
	}
	// The client-provided id is never trusted.
	tx.ID = tx.Hash()
	return &tx, nil
}

func (h *Handler) sendTx(req Request) Response {
	tx, resp := h.decodeTx(req)
	if resp != nil {
		return *resp
	}
	if err := h.mempool.Add(tx); err != nil {
		return rejected(req.ID, err)
	}
	metrics.MempoolSize.Set(float64(h.mempool.Size()))
	if h.relay != nil {
		h.relay(tx)
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

// simulateTx runs a signed transaction against current state in a
// hypothetical next block and reports the receipt without keeping any
// effect.
func (h *Handler) simulateTx(req Request) Response {
	tx, resp := h.decodeTx(req)
	if resp != nil {
		return *resp
	}
	if err := tx.Verify(); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "signature: "+err.Error())
	}

	tip := h.bc.Tip()
	if tip == nil {
		return errResponse(req.ID, CodeInternalError, "chain has no blocks")
	}
	now := h.now().Unix()
	if now < tip.Header.Timestamp {
		now = tip.Header.Timestamp
	}
	block := core.NewBlockAt(h.chainID, tip.Header.Height+1, tip.Hash, "", now, []*core.Transaction{tx})
	receipt, err := h.exec.Simulate(block, tx)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, receipt)
}

func (h *Handler) getProgramInfo(req Request) Response {
	return okResponse(req.ID, programInfo{
		ProgramID:              h.params.ProgramID.String(),
		PlatformWallet:         h.params.PlatformWallet,
		PlatformFeeBps:         h.params.PlatformFeeBps,
		PlatformFeePercent:     bpsPercent(h.params.PlatformFeeBps),
		SettleRewardsOnUnstake: h.params.SettleRewardsOnUnstake,
		Instructions:           vm.Registered(),
	})
}
