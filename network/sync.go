package network

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/dealchain/core"
)

const (
	syncBatch    = 50
	maxSyncBatch = 200
)

// GetBlocksRequest asks a peer for blocks starting at FromHeight.
type GetBlocksRequest struct {
	FromHeight int64 `json:"from_height"`
	Limit      int   `json:"limit"`
}

// BlocksResponse carries a batch of blocks.
type BlocksResponse struct {
	Blocks []*core.Block `json:"blocks"`
}

// BlockApplier validates, executes and commits a block from a peer.
type BlockApplier interface {
	ApplyBlock(block *core.Block) error
}

// Syncer handles block synchronisation and gossip between nodes.
type Syncer struct {
	node    *Node
	bc      *core.Blockchain
	applier BlockApplier
	log     *logrus.Entry
}

// NewSyncer creates a Syncer that requests missing blocks from peers and
// applies gossiped blocks through applier.
func NewSyncer(node *Node, bc *core.Blockchain, applier BlockApplier) *Syncer {
	s := &Syncer{
		node:    node,
		bc:      bc,
		applier: applier,
		log:     logrus.StandardLogger().WithField("type", "network/sync"),
	}
	node.Handle(MsgHello, s.handleHello)
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	node.Handle(MsgBlock, s.handleBlock)
	return s
}

func (s *Syncer) handleHello(peer *Peer, _ Message) {
	s.SyncWithPeer(peer)
}

// SyncWithPeer requests missing blocks from the given peer.
func (s *Syncer) SyncWithPeer(peer *Peer) {
	if err := s.RequestBlocks(peer, s.bc.Height()+1); err != nil {
		s.log.WithError(err).WithField("peer", peer.ID).Warn("request blocks")
	}
}

// RequestBlocks asks peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight int64) error {
	req, err := json.Marshal(GetBlocksRequest{FromHeight: fromHeight, Limit: syncBatch})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Limit <= 0 || req.Limit > maxSyncBatch {
		req.Limit = syncBatch
	}
	blocks := make([]*core.Block, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+int64(req.Limit); h++ {
		b, err := s.bc.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		s.log.WithError(err).Error("marshal blocks response")
		return
	}
	if err := peer.Send(Message{Type: MsgBlocks, Payload: data}); err != nil {
		s.log.WithError(err).WithField("peer", peer.ID).Warn("send blocks")
	}
}

func (s *Syncer) handleBlocks(peer *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		if b.Header.Height <= s.bc.Height() {
			continue
		}
		if err := s.applier.ApplyBlock(b); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"peer":   peer.ID,
				"height": b.Header.Height,
			}).Warn("apply synced block")
			return
		}
	}
	if len(resp.Blocks) >= syncBatch {
		s.SyncWithPeer(peer)
	}
}

// handleBlock applies a freshly produced block announced by its proposer.
// A gap triggers a range sync instead.
func (s *Syncer) handleBlock(peer *Peer, msg Message) {
	var b core.Block
	if err := json.Unmarshal(msg.Payload, &b); err != nil {
		return
	}
	switch h := s.bc.Height(); {
	case b.Header.Height <= h:
		return
	case b.Header.Height > h+1:
		s.SyncWithPeer(peer)
		return
	}
	if err := s.applier.ApplyBlock(&b); err != nil {
		s.log.WithError(err).WithField("height", b.Header.Height).Warn("apply gossiped block")
	}
}
