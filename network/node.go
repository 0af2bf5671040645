package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/metrics"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers and manages outgoing connections.
type Node struct {
	nodeID     string
	listenAddr string
	mempool    *core.Mempool
	tlsConfig  *tls.Config // nil -> plain TCP
	maxPeers   int
	log        *logrus.Entry

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr.
// If tlsCfg is non-nil the listener and outgoing connections use TLS.
func NewNode(nodeID, listenAddr string, mempool *core.Mempool, tlsCfg *tls.Config) *Node {
	n := &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		mempool:    mempool,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		log:        logrus.StandardLogger().WithFields(logrus.Fields{"type": "network/node", "node": nodeID}),
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
	n.Handle(MsgTx, n.handleTx)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var (
		ln  net.Listener
		err error
	)
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Addr returns the bound listen address, useful when listening on port 0.
func (n *Node) Addr() string {
	if n.listener == nil {
		return n.listenAddr
	}
	return n.listener.Addr().String()
}

// Stop shuts down the node. Safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		if n.listener != nil {
			n.listener.Close()
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		for _, p := range n.peers {
			p.Close()
		}
	})
}

// AddPeer dials addr, registers the peer and greets it.
func (n *Node) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.register(peer)

	hello, err := json.Marshal(map[string]string{"node_id": n.nodeID})
	if err != nil {
		return err
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		n.log.WithError(err).WithField("peer", id).Warn("send hello")
	}
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// Broadcast sends msg to all connected peers.
func (n *Node) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			n.log.WithError(err).WithField("peer", p.ID).Debug("broadcast")
		}
	}
}

// BroadcastTx serialises tx and sends it to all peers.
func (n *Node) BroadcastTx(tx *core.Transaction) {
	data, err := json.Marshal(tx)
	if err != nil {
		n.log.WithError(err).Error("marshal tx")
		return
	}
	n.Broadcast(Message{Type: MsgTx, Payload: data})
}

// BroadcastBlock serialises block and sends it to all peers.
func (n *Node) BroadcastBlock(block *core.Block) {
	data, err := json.Marshal(block)
	if err != nil {
		n.log.WithError(err).Error("marshal block")
		return
	}
	n.Broadcast(Message{Type: MsgBlock, Payload: data})
}

func (n *Node) register(peer *Peer) {
	n.mu.Lock()
	n.peers[peer.ID] = peer
	count := len(n.peers)
	n.mu.Unlock()
	metrics.PeersConnected.Set(float64(count))
	go n.readLoop(peer)
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.WithError(err).Warn("accept")
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		if n.PeerCount() >= n.maxPeers {
			n.log.WithField("remote", conn.RemoteAddr().String()).Warn("max peers reached, rejecting")
			conn.Close()
			continue
		}
		addr := conn.RemoteAddr().String()
		n.register(NewPeer(addr, addr, conn))
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			n.log.WithFields(logrus.Fields{"peer": peer.ID, "panic": r}).Error("read loop panicked")
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		count := len(n.peers)
		n.mu.Unlock()
		metrics.PeersConnected.Set(float64(count))
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		metrics.P2PMessagesTotal.WithLabelValues(string(msg.Type), strconv.FormatBool(ok)).Inc()
		if !ok {
			n.log.WithFields(logrus.Fields{"peer": peer.ID, "msg": msg.Type}).Debug("no handler")
			continue
		}
		h(peer, msg)
	}
}

func (n *Node) handleTx(peer *Peer, msg Message) {
	var tx core.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		n.log.WithError(err).WithField("peer", peer.ID).Debug("unmarshal tx")
		return
	}
	if err := n.mempool.Add(&tx); err != nil {
		n.log.WithError(err).WithField("tx_id", tx.ID).Debug("mempool add")
		return
	}
	metrics.MempoolSize.Set(float64(n.mempool.Size()))
}
