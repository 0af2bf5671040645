package core

import (
	"encoding/json"
	"time"

	"github.com/tolelom/dealchain/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
// Timestamp is the program clock: every instruction in the block observes
// it as "now", in unix seconds.
type BlockHeader struct {
	ChainID   string `json:"chain_id"`
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"`
	TxRoot    string `json:"tx_root"`
	Timestamp int64  `json:"timestamp"`
	Proposer  string `json:"proposer"` // base58 pubkey
}

// Block is an ordered batch of successfully executed transactions.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs the block with the proposer's private key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks the hash and the signature against the given public key.
func (b *Block) Verify(pub crypto.PublicKey) error {
	if b.Hash != b.ComputeHash() {
		return ErrBlockHashMismatch
	}
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, tx.ID...)
	}
	return crypto.Hash(ids)
}

// NewBlock creates an unsigned block stamped with the current wall clock.
func NewBlock(chainID string, height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return NewBlockAt(chainID, height, prevHash, proposer, time.Now().Unix(), txs)
}

// NewBlockAt creates an unsigned block with an explicit program clock.
func NewBlockAt(chainID string, height int64, prevHash, proposer string, unixSeconds int64, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			ChainID:   chainID,
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: unixSeconds,
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
