package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/dealchain/crypto"
)

// TxType identifies the instruction a transaction carries.
type TxType string

const (
	TxTransfer TxType = "transfer"

	// Deal lifecycle
	TxCreateDeal TxType = "create_deal"
	TxUpdateDeal TxType = "update_deal"

	// Coupons
	TxMintCoupon     TxType = "mint_coupon"
	TxRedeemCoupon   TxType = "redeem_coupon"
	TxTransferCoupon TxType = "transfer_coupon"

	// Social
	TxRateDeal   TxType = "rate_deal"
	TxAddComment TxType = "add_comment"

	// Marketplace
	TxListCoupon   TxType = "list_coupon"
	TxDelistCoupon TxType = "delist_coupon"
	TxBuyCoupon    TxType = "buy_coupon"

	// Staking
	TxInitRewardsPool   TxType = "initialize_rewards_pool"
	TxUpdateRewardsPool TxType = "update_rewards_pool"
	TxStakeCoupon       TxType = "stake_coupon"
	TxUnstakeCoupon     TxType = "unstake_coupon"
	TxClaimRewards      TxType = "claim_rewards"
)

// Transaction is the atomic unit of work on the chain: one signed instruction.
// From is the signer's base58 address. Signature covers all fields except
// ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"` // unix nanoseconds, replay window only
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a signing-capable address.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromString(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from: %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves lamports to any address, including program accounts.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// CreateDealPayload opens a new deal owned by the signer.
type CreateDealPayload struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DiscountPercent uint8  `json:"discount_percent"`
	MaxSupply       uint64 `json:"max_supply"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"` // unix seconds
	Category        string `json:"category"`
	PriceLamports   uint64 `json:"price_lamports"`
}

// UpdateDealPayload patches a deal. Nil fields are left unchanged.
type UpdateDealPayload struct {
	Deal          string  `json:"deal"`
	IsActive      *bool   `json:"is_active,omitempty"`
	PriceLamports *uint64 `json:"price_lamports,omitempty"`
}

// MintCouponPayload buys one coupon from a deal.
type MintCouponPayload struct {
	Deal        string `json:"deal"`
	MetadataURI string `json:"metadata_uri"`
}

// RedeemCouponPayload is signed by the deal's merchant.
type RedeemCouponPayload struct {
	Coupon string `json:"coupon"`
	Deal   string `json:"deal"`
}

// TransferCouponPayload hands a coupon to a new owner.
type TransferCouponPayload struct {
	Coupon   string `json:"coupon"`
	NewOwner string `json:"new_owner"`
}

// RateDealPayload records the signer's 1-5 star rating.
type RateDealPayload struct {
	Deal   string `json:"deal"`
	Rating uint8  `json:"rating"`
}

// AddCommentPayload appends a comment. Timestamp is part of the comment's
// address and must be unique per (deal, author).
type AddCommentPayload struct {
	Deal      string `json:"deal"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
}

// ListCouponPayload offers a coupon for resale.
type ListCouponPayload struct {
	Coupon        string `json:"coupon"`
	PriceLamports uint64 `json:"price_lamports"`
}

// DelistCouponPayload withdraws a resale offer.
type DelistCouponPayload struct {
	Coupon string `json:"coupon"`
}

// BuyCouponPayload purchases the active listing of a coupon.
type BuyCouponPayload struct {
	Coupon string `json:"coupon"`
}

// RewardsPoolPayload initialises or re-rates the rewards pool.
type RewardsPoolPayload struct {
	RewardRatePerDay uint64 `json:"reward_rate_per_day"`
}

// StakePayload addresses the coupon for stake, unstake and claim.
type StakePayload struct {
	Coupon string `json:"coupon"`
}
