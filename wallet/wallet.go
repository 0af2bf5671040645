package wallet

import (
	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/crypto"
)

// Wallet holds a key pair bound to one chain and builds signed
// instructions for it. Callers supply the nonce, which must equal the
// account's current nonce at execution time.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
	chainID string
	fee     uint64
}

// New creates a Wallet for chainID from an existing private key.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey { return w.priv }

// Address returns the base58 public key, which is the account address.
func (w *Wallet) Address() string { return w.pub.String() }

// SetFee sets the fee attached to every transaction built afterwards.
func (w *Wallet) SetFee(fee uint64) { w.fee = fee }

// NewTx creates a signed transaction carrying payload.
func (w *Wallet) NewTx(typ core.TxType, nonce uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.Address(), nonce, w.fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer moves lamports to any address, including the rewards pool.
func (w *Wallet) Transfer(to string, amount, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, core.TransferPayload{To: to, Amount: amount})
}

func (w *Wallet) CreateDeal(p core.CreateDealPayload, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxCreateDeal, nonce, p)
}

// UpdateDeal patches a deal; nil arguments leave the field unchanged.
func (w *Wallet) UpdateDeal(deal string, isActive *bool, price *uint64, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxUpdateDeal, nonce, core.UpdateDealPayload{Deal: deal, IsActive: isActive, PriceLamports: price})
}

func (w *Wallet) MintCoupon(deal, metadataURI string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxMintCoupon, nonce, core.MintCouponPayload{Deal: deal, MetadataURI: metadataURI})
}

func (w *Wallet) RedeemCoupon(coupon, deal string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRedeemCoupon, nonce, core.RedeemCouponPayload{Coupon: coupon, Deal: deal})
}

func (w *Wallet) TransferCoupon(coupon, newOwner string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransferCoupon, nonce, core.TransferCouponPayload{Coupon: coupon, NewOwner: newOwner})
}

func (w *Wallet) RateDeal(deal string, rating uint8, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRateDeal, nonce, core.RateDealPayload{Deal: deal, Rating: rating})
}

func (w *Wallet) AddComment(deal string, timestamp int64, content string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxAddComment, nonce, core.AddCommentPayload{Deal: deal, Timestamp: timestamp, Content: content})
}

func (w *Wallet) ListCoupon(coupon string, price, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxListCoupon, nonce, core.ListCouponPayload{Coupon: coupon, PriceLamports: price})
}

func (w *Wallet) DelistCoupon(coupon string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxDelistCoupon, nonce, core.DelistCouponPayload{Coupon: coupon})
}

func (w *Wallet) BuyCoupon(coupon string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxBuyCoupon, nonce, core.BuyCouponPayload{Coupon: coupon})
}

func (w *Wallet) InitRewardsPool(ratePerDay, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxInitRewardsPool, nonce, core.RewardsPoolPayload{RewardRatePerDay: ratePerDay})
}

func (w *Wallet) UpdateRewardsPool(ratePerDay, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxUpdateRewardsPool, nonce, core.RewardsPoolPayload{RewardRatePerDay: ratePerDay})
}

func (w *Wallet) StakeCoupon(coupon string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxStakeCoupon, nonce, core.StakePayload{Coupon: coupon})
}

func (w *Wallet) UnstakeCoupon(coupon string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxUnstakeCoupon, nonce, core.StakePayload{Coupon: coupon})
}

func (w *Wallet) ClaimRewards(coupon string, nonce uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxClaimRewards, nonce, core.StakePayload{Coupon: coupon})
}
