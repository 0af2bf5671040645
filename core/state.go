package core

// Account is a lamport balance plus the replay-protection nonce of its
// signer. Program-derived addresses also have an Account here: it holds the
// rent deposit of the program account and, for the rewards pool, its funding.
type Account struct {
	Address string `json:"address"` // base58 pubkey
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// State is the full program state. Getters for program accounts return
// ErrNotFound when the address holds no account of that type.
// Implementations must be snapshot-able so the executor can roll back
// failed instructions.
type State interface {
	// Lamport ledger
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	GetRewardsPool(address string) (*RewardsPool, error)
	SetRewardsPool(pool *RewardsPool) error

	GetDeal(address string) (*Deal, error)
	SetDeal(deal *Deal) error

	GetCoupon(address string) (*Coupon, error)
	SetCoupon(coupon *Coupon) error

	GetListing(address string) (*Listing, error)
	SetListing(listing *Listing) error

	GetStakedCoupon(address string) (*StakedCoupon, error)
	SetStakedCoupon(staked *StakedCoupon) error
	DeleteStakedCoupon(address string) error

	GetRating(address string) (*DealRating, error)
	SetRating(rating *DealRating) error

	GetComment(address string) (*Comment, error)
	SetComment(comment *Comment) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
