package vm

import (
	"fmt"

	"github.com/tolelom/dealchain/crypto"
)

// Default program parameters.
const (
	DefaultProgramID      = "9KXygjHvLprtTUJjd2wtK7WZXTRfNpUwEQy8pnivQPVF"
	DefaultPlatformWallet = "9ufHaK4BKAbyMqGnDraystxDfQEohjGR4K2TfRPGKvTe"
	DefaultPlatformFeeBps = 250
)

// Params are the chain-wide program parameters. They are fixed at genesis;
// every node of a network must run with the same values.
type Params struct {
	// ProgramID is the key every program-derived address is derived under.
	ProgramID crypto.PublicKey
	// PlatformWallet receives the marketplace fee.
	PlatformWallet string
	// PlatformFeeBps is the marketplace fee in basis points.
	PlatformFeeBps uint64
	// SettleRewardsOnUnstake pays pending rewards on unstake instead of
	// forfeiting them.
	SettleRewardsOnUnstake bool
}

// DefaultParams returns the mainline program parameters.
func DefaultParams() Params {
	return Params{
		ProgramID:      crypto.MustPubKey(DefaultProgramID),
		PlatformWallet: DefaultPlatformWallet,
		PlatformFeeBps: DefaultPlatformFeeBps,
	}
}

// Validate rejects parameter sets the program cannot run with.
func (p Params) Validate() error {
	if len(p.ProgramID) != crypto.PublicKeySize {
		return fmt.Errorf("program id must be %d bytes", crypto.PublicKeySize)
	}
	if _, err := crypto.PubKeyFromString(p.PlatformWallet); err != nil {
		return fmt.Errorf("platform wallet: %w", err)
	}
	if p.PlatformFeeBps > 10_000 {
		return fmt.Errorf("platform fee %d bps exceeds 100%%", p.PlatformFeeBps)
	}
	return nil
}
