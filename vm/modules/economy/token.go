// Package economy implements the native lamport transfer. It is how wallets
// pay each other and how the rewards pool gets funded.
package economy

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/crypto"
	"github.com/tolelom/dealchain/events"
	"github.com/tolelom/dealchain/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return core.ErrInvalidAmount
	}
	if _, err := crypto.PubKeyFromString(p.To); err != nil {
		return fmt.Errorf("%w: recipient: %v", core.ErrInvalidAccount, err)
	}
	if err := ctx.Transfer(ctx.Signer(), p.To, p.Amount); err != nil {
		return err
	}

	ctx.Emit(events.EventLamportTransfer, map[string]any{
		"from":   ctx.Signer(),
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}
