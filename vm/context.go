package vm

import (
	"errors"
	"fmt"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/events"
)

// Context is passed to every Handler. It exposes the state, the block whose
// timestamp is the program clock, the triggering transaction and the
// program parameters. Events raised through Emit are buffered and only
// published once the instruction succeeds and its block commits.
type Context struct {
	State  core.State
	Block  *core.Block
	Tx     *core.Transaction
	Params Params

	events []events.Event
}

// Now is the program clock in unix seconds.
func (c *Context) Now() int64 { return c.Block.Header.Timestamp }

// Signer returns the address that signed the transaction.
func (c *Context) Signer() string { return c.Tx.From }

// Emit buffers an event for publication after commit.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.events = append(c.events, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

// Transfer moves lamports between two ledger accounts.
func (c *Context) Transfer(from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	src, err := c.State.GetAccount(from)
	if err != nil {
		return err
	}
	if src.Balance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", core.ErrInsufficientFunds, from, src.Balance, amount)
	}
	src.Balance -= amount
	if err := c.State.SetAccount(src); err != nil {
		return err
	}
	dst, err := c.State.GetAccount(to)
	if err != nil {
		return err
	}
	if dst.Balance, err = core.CheckedAdd(dst.Balance, amount); err != nil {
		return err
	}
	return c.State.SetAccount(dst)
}

// FundAccount deposits the rent-exempt minimum for a new program account of
// space bytes at address, paid by payer. Lamports already sitting at the
// address count toward the deposit.
func (c *Context) FundAccount(payer, address string, space int) error {
	acc, err := c.State.GetAccount(address)
	if err != nil {
		return err
	}
	need := core.RentExemptMinimum(space)
	if acc.Balance >= need {
		return nil
	}
	return c.Transfer(payer, address, need-acc.Balance)
}

// CloseAccount sweeps every lamport held at address to recipient.
func (c *Context) CloseAccount(address, recipient string) error {
	acc, err := c.State.GetAccount(address)
	if err != nil {
		return err
	}
	return c.Transfer(address, recipient, acc.Balance)
}

// Balance returns the lamports held at address.
func (c *Context) Balance(address string) (uint64, error) {
	acc, err := c.State.GetAccount(address)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// NotFound maps a storage miss to ErrAccountNotFound and passes other
// errors through.
func NotFound(err error, what, address string) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", core.ErrAccountNotFound, what, address)
	}
	return err
}

// Exists reports whether a lookup succeeded, treating ErrNotFound as absence.
func Exists(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// CheckLen returns ErrStringTooLong when s exceeds max bytes.
func CheckLen(field, s string, max int) error {
	if len(s) > max {
		return fmt.Errorf("%w: %s is %d bytes, max %d", core.ErrStringTooLong, field, len(s), max)
	}
	return nil
}
