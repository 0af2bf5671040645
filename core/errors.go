package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Node-level validation failures. These never surface as program errors.
var (
	ErrBlockHashMismatch = errors.New("block hash does not match header")
	ErrWrongChain        = errors.New("transaction is for a different chain")
)

// programErrorBase is the first code handed out to program errors. Codes are
// part of the client contract and must never be renumbered.
const programErrorBase = 6000

// ProgramError is a caller-visible rejection reason. Every instruction
// failure that is not an infrastructure fault maps to exactly one of these.
type ProgramError struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

var programErrors []*ProgramError

func newProgramError(name, msg string) *ProgramError {
	e := &ProgramError{
		Code: uint32(programErrorBase + len(programErrors)),
		Name: name,
		Msg:  msg,
	}
	programErrors = append(programErrors, e)
	return e
}

// Declaration order fixes the codes.
var (
	ErrInvalidDiscount      = newProgramError("InvalidDiscount", "Invalid discount percentage")
	ErrInvalidSupply        = newProgramError("InvalidSupply", "Invalid supply amount")
	ErrInvalidExpiry        = newProgramError("InvalidExpiry", "Invalid expiry timestamp")
	ErrDealInactive         = newProgramError("DealInactive", "Deal is not active")
	ErrMaxSupplyReached     = newProgramError("MaxSupplyReached", "Maximum supply reached")
	ErrDealExpired          = newProgramError("DealExpired", "Deal has expired")
	ErrAlreadyRedeemed      = newProgramError("AlreadyRedeemed", "Coupon already redeemed")
	ErrNotOwner             = newProgramError("NotOwner", "Not the owner of this coupon")
	ErrUnauthorizedMerchant = newProgramError("UnauthorizedMerchant", "Unauthorized merchant")
	ErrInvalidRating        = newProgramError("InvalidRating", "Invalid rating value (must be 1-5)")
	ErrCommentTooLong       = newProgramError("CommentTooLong", "Comment too long")
	ErrInvalidPrice         = newProgramError("InvalidPrice", "Invalid price")
	ErrListingInactive      = newProgramError("ListingInactive", "Listing is not active")
	ErrInvalidListing       = newProgramError("InvalidListing", "Invalid listing")
	ErrNoRewardsToClaim     = newProgramError("NoRewardsToClaim", "No rewards to claim")

	ErrInsufficientFunds     = newProgramError("InsufficientFunds", "Insufficient lamports")
	ErrInsufficientPoolFunds = newProgramError("InsufficientPoolFunds", "Rewards pool cannot cover the claim")
	ErrCouponStaked          = newProgramError("CouponStaked", "Coupon is staked")
	ErrCouponListed          = newProgramError("CouponListed", "Coupon has an active listing")
	ErrAccountAlreadyExists  = newProgramError("AccountAlreadyExists", "Account already in use")
	ErrAccountNotFound       = newProgramError("AccountNotFound", "Account does not exist")
	ErrArithmeticOverflow    = newProgramError("ArithmeticOverflow", "Arithmetic overflow")
	ErrStringTooLong         = newProgramError("StringTooLong", "String exceeds its maximum length")
	ErrUnauthorized          = newProgramError("Unauthorized", "Signer is not authorized")
	ErrInvalidAccount        = newProgramError("InvalidAccount", "Account address is invalid")
	ErrInvalidAmount         = newProgramError("InvalidAmount", "Amount must be greater than zero")
)

// ProgramErrors returns every program error in code order.
func ProgramErrors() []*ProgramError {
	out := make([]*ProgramError, len(programErrors))
	copy(out, programErrors)
	return out
}

// AsProgramError extracts the program error from an error chain, if any.
func AsProgramError(err error) (*ProgramError, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
