package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgramErrorCodes(t *testing.T) {
	// Client-visible codes; the first fifteen follow the original error enum.
	expected := map[*ProgramError]uint32{
		ErrInvalidDiscount:   6000,
		ErrInvalidSupply:     6001,
		ErrInvalidExpiry:     6002,
		ErrDealInactive:      6003,
		ErrMaxSupplyReached:  6004,
		ErrDealExpired:       6005,
		ErrAlreadyRedeemed:   6006,
		ErrNotOwner:          6007,
		ErrInvalidRating:     6009,
		ErrNoRewardsToClaim:  6014,
		ErrInsufficientFunds: 6015,
	}
	for pe, code := range expected {
		assert.Equal(t, code, pe.Code, pe.Name)
	}

	all := ProgramErrors()
	seen := make(map[uint32]bool)
	for i, pe := range all {
		assert.EqualValues(t, 6000+i, pe.Code)
		assert.False(t, seen[pe.Code])
		seen[pe.Code] = true
	}
}

func TestAsProgramError(t *testing.T) {
	wrapped := fmt.Errorf("mint: %w", ErrMaxSupplyReached)
	pe, ok := AsProgramError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "MaxSupplyReached", pe.Name)
	assert.ErrorIs(t, wrapped, ErrMaxSupplyReached)

	_, ok = AsProgramError(ErrNotFound)
	assert.False(t, ok)
}
