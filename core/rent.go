package core

// Rent parameters. Every program account holds a deposit of
// RentExemptMinimum(space) lamports at its own address; the deposit is
// returned when the account is closed.
const (
	AccountStorageOverhead  = 128
	LamportsPerByteYear     = 3480
	ExemptionThresholdYears = 2
)

// RentExemptMinimum is the deposit an account of space bytes must hold.
func RentExemptMinimum(space int) uint64 {
	return uint64(AccountStorageOverhead+space) * LamportsPerByteYear * ExemptionThresholdYears
}
