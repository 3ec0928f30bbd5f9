package program

import "fmt"

// ProgramError is an entry of the program's error table. Codes below 6000 belong
// to the system program and the Anchor framework.
type ProgramError struct {
	Code    uint32
	Name    string
	Message string
}

func (e ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

var (
	ErrAccountAlreadyInUse = ProgramError{0, "AccountAlreadyInUse", "account already in use"}
	ErrConstraintRaw       = ProgramError{2003, "ConstraintRaw", "a raw constraint was violated"}
	ErrAccountNotInit      = ProgramError{3012, "AccountNotInitialized", "the program expected this account to be already initialized"}

	ErrInvalidStatistics            = ProgramError{6000, "InvalidStatistics", "Invalid statistics"}
	ErrCollectionSymbolInvalid      = ProgramError{6001, "CollectionSymbolInvalid", "Invalid collection symbol"}
	ErrVerifiedCreatorsInvalid      = ProgramError{6002, "VerifiedCreatorsInvalid", "Invalid provided creators"}
	ErrCollectionVerificationFailed = ProgramError{6003, "CollectionVerificationFailed", "Failed collection verification"}
	ErrInsufficientActionPoints     = ProgramError{6004, "InsufficientActionPoints", "Not enough action points"}
)

var errorTable = map[uint32]ProgramError{}

func init() {
	for _, e := range []ProgramError{
		ErrAccountAlreadyInUse,
		ErrConstraintRaw,
		ErrAccountNotInit,
		ErrInvalidStatistics,
		ErrCollectionSymbolInvalid,
		ErrVerifiedCreatorsInvalid,
		ErrCollectionVerificationFailed,
		ErrInsufficientActionPoints,
	} {
		errorTable[e.Code] = e
	}
}

// LookupError names a custom error code the deployed program is known to raise.
// Codes outside the table stay unnamed. It is a display aid only; callers get
// the raw code on the submit error either way.
func LookupError(code uint32) (ProgramError, bool) {
	e, ok := errorTable[code]

	return e, ok
}
