package interfaces

import "errors"

// Redemption and administration errors. Callers wrap these with context and
// the HTTP layer maps them to status codes with errors.Is.
var (
	ErrUnknownTemplate       = errors.New("unknown template")
	ErrUnsupportedProofKind  = errors.New("unsupported proof kind")
	ErrInvalidIdentityProof  = errors.New("invalid identity proof")
	ErrNullifierAlreadyUsed  = errors.New("identity proof nullifier already used")
	ErrVerifierUnavailable   = errors.New("proof verifier unavailable")
	ErrSigningFailure        = errors.New("signing failed")
	ErrPersistenceFailure    = errors.New("persistence failed")
	ErrMissingDisplayEntries = errors.New("template lacks display entries")
	ErrInvalidTemplate       = errors.New("invalid template")
)
