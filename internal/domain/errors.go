package domain

import "errors"

// Domain errors. Services wrap these in pkg/errors.AppError so the HTTP
// layer can classify them while callers can still match with errors.Is.
var (
	ErrInvalidIdentity     = errors.New("identity assertion rejected")
	ErrInvalidWallet       = errors.New("wallet address missing or invalid")
	ErrMalformedCredential = errors.New("credential malformed")
	ErrCredentialExpired   = errors.New("credential expired")
	ErrCredentialNotActive = errors.New("credential not recognized or not active")

	ErrBallotNotFound       = errors.New("ballot not found")
	ErrBallotNotOpen        = errors.New("ballot not open")
	ErrBallotStillOpen      = errors.New("ballot still open")
	ErrAlreadyVoted         = errors.New("already voted")
	ErrInstitutionMismatch  = errors.New("institution mismatch")
	ErrCandidateNotOnBallot = errors.New("candidate not part of ballot")
	ErrCandidateInvalid     = errors.New("candidate invalid")
	ErrEmptySelection       = errors.New("empty selection")
	ErrMultipleSelection    = errors.New("multiple selection not allowed")
	ErrCastInProgress       = errors.New("cast already in progress")

	ErrResultNotFound = errors.New("result not found")
)
