package errors

import "errors"

var (
	ErrTitleTooLong          = errors.New("title exceeds maximum length of 100 bytes")
	ErrDescriptionTooLong    = errors.New("description exceeds maximum length of 500 bytes")
	ErrProposalClosed        = errors.New("proposal is already closed")
	ErrProposalExpired       = errors.New("proposal has expired")
	ErrAlreadyVotedYes       = errors.New("voter has already voted yes")
	ErrAlreadyVotedNo        = errors.New("voter has already voted no")
	ErrMaxVotersReached      = errors.New("maximum number of voters reached")
	ErrProposalAlreadyClosed = errors.New("proposal has already been closed")
	ErrUnauthorized          = errors.New("only the proposal author can close the proposal")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrUnderflow             = errors.New("arithmetic underflow")

	ErrInvalidInput        = errors.New("invalid proposal input")
	ErrInvalidIdentity     = errors.New("invalid identity")
	ErrInvalidExpiration   = errors.New("expiration time is outside the allowed proposal duration")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrBallotNotFound      = errors.New("voter has no ballot on this proposal")
	ErrProposalExists      = errors.New("proposal already exists")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrConflict            = errors.New("ledger conflict")
	ErrCorruptRecord       = errors.New("corrupt proposal record")
)
