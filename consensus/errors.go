package consensus

import "errors"

var (
	ErrUnknownStmtType  = errors.New("unknown statement type")
	ErrNilStatement     = errors.New("statement is nil")
	ErrNilEnvelope      = errors.New("envelope is nil")
	ErrInvalidQuorum    = errors.New("invalid quorum descriptor")
	ErrUnknownQuorum    = errors.New("quorum hash not resolvable")
	ErrStaleStatement   = errors.New("statement is not newer than the recorded one")
	ErrInsaneStatement  = errors.New("statement failed sanity check")
	ErrRecursionTooDeep = errors.New("advanceSlot recursion exceeded limit")
	ErrBadSignature     = errors.New("envelope signature verification failed")
)
