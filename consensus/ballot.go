package consensus

import (
	"strings"

	"github.com/ultiledger/go-ultiledger/log"
	"github.com/ultiledger/go-ultiledger/ultpb"
)

// Type aliases for the wire types used throughout the package.
type (
	Statement   = ultpb.Statement
	Prepare     = ultpb.Prepare
	Confirm     = ultpb.Confirm
	Externalize = ultpb.Externalize
	Quorum      = ultpb.Quorum
	Ballot      = ultpb.Ballot
	Envelope    = ultpb.Envelope
)

// Phase is the local ballot protocol state for a slot.
type Phase uint8

const (
	PhasePrepare Phase = iota
	PhaseConfirm
	PhaseExternalize
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "PREPARE"
	case PhaseConfirm:
		return "CONFIRM"
	case PhaseExternalize:
		return "EXTERNALIZE"
	default:
		return "UNKNOWN"
	}
}

// makeBallot builds a new ballot for counter/value, matching the wire
// representation of a (counter, value) pair.
func makeBallot(counter uint32, value ultpb.Value) *Ballot {
	return &Ballot{Counter: counter, Value: value}
}

// compareBallots orders ballots by counter then value; a nil ballot is
// the bottom element.
func compareBallots(lb *Ballot, rb *Ballot) int {
	if lb == nil && rb == nil {
		return 0
	} else if lb == nil && rb != nil {
		return -1
	} else if lb != nil && rb == nil {
		return 1
	}

	if lb.Counter < rb.Counter {
		return -1
	} else if lb.Counter > rb.Counter {
		return 1
	}

	return strings.Compare(lb.Value, rb.Value)
}

// compatibleBallots reports whether lb and rb carry the same value.
func compatibleBallots(lb *Ballot, rb *Ballot) bool {
	if lb == nil || rb == nil {
		return false
	}
	return strings.Compare(lb.Value, rb.Value) == 0
}

// lessAndCompatibleBallots reports lb <= rb and lb ~ rb.
func lessAndCompatibleBallots(lb *Ballot, rb *Ballot) bool {
	return compareBallots(lb, rb) <= 0 && compatibleBallots(lb, rb)
}

// lessAndIncompatibleBallots reports lb <= rb and lb !~ rb.
func lessAndIncompatibleBallots(lb *Ballot, rb *Ballot) bool {
	return compareBallots(lb, rb) <= 0 && !compatibleBallots(lb, rb)
}

// isNewerStatement reports whether rb, a replacement statement from the
// same node, is strictly newer than lb: PREPARE < CONFIRM < EXTERNALIZE,
// and within a variant the (B, P, Q, HC) fields of a PREPARE or the
// (B, PC, HC) fields of a CONFIRM in turn. LC takes no part in the order.
func isNewerStatement(lb *Statement, rb *Statement) bool {
	if lb == nil {
		return rb != nil
	}
	if rb == nil {
		return false
	}
	if lb.StatementType != rb.StatementType {
		return lb.StatementType < rb.StatementType
	}

	switch rb.StatementType {
	case ultpb.StatementType_PREPARE:
		lp := lb.GetPrepare()
		rp := rb.GetPrepare()
		cmp := compareBallots(lp.B, rp.B)
		if cmp != 0 {
			return cmp < 0
		}
		cmpp := compareBallots(lp.P, rp.P)
		if cmpp != 0 {
			return cmpp < 0
		}
		cmpq := compareBallots(lp.Q, rp.Q)
		if cmpq != 0 {
			return cmpq < 0
		}
		return lp.HC < rp.HC
	case ultpb.StatementType_CONFIRM:
		lc := lb.GetConfirm()
		rc := rb.GetConfirm()
		cmp := compareBallots(lc.B, rc.B)
		if cmp != 0 {
			return cmp < 0
		}
		if lc.PC != rc.PC {
			return lc.PC < rc.PC
		}
		return lc.HC < rc.HC
	case ultpb.StatementType_EXTERNALIZE:
		// EXTERNALIZE is absorbing: a node never legitimately issues two
		// different EXTERNALIZE statements, so nothing can be newer.
		return false
	default:
		log.Fatal(ErrUnknownStmtType)
	}
	return false
}
