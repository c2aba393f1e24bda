package consensus

import (
	"github.com/ultiledger/go-ultiledger/crypto"
	"github.com/ultiledger/go-ultiledger/log"
	"github.com/ultiledger/go-ultiledger/ultpb"
)

// ValidationResult is the tri-state outcome of validating a candidate
// value: fully valid, invalid, or valid-but-stale (the value was fine
// when nominated but the node can no longer vouch for it, e.g. it
// references ledger state that has since moved on).
type ValidationResult uint8

const (
	ValueValid ValidationResult = iota
	ValueInvalid
	ValueMaybeValid
)

// ValueValidator validates a candidate value handed up from
// nomination (or replayed from another node's statement) before the
// local node votes for it.
type ValueValidator interface {
	Validate(slotIndex uint64, value ultpb.Value) ValidationResult
}

// CompositeCandidateSource stands in for the out-of-scope nomination
// subsystem: it is asked for the best composite candidate value known
// for a slot whenever the ballot protocol needs to bump to a new
// ballot and has nothing else to vote for.
type CompositeCandidateSource interface {
	LatestCompositeCandidate(slotIndex uint64) (ultpb.Value, bool)
}

// Driver is the containing system's collaborator: it supplies
// observability hooks, value validation, and envelope broadcast for a
// BallotState. A BallotState never talks to the network directly; every
// externally visible effect other than its own log lines flows through
// here.
type Driver interface {
	ValueValidator
	CompositeCandidateSource

	// EmitEnvelope is invoked with the latest self-authored envelope once
	// per advanceSlot cascade, and only while the slot is fully
	// validated; intermediate envelopes of a cascade are not passed on,
	// and duplicates are already suppressed.
	EmitEnvelope(env *ultpb.Envelope)

	// Scheduler returns the timer abstraction used for the ballot
	// protocol timer.
	Scheduler() Scheduler

	// StartedBallotProtocol fires the first time this node casts a
	// ballot of its own for a slot.
	StartedBallotProtocol(slotIndex uint64, ballot *ultpb.Ballot)
	// AcceptedBallotPrepared fires whenever p or p' advances.
	AcceptedBallotPrepared(slotIndex uint64, ballot *ultpb.Ballot)
	// ConfirmedBallotPrepared fires whenever h advances.
	ConfirmedBallotPrepared(slotIndex uint64, ballot *ultpb.Ballot)
	// AcceptedCommit fires whenever the accepted-commit range changes.
	AcceptedCommit(slotIndex uint64, ballot *ultpb.Ballot)
	// ValueExternalized fires exactly once per slot, when the slot
	// reaches the EXTERNALIZE phase.
	ValueExternalized(slotIndex uint64, value ultpb.Value)
}

// DefaultDriver is a Driver built from an injected validator, candidate
// source, broadcast channel and scheduler, logging every transition
// through the shared zap-backed logger. When seed is non-empty, every
// envelope it emits is signed with it before reaching the broadcast
// channel, mirroring Engine.broadcastStatement in the teacher's
// consensus package.
type DefaultDriver struct {
	validator ValueValidator
	candidate CompositeCandidateSource
	out       chan *ultpb.Envelope
	scheduler Scheduler
	seed      string
}

func NewDefaultDriver(validator ValueValidator, candidate CompositeCandidateSource, out chan *ultpb.Envelope, scheduler Scheduler, seed string) *DefaultDriver {
	return &DefaultDriver{
		validator: validator,
		candidate: candidate,
		out:       out,
		scheduler: scheduler,
		seed:      seed,
	}
}

func (d *DefaultDriver) Validate(slotIndex uint64, value ultpb.Value) ValidationResult {
	return d.validator.Validate(slotIndex, value)
}

func (d *DefaultDriver) LatestCompositeCandidate(slotIndex uint64) (ultpb.Value, bool) {
	return d.candidate.LatestCompositeCandidate(slotIndex)
}

func (d *DefaultDriver) EmitEnvelope(env *ultpb.Envelope) {
	if d.seed != "" {
		payload, err := ultpb.Encode(env.Statement)
		if err != nil {
			log.Errorw("failed to encode statement for signing", "err", err)
		} else if sig, err := crypto.Sign(d.seed, payload); err != nil {
			log.Errorw("failed to sign self statement", "err", err)
		} else {
			env.Signature = sig
		}
	}
	log.Infow("emitting self statement",
		"nodeID", env.Statement.NodeID,
		"slot", env.Statement.SlotIndex,
		"type", ultpb.StatementType_name[int32(env.Statement.StatementType)],
	)
	select {
	case d.out <- env:
	default:
		log.Warnw("broadcast channel full, dropping self envelope",
			"slot", env.Statement.SlotIndex)
	}
}

func (d *DefaultDriver) Scheduler() Scheduler {
	return d.scheduler
}

func (d *DefaultDriver) StartedBallotProtocol(slotIndex uint64, ballot *ultpb.Ballot) {
	log.Infow("started ballot protocol", "slot", slotIndex, "ballot", ballot.String())
}

func (d *DefaultDriver) AcceptedBallotPrepared(slotIndex uint64, ballot *ultpb.Ballot) {
	log.Infow("accepted ballot prepared", "slot", slotIndex, "ballot", ballot.String())
}

func (d *DefaultDriver) ConfirmedBallotPrepared(slotIndex uint64, ballot *ultpb.Ballot) {
	log.Infow("confirmed ballot prepared", "slot", slotIndex, "ballot", ballot.String())
}

func (d *DefaultDriver) AcceptedCommit(slotIndex uint64, ballot *ultpb.Ballot) {
	log.Infow("accepted commit", "slot", slotIndex, "ballot", ballot.String())
}

func (d *DefaultDriver) ValueExternalized(slotIndex uint64, value ultpb.Value) {
	log.Infow("value externalized", "slot", slotIndex, "value", value)
}
