package consensus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deckarep/golang-set"

	"github.com/ultiledger/go-ultiledger/log"
	"github.com/ultiledger/go-ultiledger/ultpb"
)

// baseBallotTimer is the per-counter increment of the ballot protocol
// timer; the timer for ballot counter n is armed for n*baseBallotTimer.
const baseBallotTimer = time.Second

// MaxAdvanceSlotRecursion bounds how many times advanceSlot may
// re-enter itself while state keeps changing within a single
// ProcessEnvelope call, guarding against runaway recursion if the
// attempt steps somehow never reach a fixed point.
const MaxAdvanceSlotRecursion = 50

// BallotState is the per-slot ballot protocol state machine: the
// PREPARE/CONFIRM/EXTERNALIZE phase, the five ballot variables
// (b, p, p', h, c), and the bookkeeping needed to run federated voting
// over the statements received so far. It has no knowledge of the
// network or the clock -- those are reached through localNode and
// driver; diagnostics go straight to the log package.
type BallotState struct {
	// mu serializes every access to the fields below: ProcessEnvelope
	// and Nudge are meant to be called from whichever single goroutine
	// owns the slot, but the armed ballot timer fires its callback on
	// its own goroutine and touches the same state.
	mu sync.Mutex

	slotIndex uint64
	localNode *LocalNode
	driver    Driver

	phase Phase

	b      *Ballot // current ballot
	p      *Ballot // highest accepted-prepared ballot
	pPrime *Ballot // next highest accepted-prepared ballot, incompatible with p
	h      *Ballot // highest confirmed-prepared ballot
	c      *Ballot // low bound of the accepted commit range

	latestEnvelopes map[string]*Envelope
	quorumOf        map[string]*ultpb.Quorum

	heardFromQuorum bool

	// fullyValidated tracks whether every value this node has voted for
	// or accepted so far was ValueValid rather than ValueMaybeValid.
	// Once a maybe-valid value slips in, self-emission is suppressed;
	// only SetStateFromEnvelope sets this flag back to true.
	fullyValidated bool

	// lastEmitted is the last statement this node recorded as its own
	// in latestEnvelopes, updated every time createStatement produces
	// something newer than what's there, regardless of whether it ever
	// reaches the driver. lastBroadcast is the subset of lastEmitted
	// values that actually made it to EmitEnvelope, used to dedupe the
	// final flush against whatever was last actually sent.
	lastEmitted   *Envelope
	lastBroadcast *Envelope

	advanceDepth int
}

func NewBallotState(slotIndex uint64, localNode *LocalNode, driver Driver) *BallotState {
	return &BallotState{
		slotIndex:       slotIndex,
		localNode:       localNode,
		driver:          driver,
		phase:           PhasePrepare,
		fullyValidated:  true,
		latestEnvelopes: make(map[string]*Envelope),
		quorumOf:        make(map[string]*ultpb.Quorum),
	}
}

// statements projects latestEnvelopes down to the map federated voting
// operates over.
func (bs *BallotState) statements() map[string]*Statement {
	stmts := make(map[string]*Statement, len(bs.latestEnvelopes))
	for node, env := range bs.latestEnvelopes {
		stmts[node] = env.Statement
	}
	return stmts
}

// ProcessEnvelope ingests a single envelope: sanity-checks it,
// enforces per-sender monotonicity, validates its value, records it,
// and finally runs advanceSlot to let federated voting react.
func (bs *BallotState) ProcessEnvelope(env *Envelope, quorumForSender *ultpb.Quorum) error {
	if env == nil || env.Statement == nil {
		return ErrNilEnvelope
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	stmt := env.Statement

	if !isStatementSane(stmt) {
		return ErrInsaneStatement
	}

	if bs.phase == PhaseExternalize {
		// once externalized, a statement whose ballot is incompatible
		// with the externalized value is rejected as invalid.
		if !compatibleBallots(bs.c, getStatementBallot(stmt)) {
			return fmt.Errorf("statement from %s is incompatible with the externalized value", stmt.NodeID)
		}
	}

	if prev, ok := bs.latestEnvelopes[stmt.NodeID]; ok {
		if !isNewerStatement(prev.Statement, stmt) {
			return ErrStaleStatement
		}
	}

	switch bs.validateStatementValue(stmt) {
	case ValueInvalid:
		return fmt.Errorf("statement from %s carries an invalid value", stmt.NodeID)
	case ValueMaybeValid:
		log.Warnw("statement value is only maybe-valid, accepting for bookkeeping", "node", stmt.NodeID)
		bs.fullyValidated = false
	}

	bs.latestEnvelopes[stmt.NodeID] = env
	if quorumForSender != nil {
		bs.quorumOf[stmt.NodeID] = quorumForSender
	}

	bs.advanceDepth = 0
	if err := bs.advanceSlot(stmt); err != nil {
		return err
	}
	bs.sendLatestEnvelope()
	return nil
}

// validateStatementValue asks the driver to validate the value central
// to stmt, tri-state.
func (bs *BallotState) validateStatementValue(stmt *Statement) ValidationResult {
	b := getStatementBallot(stmt)
	if b == nil {
		return ValueInvalid
	}
	return bs.driver.Validate(bs.slotIndex, b.Value)
}

// getStatementBallot extracts the statement's working ballot B for
// every variant.
func getStatementBallot(stmt *Statement) *Ballot {
	switch stmt.StatementType {
	case ultpb.StatementType_PREPARE:
		return stmt.GetPrepare().B
	case ultpb.StatementType_CONFIRM:
		return stmt.GetConfirm().B
	case ultpb.StatementType_EXTERNALIZE:
		return stmt.GetExternalize().B
	default:
		return nil
	}
}

// isStatementSane performs the structural checks a statement must
// pass before it is even considered for federated voting.
func isStatementSane(stmt *Statement) bool {
	if stmt == nil || stmt.NodeID == "" {
		return false
	}
	switch stmt.StatementType {
	case ultpb.StatementType_PREPARE:
		p := stmt.GetPrepare()
		if p == nil || p.B == nil || p.B.Counter == 0 {
			return false
		}
		if p.P != nil && compareBallots(p.P, p.B) > 0 {
			return false
		}
		if p.Q != nil && p.P == nil {
			return false
		}
		if p.Q != nil && compareBallots(p.Q, p.P) > 0 {
			return false
		}
		if p.LC > p.HC {
			return false
		}
		if p.HC > p.B.Counter {
			return false
		}
		return true
	case ultpb.StatementType_CONFIRM:
		c := stmt.GetConfirm()
		if c == nil || c.B == nil || c.B.Counter == 0 {
			return false
		}
		if c.LC > c.HC || c.HC > c.B.Counter || c.PC > c.B.Counter {
			return false
		}
		return true
	case ultpb.StatementType_EXTERNALIZE:
		e := stmt.GetExternalize()
		if e == nil || e.B == nil || e.B.Counter == 0 {
			return false
		}
		if e.HC < e.B.Counter {
			return false
		}
		return true
	default:
		return false
	}
}

// advanceSlot runs the four attempt steps, in order, followed by the
// bump rule and the heard-from-quorum check, re-entering itself while
// any step makes progress, bounded by MaxAdvanceSlotRecursion.
func (bs *BallotState) advanceSlot(hint *Statement) error {
	if bs.advanceDepth >= MaxAdvanceSlotRecursion {
		log.Errorw("advanceSlot recursion limit reached", "slot", bs.slotIndex)
		return ErrRecursionTooDeep
	}
	bs.advanceDepth++
	defer func() { bs.advanceDepth-- }()

	didWork := false
	if bs.attemptAcceptPrepared(hint) {
		didWork = true
	}
	if bs.attemptConfirmPrepared(hint) {
		didWork = true
	}
	if bs.attemptAcceptCommit(hint) {
		didWork = true
	}
	if bs.attemptConfirmCommit(hint) {
		didWork = true
	}

	// The bump rule and the heard-from-quorum check only run once per
	// top-level advanceSlot call, at the outermost recursion level --
	// running them at every level would let a bump fired deep in the
	// recursion mask progress the shallower levels could still make.
	if bs.advanceDepth == 1 {
		for bs.attemptBump() {
			didWork = true
		}
		bs.checkHeardFromQuorum()
	}

	if didWork {
		bs.emitCurrentStateStatement()
		return bs.advanceSlot(hint)
	}
	return nil
}

// getPrepareCandidates gathers the ballots worth testing for
// accept-prepared, preserving each candidate's own value rather than
// coercing it to the local node's working value -- a peer's ballot is
// only ever a useful candidate if it keeps the value that peer actually
// voted for. Starting from the hint statement's own ballots, it pulls in
// every ballot recorded in latestEnvelopes that is no higher than and
// compatible with one of those, mirroring
// BallotProtocol::getPrepareCandidates.
func (bs *BallotState) getPrepareCandidates(hint *Statement) []*Ballot {
	if hint == nil {
		return nil
	}

	var topVotes []*Ballot
	switch hint.StatementType {
	case ultpb.StatementType_PREPARE:
		p := hint.GetPrepare()
		topVotes = append(topVotes, p.B)
		if p.P != nil {
			topVotes = append(topVotes, p.P)
		}
		if p.Q != nil {
			topVotes = append(topVotes, p.Q)
		}
	case ultpb.StatementType_CONFIRM:
		c := hint.GetConfirm()
		topVotes = append(topVotes, makeBallot(c.PC, c.B.Value), makeBallot(maxBallotCounter, c.B.Value))
	case ultpb.StatementType_EXTERNALIZE:
		e := hint.GetExternalize()
		topVotes = append(topVotes, makeBallot(maxBallotCounter, e.B.Value))
	default:
		return nil
	}

	cands := make(map[string]*Ballot)
	add := func(b *Ballot) {
		if b != nil {
			cands[ballotKey(b)] = b
		}
	}

	for _, topVote := range topVotes {
		for _, env := range bs.latestEnvelopes {
			stmt := env.Statement
			switch stmt.StatementType {
			case ultpb.StatementType_PREPARE:
				p := stmt.GetPrepare()
				if lessAndCompatibleBallots(p.B, topVote) {
					add(p.B)
				}
				if p.P != nil && lessAndCompatibleBallots(p.P, topVote) {
					add(p.P)
				}
				if p.Q != nil && lessAndCompatibleBallots(p.Q, topVote) {
					add(p.Q)
				}
			case ultpb.StatementType_CONFIRM:
				c := stmt.GetConfirm()
				if compatibleBallots(topVote, c.B) {
					add(topVote)
					if c.PC < topVote.Counter {
						add(makeBallot(c.PC, topVote.Value))
					}
				}
			case ultpb.StatementType_EXTERNALIZE:
				e := stmt.GetExternalize()
				if compatibleBallots(topVote, e.B) {
					add(topVote)
				}
			}
		}
	}

	result := make([]*Ballot, 0, len(cands))
	for _, b := range cands {
		result = append(result, b)
	}
	sort.Sort(BallotSlice(result))
	return result
}

// maxBallotCounter stands in for the C++ implementation's UINT32_MAX
// sentinel counter used when deriving prepare candidates from a CONFIRM
// or EXTERNALIZE hint -- a ballot at that counter can never itself be
// outrun, so any ballot compatible with its value qualifies.
const maxBallotCounter = ^uint32(0)

// ballotKey is a map key that identifies a ballot by its (counter,
// value) pair, used to dedupe candidate sets.
func ballotKey(b *Ballot) string {
	return fmt.Sprintf("%d:%s", b.Counter, b.Value)
}

// workingValue returns the value the current ballot carries, falling
// back to the composite candidate the driver has on offer once the
// local node hasn't picked a ballot of its own yet.
func (bs *BallotState) workingValue() ultpb.Value {
	if bs.b != nil {
		return bs.b.Value
	}
	if value, ok := bs.driver.LatestCompositeCandidate(bs.slotIndex); ok {
		return value
	}
	return ""
}

func (bs *BallotState) attemptAcceptPrepared(hint *Statement) bool {
	if bs.phase == PhaseExternalize {
		return false
	}
	for _, cand := range bs.getPrepareCandidates(hint) {
		if bs.p != nil && compareBallots(cand, bs.p) <= 0 && compatibleBallots(cand, bs.p) {
			continue
		}
		if bs.pPrime != nil && compareBallots(cand, bs.pPrime) <= 0 && compatibleBallots(cand, bs.pPrime) {
			continue
		}
		voteFilter := prepareVoteFilter(cand)
		acceptFilter := prepareAcceptFilter(cand)
		if bs.localNode.FederatedAccept(voteFilter, acceptFilter, bs.statements()) {
			return bs.setAcceptPrepared(cand)
		}
	}
	return false
}

func (bs *BallotState) setAcceptPrepared(cand *Ballot) bool {
	if bs.p == nil || compareBallots(cand, bs.p) > 0 {
		if bs.p != nil && !compatibleBallots(cand, bs.p) {
			if bs.pPrime == nil || compareBallots(bs.p, bs.pPrime) > 0 {
				bs.pPrime = bs.p
			}
		}
		bs.p = cand
	} else if !compatibleBallots(cand, bs.p) {
		if bs.pPrime == nil || compareBallots(cand, bs.pPrime) > 0 {
			bs.pPrime = cand
		}
	}

	if bs.h != nil && !compatibleBallots(bs.h, bs.p) && compareBallots(bs.p, bs.h) >= 0 {
		bs.h = nil
		bs.c = nil
	}

	bs.updateCurrentIfNeeded(cand)
	bs.driver.AcceptedBallotPrepared(bs.slotIndex, cand)
	return true
}

func (bs *BallotState) attemptConfirmPrepared(hint *Statement) bool {
	if bs.phase != PhasePrepare || bs.p == nil {
		return false
	}
	if bs.h != nil && compareBallots(bs.p, bs.h) <= 0 {
		return false
	}
	if !bs.localNode.FederatedRatify(prepareAcceptFilter(bs.p), bs.statements()) {
		return false
	}
	return bs.setConfirmPrepared(bs.p)
}

func (bs *BallotState) setConfirmPrepared(cand *Ballot) bool {
	if bs.h == nil || compareBallots(cand, bs.h) > 0 {
		bs.h = cand
	}
	// The same ratified ballot also becomes the low bound of the accepted
	// commit range, as long as nothing has been committed yet and cand
	// doesn't conflict with the other accepted-prepared ballot -- without
	// this, c never acquires a first value and attemptAcceptCommit's
	// vote filter (which only counts a PREPARE statement once its LC is
	// nonzero) could never fire for anyone.
	if bs.c == nil &&
		(bs.p == nil || !lessAndIncompatibleBallots(cand, bs.p)) &&
		(bs.pPrime == nil || !lessAndIncompatibleBallots(cand, bs.pPrime)) {
		bs.c = cand
	}
	bs.updateCurrentIfNeeded(cand)
	bs.driver.ConfirmedBallotPrepared(bs.slotIndex, cand)
	return true
}

// getCommitBoundariesFromStatements searches for the widest [l, r]
// commit range compatible with b that the recorded statements
// collectively support, used by attemptAcceptCommit.
func (bs *BallotState) getCommitBoundariesFromStatements(b *Ballot) (uint32, uint32) {
	l, r := uint32(0), b.Counter
	for _, env := range bs.latestEnvelopes {
		stmt := env.Statement
		switch stmt.StatementType {
		case ultpb.StatementType_PREPARE:
			p := stmt.GetPrepare()
			if p.LC != 0 && compatibleBallots(b, p.B) {
				if p.LC > l {
					l = p.LC
				}
			}
		case ultpb.StatementType_CONFIRM:
			c := stmt.GetConfirm()
			if compatibleBallots(b, c.B) {
				if c.LC > l {
					l = c.LC
				}
				if c.HC < r {
					r = c.HC
				}
			}
		case ultpb.StatementType_EXTERNALIZE:
			e := stmt.GetExternalize()
			if compatibleBallots(b, e.B) {
				if e.B.Counter > l {
					l = e.B.Counter
				}
			}
		}
	}
	return l, r
}

func (bs *BallotState) attemptAcceptCommit(hint *Statement) bool {
	if bs.phase == PhaseExternalize || bs.h == nil {
		return false
	}
	l, r := bs.getCommitBoundariesFromStatements(bs.h)
	if l > r {
		return false
	}
	voteFilter := commitVoteFilter(bs.h, l, r)
	acceptFilter := commitAcceptFilter(bs.h, l, r)
	if !bs.localNode.FederatedAccept(voteFilter, acceptFilter, bs.statements()) {
		return false
	}
	return bs.setAcceptCommit(l, r, bs.h)
}

func (bs *BallotState) setAcceptCommit(l, r uint32, b *Ballot) bool {
	c := makeBallot(l, b.Value)
	h := makeBallot(r, b.Value)
	if bs.phase == PhaseConfirm && compareBallots(bs.c, c) == 0 && compareBallots(bs.h, h) == 0 {
		return false
	}
	bs.c = c
	bs.h = h
	if bs.phase == PhasePrepare {
		bs.phase = PhaseConfirm
		bs.pPrime = nil
	}
	bs.updateCurrentIfNeeded(bs.h)
	bs.driver.AcceptedCommit(bs.slotIndex, bs.h)
	return true
}

func (bs *BallotState) attemptConfirmCommit(hint *Statement) bool {
	if bs.phase != PhaseConfirm || bs.c == nil || bs.h == nil {
		return false
	}
	l, r := bs.c.Counter, bs.h.Counter
	if !bs.localNode.FederatedRatify(commitAcceptFilter(bs.c, l, r), bs.statements()) {
		return false
	}
	return bs.setConfirmCommit(l, r)
}

func (bs *BallotState) setConfirmCommit(l, r uint32) bool {
	value := bs.b.Value
	bs.c = makeBallot(l, value)
	bs.h = makeBallot(r, value)
	bs.phase = PhaseExternalize
	bs.emitCurrentStateStatement()
	// the slot is decided: no more ballot timers, no more nomination.
	bs.driver.Scheduler().CancelAll(bs.slotIndex)
	bs.driver.ValueExternalized(bs.slotIndex, value)
	return true
}

// hasVBlockingSubsetStrictlyAheadOf reports whether the nodes whose
// latest ballot counter is strictly greater than n form a v-blocking
// set for the local quorum -- the trigger for the bump rule.
func (bs *BallotState) hasVBlockingSubsetStrictlyAheadOf(n uint32) bool {
	ahead := mapset.NewSet()
	for node, env := range bs.latestEnvelopes {
		if b := getStatementBallot(env.Statement); b != nil && b.Counter > n {
			ahead.Add(node)
		}
	}
	return bs.localNode.IsVBlocking(ahead)
}

// smallestCounterStrictlyAheadOf returns the smallest ballot counter,
// among recorded statements, that is strictly greater than n.
func (bs *BallotState) smallestCounterStrictlyAheadOf(n uint32) uint32 {
	best := uint32(0)
	for _, env := range bs.latestEnvelopes {
		if b := getStatementBallot(env.Statement); b != nil && b.Counter > n {
			if best == 0 || b.Counter < best {
				best = b.Counter
			}
		}
	}
	return best
}

func (bs *BallotState) attemptBump() bool {
	if bs.phase == PhaseExternalize {
		return false
	}
	var counter uint32
	if bs.b == nil {
		counter = 1
	} else if bs.hasVBlockingSubsetStrictlyAheadOf(bs.b.Counter) {
		counter = bs.smallestCounterStrictlyAheadOf(bs.b.Counter)
	} else {
		return false
	}

	value := bs.workingValue()
	if value == "" {
		return false
	}
	return bs.bumpState(value, counter)
}

// updateCurrentIfNeeded bumps b up to cand if cand strictly exceeds it;
// otherwise it returns without doing anything. The reject-and-log path
// for a smaller ballot lives in bumpState.
func (bs *BallotState) updateCurrentIfNeeded(cand *Ballot) {
	if bs.b != nil && compareBallots(cand, bs.b) <= 0 {
		return
	}
	bs.bumpState(cand.Value, cand.Counter)
}

// bumpState moves the current ballot to (counter, value), clearing h
// and c when the new ballot is incompatible with h, and rearms the
// ballot timer while in PREPARE; on expiry the timer moves b to the next
// counter and re-runs advanceSlot. p and p' are left untouched. If b is
// already at counter/value this is a no-op -- advanceSlot may call it
// repeatedly as it re-enters.
func (bs *BallotState) bumpState(value ultpb.Value, counter uint32) bool {
	if bs.b != nil {
		cmp := compareBallots(makeBallot(counter, value), bs.b)
		if cmp < 0 {
			log.Errorf("attempt to bump to a smaller ballot: slot %d have (%d,%s) got (%d,%s)",
				bs.slotIndex, bs.b.Counter, bs.b.Value, counter, value)
			return false
		}
		if cmp == 0 {
			return false
		}
	}
	newBallot := makeBallot(counter, value)
	startingOut := bs.b == nil
	if bs.h != nil && !compatibleBallots(newBallot, bs.h) {
		bs.h = nil
		bs.c = nil
	}
	bs.b = newBallot
	if startingOut {
		bs.driver.StartedBallotProtocol(bs.slotIndex, newBallot)
	}
	if bs.phase == PhasePrepare {
		bs.driver.Scheduler().SetupTimer(bs.slotIndex, TimerBallot, ballotTimerDuration(counter), func() {
			bs.mu.Lock()
			defer bs.mu.Unlock()
			if bs.phase == PhaseExternalize || bs.b == nil {
				return
			}
			if !bs.bumpState(bs.workingValue(), bs.b.Counter+1) {
				return
			}
			bs.advanceDepth = 0
			if err := bs.advanceSlot(nil); err != nil {
				log.Errorw("advanceSlot failed after ballot timer expiry", "slot", bs.slotIndex, "err", err)
				return
			}
			bs.emitCurrentStateStatement()
			bs.sendLatestEnvelope()
		})
	}
	return true
}

// checkHeardFromQuorum arms/disarms the heard-from-quorum flag: the
// local node has heard from a quorum once the nodes it has any
// statement from, together with itself, satisfy the local quorum. The
// ballot timer is only meaningful once this holds.
func (bs *BallotState) checkHeardFromQuorum() {
	nodes := mapset.NewSet()
	nodes.Add(bs.localNode.NodeID())
	for node := range bs.latestEnvelopes {
		nodes.Add(node)
	}
	bs.heardFromQuorum = isQuorumSlice(bs.localNode.Quorum(), nodes)
}

// createStatement builds the Statement corresponding to the current
// phase and ballot variables.
func (bs *BallotState) createStatement() *Statement {
	stmt := &Statement{
		NodeID:    bs.localNode.NodeID(),
		SlotIndex: bs.slotIndex,
	}
	switch bs.phase {
	case PhasePrepare:
		stmt.StatementType = ultpb.StatementType_PREPARE
		p := &Prepare{
			QuorumHash: bs.localNode.QuorumHash(),
			B:          bs.b,
			P:          bs.p,
			Q:          bs.pPrime,
		}
		if bs.c != nil {
			p.LC = bs.c.Counter
		}
		if bs.h != nil {
			p.HC = bs.h.Counter
		}
		stmt.Stmt = &ultpb.Statement_Prepare{Prepare: p}
	case PhaseConfirm:
		stmt.StatementType = ultpb.StatementType_CONFIRM
		c := &Confirm{
			QuorumHash: bs.localNode.QuorumHash(),
			B:          bs.b,
		}
		if bs.p != nil {
			c.PC = bs.p.Counter
		}
		if bs.c != nil {
			c.LC = bs.c.Counter
		}
		if bs.h != nil {
			c.HC = bs.h.Counter
		}
		stmt.Stmt = &ultpb.Statement_Confirm{Confirm: c}
	case PhaseExternalize:
		stmt.StatementType = ultpb.StatementType_EXTERNALIZE
		e := &Externalize{
			B:                bs.c,
			CommitQuorumHash: bs.localNode.QuorumHash(),
		}
		if bs.h != nil {
			e.HC = bs.h.Counter
		}
		stmt.Stmt = &ultpb.Statement_Externalize{Externalize: e}
	}
	return stmt
}

// emitCurrentStateStatement builds the statement for the current phase
// and, provided it differs from the last one recorded, records it as
// this node's own entry in latestEnvelopes and asks sendLatestEnvelope
// to flush it outward.
// Called from every ballot-variable transition, almost always from
// somewhere inside advanceSlot's call tree -- the flush itself is a
// no-op there, deferred until advanceSlot's caller sees advanceDepth
// back at zero.
func (bs *BallotState) emitCurrentStateStatement() {
	stmt := bs.createStatement()
	if bs.lastEmitted != nil && !isNewerStatement(bs.lastEmitted.Statement, stmt) {
		return
	}
	env := &Envelope{Statement: stmt}
	bs.lastEmitted = env
	bs.latestEnvelopes[bs.localNode.NodeID()] = env
	bs.sendLatestEnvelope()
}

// sendLatestEnvelope flushes lastEmitted to the driver, but only once
// per advanceSlot cascade and only once the slot is fully validated:
// broadcasting is gated on advanceDepth having unwound back to zero
// (so a single incoming envelope that triggers several transitions
// still produces one outbound envelope, the most current one) and on
// fullyValidated, so a maybe-valid value never leaves this node.
// lastBroadcast, separate from lastEmitted, dedupes against whatever
// was last actually handed to the driver.
func (bs *BallotState) sendLatestEnvelope() {
	if bs.advanceDepth != 0 || !bs.fullyValidated || bs.lastEmitted == nil {
		return
	}
	if bs.lastBroadcast != nil && bs.lastBroadcast == bs.lastEmitted {
		return
	}
	bs.lastBroadcast = bs.lastEmitted
	bs.driver.EmitEnvelope(bs.lastEmitted)
}

// SetStateFromEnvelope restores a BallotState from the last
// self-emitted envelope for the slot, as replayed by the containing
// system on restart. It bypasses ProcessEnvelope's monotonicity and
// quorum-accounting side effects since it is re-establishing, not
// newly learning, this state.
func (bs *BallotState) SetStateFromEnvelope(env *Envelope) error {
	if env == nil || env.Statement == nil {
		return ErrNilEnvelope
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	stmt := env.Statement
	switch stmt.StatementType {
	case ultpb.StatementType_PREPARE:
		p := stmt.GetPrepare()
		bs.phase = PhasePrepare
		bs.b = p.B
		bs.p = p.P
		bs.pPrime = p.Q
		if p.LC != 0 {
			bs.c = makeBallot(p.LC, p.B.Value)
		}
		if p.HC != 0 {
			bs.h = makeBallot(p.HC, p.B.Value)
		}
	case ultpb.StatementType_CONFIRM:
		c := stmt.GetConfirm()
		bs.phase = PhaseConfirm
		bs.b = c.B
		bs.p = makeBallot(c.PC, c.B.Value)
		bs.c = makeBallot(c.LC, c.B.Value)
		bs.h = makeBallot(c.HC, c.B.Value)
	case ultpb.StatementType_EXTERNALIZE:
		e := stmt.GetExternalize()
		bs.phase = PhaseExternalize
		bs.b = e.B
		bs.c = e.B
		bs.h = makeBallot(e.HC, e.B.Value)
	default:
		return ErrUnknownStmtType
	}
	bs.lastEmitted = env
	bs.lastBroadcast = env
	bs.fullyValidated = true
	bs.latestEnvelopes[bs.localNode.NodeID()] = env
	return nil
}

// Nudge re-enters advanceSlot with no incoming statement, giving the
// bump rule a chance to act on a freshly available composite candidate
// even though nothing has arrived over the wire yet -- the hook the
// out-of-scope nomination subsystem would call once it has a value.
func (bs *BallotState) Nudge() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.advanceDepth = 0
	if err := bs.advanceSlot(nil); err != nil {
		return err
	}
	bs.sendLatestEnvelope()
	return nil
}

// GetWorkingBallot returns the ballot that best represents the node's
// current position: h once it's set, else b.
func (bs *BallotState) GetWorkingBallot() *Ballot {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.h != nil {
		return bs.h
	}
	return bs.b
}

// HasPreparedBallot reports whether b is accepted-prepared, i.e.
// compatible with and no higher than p or p'.
func (bs *BallotState) HasPreparedBallot(b *Ballot) bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.p != nil && compatibleBallots(b, bs.p) && compareBallots(b, bs.p) <= 0 {
		return true
	}
	if bs.pPrime != nil && compatibleBallots(b, bs.pPrime) && compareBallots(b, bs.pPrime) <= 0 {
		return true
	}
	return false
}

// GetLatestMessage returns the latest statement recorded for node, if
// any.
func (bs *BallotState) GetLatestMessage(node string) (*Statement, bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	env, ok := bs.latestEnvelopes[node]
	if !ok {
		return nil, false
	}
	return env.Statement, true
}

// GetExternalizingState returns the externalized value and its
// confirmed-commit range once the slot has externalized.
func (bs *BallotState) GetExternalizingState() (ultpb.Value, uint32, uint32, bool) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.phase != PhaseExternalize {
		return "", 0, 0, false
	}
	return bs.c.Value, bs.c.Counter, bs.h.Counter, true
}

// CurrentPhase reports the current ballot protocol phase.
func (bs *BallotState) CurrentPhase() Phase {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.phase
}

// ballotTimerDuration computes the protocol timer length for a ballot,
// growing linearly with the counter. The timer's exact backoff curve
// is an implementation detail delegated to the containing system;
// this only needs to be monotonic in counter.
func ballotTimerDuration(counter uint32) time.Duration {
	return baseBallotTimer * time.Duration(counter)
}
