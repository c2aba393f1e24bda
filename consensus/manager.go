package consensus

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"

	"github.com/ultiledger/go-ultiledger/crypto"
	"github.com/ultiledger/go-ultiledger/log"
	"github.com/ultiledger/go-ultiledger/ultpb"
)

// Metrics is the small set of protocol-level counters the containing
// system exposes about the ballot protocol, backed by go-metrics so
// they compose with whatever reporter (graphite, statsd, expvar...)
// the operator already wired up for the rest of the process.
type Metrics struct {
	EnvelopesProcessed metrics.Counter
	TimeoutsExpired    metrics.Counter
	RecursionDepthHigh metrics.Gauge
	ActiveSlots        metrics.Gauge
}

func NewMetrics(registry metrics.Registry) *Metrics {
	m := &Metrics{
		EnvelopesProcessed: metrics.NewCounter(),
		TimeoutsExpired:    metrics.NewCounter(),
		RecursionDepthHigh: metrics.NewGauge(),
		ActiveSlots:        metrics.NewGauge(),
	}
	registry.Register("scp.envelopes_processed", m.EnvelopesProcessed)
	registry.Register("scp.timeouts_expired", m.TimeoutsExpired)
	registry.Register("scp.recursion_depth_high", m.RecursionDepthHigh)
	registry.Register("scp.active_slots", m.ActiveSlots)
	return m
}

// activeSlotsReportInterval is how often Start's background goroutine
// refreshes the ActiveSlots gauge.
const activeSlotsReportInterval = 5 * time.Second

// Manager owns one BallotState per active slot, pushes self-emitted
// envelopes onto a broadcast channel inline from the emitting call, and
// each time a slot externalizes drops every lower-indexed slot that has
// also externalized. Externalized values are kept in a bounded
// lru.Cache, matching the shape of the teacher's tx-status cache.
type Manager struct {
	localNode *LocalNode
	driver    Driver
	scheduler Scheduler
	metrics   *Metrics

	// slotsMu guards slots, externals and quorumPeer: the loopback
	// harness (and any real transport) calls ProcessEnvelope from one
	// goroutine per peer connection while Slot is read concurrently by
	// a status poller, and they all touch the same maps.
	slotsMu    sync.Mutex
	slots      map[uint64]*BallotState
	externals  *lru.Cache
	quorumPeer map[string]*ultpb.Quorum

	out      chan *ultpb.Envelope
	stopChan chan struct{}
}

func NewManager(localNode *LocalNode, driver Driver, scheduler Scheduler, registry metrics.Registry, maxCachedSlots int) (*Manager, error) {
	externals, err := lru.New(maxCachedSlots)
	if err != nil {
		return nil, errors.Wrap(err, "create externalized-value cache")
	}
	return &Manager{
		localNode:  localNode,
		driver:     driver,
		scheduler:  scheduler,
		metrics:    NewMetrics(registry),
		slots:      make(map[uint64]*BallotState),
		externals:  externals,
		quorumPeer: make(map[string]*ultpb.Quorum),
		out:        make(chan *ultpb.Envelope, 256),
		stopChan:   make(chan struct{}),
	}, nil
}

// Start launches a background goroutine that keeps the ActiveSlots
// gauge current; callers drain Outbound() themselves (a real transport,
// or the loopback harness in cmd/scpnode) -- envelope fan-out itself
// happens inline in broadcastingDriver.EmitEnvelope and needs no
// goroutine of its own.
func (m *Manager) Start() {
	go func() {
		ticker := time.NewTicker(activeSlotsReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.slotsMu.Lock()
				n := len(m.slots)
				m.slotsMu.Unlock()
				m.metrics.ActiveSlots.Update(int64(n))
			}
		}
	}()
}

func (m *Manager) Stop() {
	close(m.stopChan)
}

// Outbound exposes the channel of self-authored envelopes for a
// transport layer to drain and broadcast.
func (m *Manager) Outbound() <-chan *ultpb.Envelope {
	return m.out
}

// RegisterPeerQuorum records a peer's declared quorum slice, learned
// out of band (e.g. from config or a QUORUM statement), so the
// federated-voting closure tests in localnode.go can resolve it.
func (m *Manager) RegisterPeerQuorum(nodeID string, quorum *ultpb.Quorum) {
	m.slotsMu.Lock()
	defer m.slotsMu.Unlock()
	m.quorumPeer[nodeID] = quorum
}

// EnsureSlot returns the BallotState for index, creating it if this is
// the first time the slot is touched. Used by the containing system's
// catch-up restore path, which must have somewhere to replay a
// persisted envelope into before any fresh one has arrived.
func (m *Manager) EnsureSlot(index uint64) *BallotState {
	return m.slotFor(index)
}

// Nudge gives a slot's bump rule a chance to act on a freshly available
// composite candidate with no incoming envelope to trigger it, creating
// the slot if this is the first time it's touched.
func (m *Manager) Nudge(index uint64) error {
	return m.slotFor(index).Nudge()
}

func (m *Manager) slotFor(index uint64) *BallotState {
	m.slotsMu.Lock()
	defer m.slotsMu.Unlock()
	if bs, ok := m.slots[index]; ok {
		return bs
	}
	ln := NewLocalNode(m.localNode.NodeID(), m.localNode.Quorum(), m.localNode.QuorumHash(), func(node string) (*ultpb.Quorum, bool) {
		m.slotsMu.Lock()
		defer m.slotsMu.Unlock()
		q, ok := m.quorumPeer[node]
		return q, ok
	})
	bs := NewBallotState(index, ln, &broadcastingDriver{inner: m.driver, out: m.out})
	m.slots[index] = bs
	return bs
}

// broadcastingDriver wraps a Driver so every emitted envelope also
// reaches the Manager's outbound channel, leaving BallotState's own
// EmitEnvelope calls unchanged while the Manager is the thing that
// actually owns the channel.
type broadcastingDriver struct {
	inner Driver
	out   chan *ultpb.Envelope
}

func (d *broadcastingDriver) Validate(slotIndex uint64, value ultpb.Value) ValidationResult {
	return d.inner.Validate(slotIndex, value)
}

func (d *broadcastingDriver) LatestCompositeCandidate(slotIndex uint64) (ultpb.Value, bool) {
	return d.inner.LatestCompositeCandidate(slotIndex)
}

func (d *broadcastingDriver) EmitEnvelope(env *ultpb.Envelope) {
	d.inner.EmitEnvelope(env)
	select {
	case d.out <- env:
	default:
		log.Warnw("manager outbound channel full, dropping envelope", "slot", env.Statement.SlotIndex)
	}
}

func (d *broadcastingDriver) Scheduler() Scheduler {
	return d.inner.Scheduler()
}

func (d *broadcastingDriver) StartedBallotProtocol(slotIndex uint64, ballot *ultpb.Ballot) {
	d.inner.StartedBallotProtocol(slotIndex, ballot)
}

func (d *broadcastingDriver) AcceptedBallotPrepared(slotIndex uint64, ballot *ultpb.Ballot) {
	d.inner.AcceptedBallotPrepared(slotIndex, ballot)
}

func (d *broadcastingDriver) ConfirmedBallotPrepared(slotIndex uint64, ballot *ultpb.Ballot) {
	d.inner.ConfirmedBallotPrepared(slotIndex, ballot)
}

func (d *broadcastingDriver) AcceptedCommit(slotIndex uint64, ballot *ultpb.Ballot) {
	d.inner.AcceptedCommit(slotIndex, ballot)
}

func (d *broadcastingDriver) ValueExternalized(slotIndex uint64, value ultpb.Value) {
	d.inner.ValueExternalized(slotIndex, value)
}

// verifyEnvelopeSignature checks a signed envelope against its sending
// node's public key, mirroring the signature check NodeServer.Hello
// and NodeServer.SubmitTx run on the way in. It is best-effort rather
// than a hard PKI requirement: an unsigned envelope, or one whose
// NodeID doesn't decode to a node key, is let through unverified --
// this package doesn't itself mandate that every NodeID be a real key.
func verifyEnvelopeSignature(env *ultpb.Envelope) error {
	if env.Signature == "" {
		return nil
	}
	key, err := crypto.DecodeKey(env.Statement.NodeID)
	if err != nil || key.Code != crypto.KeyTypeNodeID {
		return nil
	}
	payload, err := ultpb.Encode(env.Statement)
	if err != nil {
		return errors.Wrap(err, "encode statement for signature check")
	}
	if !crypto.VerifyByKey(key, env.Signature, payload) {
		return ErrBadSignature
	}
	return nil
}

// ProcessEnvelope routes an incoming envelope to its slot's
// BallotState, creating the slot on first sight, and updates metrics.
func (m *Manager) ProcessEnvelope(env *ultpb.Envelope) error {
	if env == nil || env.Statement == nil {
		return ErrNilEnvelope
	}
	if err := verifyEnvelopeSignature(env); err != nil {
		return errors.Wrapf(err, "verify envelope from %s", env.Statement.NodeID)
	}
	slotIndex := env.Statement.SlotIndex
	bs := m.slotFor(slotIndex)

	m.slotsMu.Lock()
	quorumForSender := m.quorumPeer[env.Statement.NodeID]
	m.slotsMu.Unlock()

	if err := bs.ProcessEnvelope(env, quorumForSender); err != nil {
		return errors.Wrapf(err, "process envelope from %s for slot %d", env.Statement.NodeID, slotIndex)
	}
	m.metrics.EnvelopesProcessed.Inc(1)

	if value, _, _, ok := bs.GetExternalizingState(); ok {
		m.slotsMu.Lock()
		m.externals.Add(slotIndex, value)
		evicted := m.evictOldSlots(slotIndex)
		m.slotsMu.Unlock()
		for _, idx := range evicted {
			m.scheduler.CancelAll(idx)
		}
	}
	return nil
}

// evictOldSlots drops the BallotState of every externalized slot whose
// index is lower than newestExternalized, returning the
// indexes it dropped so callers can release their timers too. Callers
// must hold slotsMu.
func (m *Manager) evictOldSlots(newestExternalized uint64) []uint64 {
	var evicted []uint64
	for idx, bs := range m.slots {
		if idx >= newestExternalized {
			continue
		}
		if _, _, _, ok := bs.GetExternalizingState(); ok {
			delete(m.slots, idx)
			evicted = append(evicted, idx)
		}
	}
	return evicted
}

// Slot exposes a slot's BallotState for introspection (e.g. a status
// poller or a test); it does not create the slot if absent.
func (m *Manager) Slot(index uint64) (*BallotState, bool) {
	m.slotsMu.Lock()
	defer m.slotsMu.Unlock()
	bs, ok := m.slots[index]
	return bs, ok
}
