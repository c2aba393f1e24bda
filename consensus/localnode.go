package consensus

import (
	"math"

	"github.com/deckarep/golang-set"

	"github.com/ultiledger/go-ultiledger/ultpb"
)

// QuorumSetResolver looks up a peer's declared quorum slice by the
// peer's node ID. It is the only way the closure tests below learn
// about anyone's quorum besides the local node's own.
type QuorumSetResolver func(nodeID string) (*ultpb.Quorum, bool)

// LocalNode is the federated voting oracle for one node: its own quorum
// slice plus a way to resolve everyone else's. It holds no protocol
// state of its own and has no side effects -- every method is a pure
// function of its quorum, the resolver, and its arguments.
type LocalNode struct {
	nodeID     string
	quorum     *ultpb.Quorum
	quorumHash string
	resolver   QuorumSetResolver
}

func NewLocalNode(nodeID string, quorum *ultpb.Quorum, quorumHash string, resolver QuorumSetResolver) *LocalNode {
	return &LocalNode{
		nodeID:     nodeID,
		quorum:     quorum,
		quorumHash: quorumHash,
		resolver:   resolver,
	}
}

func (ln *LocalNode) NodeID() string       { return ln.nodeID }
func (ln *LocalNode) Quorum() *ultpb.Quorum { return ln.quorum }
func (ln *LocalNode) QuorumHash() string   { return ln.quorumHash }

// isVBlocking reports whether nodeSet intersects every quorum slice of
// quorum, i.e. nodeSet is large enough to block consensus within
// quorum regardless of how the remaining nodes vote.
func isVBlocking(quorum *ultpb.Quorum, nodeSet mapset.Set) bool {
	if quorum == nil {
		return false
	}
	qsize := float64(len(quorum.Validators) + len(quorum.NestQuorums))
	if qsize == 0 {
		return false
	}
	threshold := int(math.Ceil(qsize * (1.0 - quorum.Threshold)))

	for _, vid := range quorum.Validators {
		if threshold <= 0 {
			return true
		}
		if nodeSet.Contains(vid) {
			threshold--
		}
	}
	for _, nq := range quorum.NestQuorums {
		if threshold <= 0 {
			return true
		}
		if isVBlocking(nq, nodeSet) {
			threshold--
		}
	}
	return threshold <= 0
}

// isQuorumSlice reports whether nodeSet fully contains a quorum slice
// of quorum -- i.e. enough validators/nested-quorums of quorum lie in
// nodeSet to meet quorum's threshold, checked recursively for nested
// quorums (a nested quorum counts only if nodeSet satisfies *its*
// threshold too, not merely blocks it).
func isQuorumSlice(quorum *ultpb.Quorum, nodeSet mapset.Set) bool {
	if quorum == nil {
		return false
	}
	qsize := float64(len(quorum.Validators) + len(quorum.NestQuorums))
	if qsize == 0 {
		return false
	}
	threshold := int(math.Ceil(qsize * quorum.Threshold))

	for _, vid := range quorum.Validators {
		if threshold <= 0 {
			return true
		}
		if nodeSet.Contains(vid) {
			threshold--
		}
	}
	for _, nq := range quorum.NestQuorums {
		if threshold <= 0 {
			return true
		}
		if isQuorumSlice(nq, nodeSet) {
			threshold--
		}
	}
	return threshold <= 0
}

// IsVBlocking reports whether nodeSet is v-blocking for the local
// node's own quorum.
func (ln *LocalNode) IsVBlocking(nodeSet mapset.Set) bool {
	return isVBlocking(ln.quorum, nodeSet)
}

// isQuorumTransitive runs the standard SCP quorum-closure elimination:
// starting from candidates, repeatedly drop any node whose own declared
// quorum slice is not fully contained in the surviving set, until a
// fixed point is reached. The local node then holds a quorum within
// candidates iff its own quorum slice is contained in what survives.
func (ln *LocalNode) isQuorumTransitive(candidates mapset.Set) bool {
	nodeSet := candidates.Clone()
	for {
		before := nodeSet.Cardinality()
		for _, nodeIface := range nodeSet.ToSlice() {
			node := nodeIface.(string)
			q := ln.quorumFor(node)
			if q == nil || !isQuorumSlice(q, nodeSet) {
				nodeSet.Remove(node)
			}
		}
		if nodeSet.Cardinality() == before {
			break
		}
	}
	return isQuorumSlice(ln.quorum, nodeSet)
}

// quorumFor resolves node's quorum, special-casing the local node so
// callers never need a self-entry in the resolver.
func (ln *LocalNode) quorumFor(node string) *ultpb.Quorum {
	if node == ln.nodeID {
		return ln.quorum
	}
	if ln.resolver == nil {
		return nil
	}
	q, ok := ln.resolver(node)
	if !ok {
		return nil
	}
	return q
}

// FederatedAccept implements the ACCEPT step of federated voting: a
// statement is accepted if the set of nodes that already accept it is
// v-blocking for the local quorum, or if the set of nodes that vote or
// accept it forms a quorum (via transitive closure).
func (ln *LocalNode) FederatedAccept(voteFilter, acceptFilter func(*ultpb.Statement) bool, statements map[string]*ultpb.Statement) bool {
	accepted := mapset.NewSet()
	candidates := mapset.NewSet()
	for node, stmt := range statements {
		if acceptFilter(stmt) {
			accepted.Add(node)
			candidates.Add(node)
		} else if voteFilter(stmt) {
			candidates.Add(node)
		}
	}
	if ln.IsVBlocking(accepted) {
		return true
	}
	return ln.isQuorumTransitive(candidates)
}

// FederatedRatify implements the RATIFY (VOTE-quorum) step of federated
// voting: a statement is ratified if the set of nodes voting for it
// forms a quorum via transitive closure.
func (ln *LocalNode) FederatedRatify(voteFilter func(*ultpb.Statement) bool, statements map[string]*ultpb.Statement) bool {
	candidates := mapset.NewSet()
	for node, stmt := range statements {
		if voteFilter(stmt) {
			candidates.Add(node)
		}
	}
	return ln.isQuorumTransitive(candidates)
}

// findClosestVBlocking returns a minimal-ish node set, drawn from
// candidates and excluding excluded, that when added to the empty set
// would be v-blocking for quorum. It is used only for introspection
// (getJsonQuorumInfo) and favors the cheapest greedy completion rather
// than the true minimum.
func findClosestVBlocking(quorum *ultpb.Quorum, candidates mapset.Set, excluded string) mapset.Set {
	result := mapset.NewSet()
	if quorum == nil {
		return result
	}
	qsize := float64(len(quorum.Validators) + len(quorum.NestQuorums))
	if qsize == 0 {
		return result
	}
	threshold := int(math.Ceil(qsize * (1.0 - quorum.Threshold)))

	for _, vid := range quorum.Validators {
		if threshold <= 0 {
			break
		}
		if vid == excluded {
			continue
		}
		if candidates.Contains(vid) {
			result.Add(vid)
			threshold--
		}
	}
	for _, nq := range quorum.NestQuorums {
		if threshold <= 0 {
			break
		}
		sub := findClosestVBlocking(nq, candidates, excluded)
		if sub.Cardinality() > 0 {
			result = result.Union(sub)
			threshold--
		}
	}
	return result
}
