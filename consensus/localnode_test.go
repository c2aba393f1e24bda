package consensus

import (
	"testing"

	"github.com/deckarep/golang-set"
	"github.com/stretchr/testify/assert"

	"github.com/ultiledger/go-ultiledger/ultpb"
)

func flatQuorum(nodes []string, threshold float64) *ultpb.Quorum {
	return &ultpb.Quorum{Threshold: threshold, Validators: nodes}
}

func TestIsVBlocking(t *testing.T) {
	nodes := []string{"n1", "n2", "n3", "n4"}
	q := flatQuorum(nodes, 0.5) // threshold 50%, blocking set size = ceil(4*0.5) = 2

	empty := mapset.NewSet()
	assert.False(t, isVBlocking(q, empty))

	oneNode := mapset.NewSet("n1")
	assert.False(t, isVBlocking(q, oneNode))

	twoNodes := mapset.NewSet("n1", "n2")
	assert.True(t, isVBlocking(q, twoNodes))
}

func TestIsQuorumSlice(t *testing.T) {
	nodes := []string{"n1", "n2", "n3", "n4"}
	q := flatQuorum(nodes, 0.75) // ceil(4*0.75) = 3

	twoNodes := mapset.NewSet("n1", "n2")
	assert.False(t, isQuorumSlice(q, twoNodes))

	threeNodes := mapset.NewSet("n1", "n2", "n3")
	assert.True(t, isQuorumSlice(q, threeNodes))
}

func TestFederatedRatifyThroughClosure(t *testing.T) {
	nodes := []string{"n1", "n2", "n3"}
	q := flatQuorum(nodes, 1.0) // unanimous

	resolver := func(node string) (*ultpb.Quorum, bool) {
		return q, true
	}
	ln := NewLocalNode("n1", q, "hash", resolver)

	b := &Ballot{Counter: 1, Value: "A"}
	statements := map[string]*Statement{
		"n1": {NodeID: "n1", StatementType: ultpb.StatementType_PREPARE, Stmt: &ultpb.Statement_Prepare{Prepare: &Prepare{B: b}}},
		"n2": {NodeID: "n2", StatementType: ultpb.StatementType_PREPARE, Stmt: &ultpb.Statement_Prepare{Prepare: &Prepare{B: b}}},
	}
	// only 2 of 3 nodes have voted so far: not yet a quorum under a
	// unanimous threshold.
	assert.False(t, ln.FederatedRatify(prepareVoteFilter(b), statements))

	statements["n3"] = &Statement{NodeID: "n3", StatementType: ultpb.StatementType_PREPARE, Stmt: &ultpb.Statement_Prepare{Prepare: &Prepare{B: b}}}
	assert.True(t, ln.FederatedRatify(prepareVoteFilter(b), statements))
}

func TestFederatedAcceptVBlocking(t *testing.T) {
	nodes := []string{"n1", "n2", "n3", "n4"}
	q := flatQuorum(nodes, 0.5)
	ln := NewLocalNode("n1", q, "hash", nil)

	b := &Ballot{Counter: 1, Value: "A"}
	statements := map[string]*Statement{
		"n2": {NodeID: "n2", StatementType: ultpb.StatementType_PREPARE, Stmt: &ultpb.Statement_Prepare{Prepare: &Prepare{B: b, P: b}}},
		"n3": {NodeID: "n3", StatementType: ultpb.StatementType_PREPARE, Stmt: &ultpb.Statement_Prepare{Prepare: &Prepare{B: b, P: b}}},
	}
	// n2 and n3 both accepted (P==b): that's a v-blocking set for a 50%
	// threshold quorum of 4, so federated accept succeeds regardless of
	// quorum-closure resolution.
	assert.True(t, ln.FederatedAccept(prepareVoteFilter(b), prepareAcceptFilter(b), statements))
}
