package consensus

import (
	"encoding/json"

	"github.com/deckarep/golang-set"
)

// ballotJSON/slotJSON mirror the shape BallotProtocol::getJsonInfo
// produces in the original implementation: enough to debug a stuck
// slot from the outside without exposing internal pointers.
type ballotJSON struct {
	Counter uint32 `json:"counter"`
	Value   string `json:"value"`
}

type slotInfoJSON struct {
	Slot            uint64      `json:"slot"`
	Phase           string      `json:"phase"`
	B               *ballotJSON `json:"b,omitempty"`
	P               *ballotJSON `json:"p,omitempty"`
	PPrime          *ballotJSON `json:"p_prime,omitempty"`
	H               *ballotJSON `json:"h,omitempty"`
	C               *ballotJSON `json:"c,omitempty"`
	HeardFromQuorum bool        `json:"heard_from_quorum"`
	NumStatements   int         `json:"num_statements"`
}

func toBallotJSON(b *Ballot) *ballotJSON {
	if b == nil {
		return nil
	}
	return &ballotJSON{Counter: b.Counter, Value: b.Value}
}

// GetJSONInfo renders this slot's ballot state for introspection,
// using encoding/json since no pack example wires a JSON library --
// every JSON surface in the corpus uses the standard library directly.
func (bs *BallotState) GetJSONInfo() (string, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	info := slotInfoJSON{
		Slot:            bs.slotIndex,
		Phase:           bs.phase.String(),
		B:               toBallotJSON(bs.b),
		P:               toBallotJSON(bs.p),
		PPrime:          toBallotJSON(bs.pPrime),
		H:               toBallotJSON(bs.h),
		C:               toBallotJSON(bs.c),
		HeardFromQuorum: bs.heardFromQuorum,
		NumStatements:   len(bs.latestEnvelopes),
	}
	b, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type quorumInfoJSON struct {
	Slot             uint64   `json:"slot"`
	QuorumHash       string   `json:"quorum_hash"`
	Validators       []string `json:"validators"`
	NodesHeardFrom   []string `json:"nodes_heard_from"`
	ClosestVBlocking []string `json:"closest_v_blocking,omitempty"`
}

// GetJSONQuorumInfo renders the local quorum together with which
// nodes the slot has heard from, and a v-blocking set picked greedily
// from those heard-from nodes, excluding the local node itself,
// mirroring BallotProtocol::getJsonQuorumInfo. The set is computed every
// time and is not guaranteed to be the smallest one.
func (bs *BallotState) GetJSONQuorumInfo() (string, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	heard := make([]string, 0, len(bs.latestEnvelopes))
	candidates := mapset.NewSet()
	for node := range bs.latestEnvelopes {
		heard = append(heard, node)
		candidates.Add(node)
	}

	info := quorumInfoJSON{
		Slot:           bs.slotIndex,
		QuorumHash:     bs.localNode.QuorumHash(),
		Validators:     bs.localNode.Quorum().Validators,
		NodesHeardFrom: heard,
	}

	closest := findClosestVBlocking(bs.localNode.Quorum(), candidates, bs.localNode.NodeID())
	for v := range closest.Iter() {
		info.ClosestVBlocking = append(info.ClosestVBlocking, v.(string))
	}

	b, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
