package consensus

import "github.com/ultiledger/go-ultiledger/ultpb"

// AcceptAllValidator is a ValueValidator that accepts every non-empty
// value; useful for tests and for the loopback harness in cmd/scpnode
// where real value validation has nowhere to plug in yet.
type AcceptAllValidator struct{}

func (AcceptAllValidator) Validate(slotIndex uint64, value ultpb.Value) ValidationResult {
	if value == "" {
		return ValueInvalid
	}
	return ValueValid
}

// InMemoryCandidateSource is a CompositeCandidateSource backed by a
// plain map, standing in for the out-of-scope nomination subsystem in
// tests and the loopback harness.
type InMemoryCandidateSource struct {
	candidates map[uint64]ultpb.Value
}

func NewInMemoryCandidateSource() *InMemoryCandidateSource {
	return &InMemoryCandidateSource{candidates: make(map[uint64]ultpb.Value)}
}

func (s *InMemoryCandidateSource) SetCandidate(slotIndex uint64, value ultpb.Value) {
	s.candidates[slotIndex] = value
}

func (s *InMemoryCandidateSource) LatestCompositeCandidate(slotIndex uint64) (ultpb.Value, bool) {
	v, ok := s.candidates[slotIndex]
	return v, ok
}
