// Package ultpb defines the wire messages exchanged between SCP
// participants. Every message type satisfies proto.Message so it can be
// marshalled with github.com/golang/protobuf/proto, matching the wire
// layer of the original ultiledger codec.
package ultpb

// Value is an opaque byte string handed in by nomination. It is totally
// ordered lexicographically, which is exactly what Go's native string
// comparison gives us.
type Value = string

// StatementType enumerates the three ballot-protocol message kinds plus
// the out-of-scope nomination kind, ranked PREPARE < CONFIRM < EXTERNALIZE
// as required by the statement total order.
type StatementType int32

const (
	StatementType_NOMINATE    StatementType = 0
	StatementType_PREPARE     StatementType = 1
	StatementType_CONFIRM     StatementType = 2
	StatementType_EXTERNALIZE StatementType = 3
)

var StatementType_name = map[int32]string{
	0: "NOMINATE",
	1: "PREPARE",
	2: "CONFIRM",
	3: "EXTERNALIZE",
}

// Ballot is a (counter, value) pair, the unit of voting within a slot.
type Ballot struct {
	Counter uint32 `protobuf:"varint,1,opt,name=counter,proto3" json:"counter,omitempty"`
	Value   Value  `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *Ballot) Reset()         { *m = Ballot{} }
func (m *Ballot) String() string { return ballotToStr(m) }
func (*Ballot) ProtoMessage()    {}

// Quorum describes a nested quorum slice: a threshold fraction over a
// flat list of validator node IDs plus nested sub-quorums.
type Quorum struct {
	Threshold   float64   `protobuf:"fixed64,1,opt,name=threshold,proto3" json:"threshold,omitempty"`
	Validators  []string  `protobuf:"bytes,2,rep,name=validators,proto3" json:"validators,omitempty"`
	NestQuorums []*Quorum `protobuf:"bytes,3,rep,name=nest_quorums,json=nestQuorums,proto3" json:"nest_quorums,omitempty"`
}

func (m *Quorum) Reset()         { *m = Quorum{} }
func (m *Quorum) String() string { return "<quorum>" }
func (*Quorum) ProtoMessage()    {}

// Prepare is the PREPARE statement payload.
//
// Field names follow the teacher's existing convention: LC is the low
// (commit) counter nC, HC is the high counter nH.
type Prepare struct {
	QuorumHash string  `protobuf:"bytes,1,opt,name=quorum_hash,json=quorumHash,proto3" json:"quorum_hash,omitempty"`
	B          *Ballot `protobuf:"bytes,2,opt,name=b,proto3" json:"b,omitempty"`
	P          *Ballot `protobuf:"bytes,3,opt,name=p,proto3" json:"p,omitempty"`
	Q          *Ballot `protobuf:"bytes,4,opt,name=q,proto3" json:"q,omitempty"`
	LC         uint32  `protobuf:"varint,5,opt,name=lc,proto3" json:"lc,omitempty"`
	HC         uint32  `protobuf:"varint,6,opt,name=hc,proto3" json:"hc,omitempty"`
}

func (m *Prepare) Reset()         { *m = Prepare{} }
func (m *Prepare) String() string { return "<prepare>" }
func (*Prepare) ProtoMessage()    {}

// Confirm is the CONFIRM statement payload. PC is nPrepared, LC is
// nCommit, HC is nH.
type Confirm struct {
	QuorumHash string  `protobuf:"bytes,1,opt,name=quorum_hash,json=quorumHash,proto3" json:"quorum_hash,omitempty"`
	B          *Ballot `protobuf:"bytes,2,opt,name=b,proto3" json:"b,omitempty"`
	PC         uint32  `protobuf:"varint,3,opt,name=pc,proto3" json:"pc,omitempty"`
	LC         uint32  `protobuf:"varint,4,opt,name=lc,proto3" json:"lc,omitempty"`
	HC         uint32  `protobuf:"varint,5,opt,name=hc,proto3" json:"hc,omitempty"`
}

func (m *Confirm) Reset()         { *m = Confirm{} }
func (m *Confirm) String() string { return "<confirm>" }
func (*Confirm) ProtoMessage()    {}

// Externalize is the EXTERNALIZE statement payload: the commit ballot B
// plus the high counter HC that witnessed it.
type Externalize struct {
	B                *Ballot `protobuf:"bytes,1,opt,name=b,proto3" json:"b,omitempty"`
	HC               uint32  `protobuf:"varint,2,opt,name=hc,proto3" json:"hc,omitempty"`
	CommitQuorumHash string  `protobuf:"bytes,3,opt,name=commit_quorum_hash,json=commitQuorumHash,proto3" json:"commit_quorum_hash,omitempty"`
}

func (m *Externalize) Reset()         { *m = Externalize{} }
func (m *Externalize) String() string { return "<externalize>" }
func (*Externalize) ProtoMessage()    {}

// Nominate is the nomination-round payload. The nomination protocol
// itself is out of scope for the ballot core; this message exists only
// so a CompositeCandidateSource implementation has a wire shape to
// exchange votes/accepts in, mirroring the teacher's Decree.sendNomination.
type Nominate struct {
	QuorumHash string   `protobuf:"bytes,1,opt,name=quorum_hash,json=quorumHash,proto3" json:"quorum_hash,omitempty"`
	VoteList   []string `protobuf:"bytes,2,rep,name=vote_list,json=voteList,proto3" json:"vote_list,omitempty"`
	AcceptList []string `protobuf:"bytes,3,rep,name=accept_list,json=acceptList,proto3" json:"accept_list,omitempty"`
}

func (m *Nominate) Reset()         { *m = Nominate{} }
func (m *Nominate) String() string { return "<nominate>" }
func (*Nominate) ProtoMessage()    {}

// ConsensusValue is the opaque composite candidate value nomination hands
// to the ballot protocol.
type ConsensusValue struct {
	TxListHash  string `protobuf:"bytes,1,opt,name=tx_list_hash,json=txListHash,proto3" json:"tx_list_hash,omitempty"`
	ProposeTime int64  `protobuf:"varint,2,opt,name=propose_time,json=proposeTime,proto3" json:"propose_time,omitempty"`
}

func (m *ConsensusValue) Reset()         { *m = ConsensusValue{} }
func (m *ConsensusValue) String() string { return "<consensus_value>" }
func (*ConsensusValue) ProtoMessage()    {}

// Statement is a tagged union over the four statement kinds. Stmt holds
// exactly one of the Statement_Prepare/Confirm/Externalize/Nominate
// wrappers, following the classic protoc-gen-go oneof pattern.
type Statement struct {
	NodeID        string        `protobuf:"bytes,1,opt,name=node_id,json=nodeId,proto3" json:"node_id,omitempty"`
	SlotIndex     uint64        `protobuf:"varint,2,opt,name=slot_index,json=slotIndex,proto3" json:"slot_index,omitempty"`
	StatementType StatementType `protobuf:"varint,3,opt,name=statement_type,json=statementType,proto3,enum=ultpb.StatementType" json:"statement_type,omitempty"`
	// Types that are valid to be assigned to Stmt:
	//	*Statement_Prepare
	//	*Statement_Confirm
	//	*Statement_Externalize
	//	*Statement_Nominate
	Stmt isStatement_Stmt `protobuf_oneof:"stmt"`
}

func (m *Statement) Reset()         { *m = Statement{} }
func (m *Statement) String() string { return "<statement>" }
func (*Statement) ProtoMessage()    {}

type isStatement_Stmt interface {
	isStatement_Stmt()
}

type Statement_Prepare struct {
	Prepare *Prepare `protobuf:"bytes,4,opt,name=prepare,proto3,oneof"`
}

type Statement_Confirm struct {
	Confirm *Confirm `protobuf:"bytes,5,opt,name=confirm,proto3,oneof"`
}

type Statement_Externalize struct {
	Externalize *Externalize `protobuf:"bytes,6,opt,name=externalize,proto3,oneof"`
}

type Statement_Nominate struct {
	Nominate *Nominate `protobuf:"bytes,7,opt,name=nominate,proto3,oneof"`
}

func (*Statement_Prepare) isStatement_Stmt()     {}
func (*Statement_Confirm) isStatement_Stmt()     {}
func (*Statement_Externalize) isStatement_Stmt() {}
func (*Statement_Nominate) isStatement_Stmt()    {}

func (m *Statement) GetPrepare() *Prepare {
	if x, ok := m.GetStmt().(*Statement_Prepare); ok {
		return x.Prepare
	}
	return nil
}

func (m *Statement) GetConfirm() *Confirm {
	if x, ok := m.GetStmt().(*Statement_Confirm); ok {
		return x.Confirm
	}
	return nil
}

func (m *Statement) GetExternalize() *Externalize {
	if x, ok := m.GetStmt().(*Statement_Externalize); ok {
		return x.Externalize
	}
	return nil
}

func (m *Statement) GetNominate() *Nominate {
	if x, ok := m.GetStmt().(*Statement_Nominate); ok {
		return x.Nominate
	}
	return nil
}

func (m *Statement) GetStmt() isStatement_Stmt {
	if m != nil {
		return m.Stmt
	}
	return nil
}

// XXX_OneofWrappers lets golang/protobuf's table-driven marshaler find
// the concrete types that can occupy Stmt; without it Marshal silently
// skips the oneof field and Stmt never reaches the wire.
func (*Statement) XXX_OneofWrappers() []interface{} {
	return []interface{}{
		(*Statement_Prepare)(nil),
		(*Statement_Confirm)(nil),
		(*Statement_Externalize)(nil),
		(*Statement_Nominate)(nil),
	}
}

// Envelope wraps a Statement with its originating node's signature, a
// base58-encoded ed25519 signature over the marshalled Statement. The
// ballot core itself never inspects it; the containing system signs
// on the way out and verifies on the way in.
type Envelope struct {
	Statement *Statement `protobuf:"bytes,1,opt,name=statement,proto3" json:"statement,omitempty"`
	Signature string     `protobuf:"bytes,2,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *Envelope) Reset()         { *m = Envelope{} }
func (m *Envelope) String() string { return "<envelope>" }
func (*Envelope) ProtoMessage()    {}

func ballotToStr(b *Ballot) string {
	if b == nil {
		return "(<null>)"
	}
	return "(" + itoa(b.Counter) + "," + b.Value + ")"
}

func itoa(u uint32) string {
	if u == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}
