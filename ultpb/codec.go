package ultpb

import (
	"github.com/golang/protobuf/proto"

	"github.com/ultiledger/go-ultiledger/crypto"
)

// Encode pb message to bytes
func Encode(msg proto.Message) ([]byte, error) {
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Compute sha256 checksum of proto message
func SHA256Hash(msg proto.Message) (string, error) {
	b, err := Encode(msg)
	if err != nil {
		return "", err
	}
	return crypto.SHA256Hash(b), nil
}

// Decode pb message to quorum
func DecodeQuorum(b []byte) (*Quorum, error) {
	quorum := &Quorum{}
	if err := proto.Unmarshal(b, quorum); err != nil {
		return nil, err
	}
	return quorum, nil
}

// Decode pb message to consensus value
func DecodeConsensusValue(b []byte) (*ConsensusValue, error) {
	cv := &ConsensusValue{}
	if err := proto.Unmarshal(b, cv); err != nil {
		return nil, err
	}
	return cv, nil
}

// Decode pb message to statement
func DecodeStatement(b []byte) (*Statement, error) {
	stmt := &Statement{}
	if err := proto.Unmarshal(b, stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

// Decode pb message to envelope
func DecodeEnvelope(b []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := proto.Unmarshal(b, env); err != nil {
		return nil, err
	}
	return env, nil
}

// Decode pb message to nominate statement
func DecodeNominate(b []byte) (*Nominate, error) {
	nom := &Nominate{}
	if err := proto.Unmarshal(b, nom); err != nil {
		return nil, err
	}
	return nom, nil
}

// Decode pb message to ballot prepare statement
func DecodePrepare(b []byte) (*Prepare, error) {
	pre := &Prepare{}
	if err := proto.Unmarshal(b, pre); err != nil {
		return nil, err
	}
	return pre, nil
}

// Decode pb message to ballot confirm statement
func DecodeConfirm(b []byte) (*Confirm, error) {
	con := &Confirm{}
	if err := proto.Unmarshal(b, con); err != nil {
		return nil, err
	}
	return con, nil
}

// Decode pb message to ballot externalize statement
func DecodeExternalize(b []byte) (*Externalize, error) {
	ext := &Externalize{}
	if err := proto.Unmarshal(b, ext); err != nil {
		return nil, err
	}
	return ext, nil
}
