package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ultiledger/go-ultiledger/ultpb"
)

func TestCompareBallots(t *testing.T) {
	var lBallot, rBallot *Ballot
	assert.Equal(t, 0, compareBallots(lBallot, rBallot))

	lBallot = &Ballot{Value: "ABC", Counter: uint32(1)}
	assert.Equal(t, 1, compareBallots(lBallot, rBallot))
	assert.Equal(t, -1, compareBallots(rBallot, lBallot))

	rBallot = &Ballot{Value: "ABC", Counter: uint32(2)}
	assert.Equal(t, -1, compareBallots(lBallot, rBallot))

	rBallot.Counter = uint32(1)
	assert.Equal(t, 0, compareBallots(lBallot, rBallot))
	rBallot.Value = "BCD"
	assert.Equal(t, -1, compareBallots(lBallot, rBallot))
}

func TestCompatibleBallots(t *testing.T) {
	var lBallot, rBallot *Ballot
	assert.Equal(t, false, compatibleBallots(lBallot, rBallot))

	lBallot = &Ballot{Value: "ABC", Counter: uint32(1)}
	assert.Equal(t, false, compatibleBallots(lBallot, rBallot))

	rBallot = &Ballot{Value: "ABC", Counter: uint32(1)}
	assert.Equal(t, true, compatibleBallots(lBallot, rBallot))

	rBallot.Value = "BCD"
	assert.Equal(t, false, compatibleBallots(lBallot, rBallot))
}

func TestIsNewerStatementPrepare(t *testing.T) {
	lStmt := &Statement{
		StatementType: ultpb.StatementType_PREPARE,
		Stmt: &ultpb.Statement_Prepare{
			Prepare: &ultpb.Prepare{
				B:  &Ballot{Value: "ABC", Counter: uint32(123)},
				P:  &Ballot{Value: "ABC", Counter: uint32(123)},
				Q:  &Ballot{Value: "ABC", Counter: uint32(123)},
				HC: uint32(1),
			},
		},
	}
	rStmt := &Statement{
		StatementType: ultpb.StatementType_PREPARE,
		Stmt: &ultpb.Statement_Prepare{
			Prepare: &ultpb.Prepare{
				B:  &Ballot{Value: "ABC", Counter: uint32(234)},
				P:  &Ballot{Value: "ABC", Counter: uint32(123)},
				Q:  &Ballot{Value: "ABC", Counter: uint32(123)},
				HC: uint32(1),
			},
		},
	}
	assert.True(t, isNewerStatement(lStmt, rStmt))

	lStmt.GetPrepare().B.Counter = 234
	rStmt.GetPrepare().P.Counter = 234
	assert.True(t, isNewerStatement(lStmt, rStmt))

	rStmt.GetPrepare().P.Counter = 123
	assert.False(t, isNewerStatement(lStmt, rStmt))
}

func TestIsNewerStatementAcrossTypes(t *testing.T) {
	prep := &Statement{
		StatementType: ultpb.StatementType_PREPARE,
		Stmt:          &ultpb.Statement_Prepare{Prepare: &ultpb.Prepare{B: &Ballot{Counter: 1, Value: "A"}}},
	}
	conf := &Statement{
		StatementType: ultpb.StatementType_CONFIRM,
		Stmt:          &ultpb.Statement_Confirm{Confirm: &Confirm{B: &Ballot{Counter: 1, Value: "A"}}},
	}
	ext := &Statement{
		StatementType: ultpb.StatementType_EXTERNALIZE,
		Stmt:          &ultpb.Statement_Externalize{Externalize: &Externalize{B: &Ballot{Counter: 1, Value: "A"}}},
	}

	assert.True(t, isNewerStatement(prep, conf))
	assert.True(t, isNewerStatement(conf, ext))
	assert.False(t, isNewerStatement(ext, conf))
	assert.False(t, isNewerStatement(ext, ext))
}
