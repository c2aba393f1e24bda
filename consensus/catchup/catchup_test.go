package catchup

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultiledger/go-ultiledger/consensus"
	"github.com/ultiledger/go-ultiledger/db/boltdb"
	"github.com/ultiledger/go-ultiledger/ultpb"
)

func openTestStore(t *testing.T) (*Cache, func()) {
	dir, err := ioutil.TempDir("", "catchup-test")
	require.NoError(t, err)

	store := boltdb.New(filepath.Join(dir, "catchup.db"))
	cache, err := New(store)
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(dir)
	}
	return cache, cleanup
}

func envelopeFor(node string, slotIndex uint64) *ultpb.Envelope {
	return &ultpb.Envelope{Statement: &ultpb.Statement{
		NodeID:        node,
		SlotIndex:     slotIndex,
		StatementType: ultpb.StatementType_EXTERNALIZE,
		Stmt: &ultpb.Statement_Externalize{Externalize: &ultpb.Externalize{
			B:  &ultpb.Ballot{Counter: 3, Value: "A"},
			HC: 3,
		}},
	}}
}

func TestCacheSaveAndLoad(t *testing.T) {
	cache, cleanup := openTestStore(t)
	defer cleanup()

	_, ok, err := cache.Load(1)
	require.NoError(t, err)
	assert.False(t, ok)

	env := envelopeFor("n1", 1)
	require.NoError(t, cache.Save(env))

	loaded, ok, err := cache.Load(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env.Statement.NodeID, loaded.Statement.NodeID)
	assert.Equal(t, env.Statement.SlotIndex, loaded.Statement.SlotIndex)
	assert.Equal(t, env.Statement.StatementType, loaded.Statement.StatementType)
}

func TestCacheSaveOverwritesSameSlot(t *testing.T) {
	cache, cleanup := openTestStore(t)
	defer cleanup()

	require.NoError(t, cache.Save(envelopeFor("n1", 5)))
	require.NoError(t, cache.Save(envelopeFor("n2", 5)))

	loaded, ok, err := cache.Load(5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "n2", loaded.Statement.NodeID)
}

func TestCacheSaveRejectsNilEnvelope(t *testing.T) {
	cache, cleanup := openTestStore(t)
	defer cleanup()

	assert.Error(t, cache.Save(nil))
	assert.Error(t, cache.Save(&ultpb.Envelope{}))
}

func TestRestoreReplaysEveryPersistedEnvelope(t *testing.T) {
	cache, cleanup := openTestStore(t)
	defer cleanup()

	require.NoError(t, cache.Save(envelopeFor("n1", 1)))
	require.NoError(t, cache.Save(envelopeFor("n1", 2)))

	quorum := &ultpb.Quorum{Threshold: 1.0, Validators: []string{"n1"}}
	restored := make(map[uint64]*consensus.BallotState)
	slots := func(slotIndex uint64) *consensus.BallotState {
		if bs, ok := restored[slotIndex]; ok {
			return bs
		}
		ln := consensus.NewLocalNode("n1", quorum, "qhash", nil)
		bs := consensus.NewBallotState(slotIndex, ln, nil)
		restored[slotIndex] = bs
		return bs
	}

	require.NoError(t, Restore(cache.store, slots))
	assert.Len(t, restored, 2)
	for _, bs := range restored {
		assert.Equal(t, consensus.PhaseExternalize, bs.CurrentPhase())
	}
}
