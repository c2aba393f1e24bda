// Package catchup persists the last self-emitted envelope per slot so
// a restarted process can rebuild its ballot state with
// BallotState.SetStateFromEnvelope instead of starting PREPARE(1,·)
// from scratch. This is squarely the containing system's job, not the
// ballot protocol core's -- the core persists nothing -- so this
// package sits outside consensus's own package boundary and only ever
// talks to BallotState through its exported methods.
package catchup

import (
	"github.com/pkg/errors"

	"github.com/ultiledger/go-ultiledger/consensus"
	"github.com/ultiledger/go-ultiledger/db"
	"github.com/ultiledger/go-ultiledger/ultpb"
)

const bucket = "CATCHUP"

// Cache persists the latest self-emitted envelope per slot.
type Cache struct {
	store db.Database
}

func New(store db.Database) (*Cache, error) {
	if err := store.CreateBucket(bucket); err != nil {
		return nil, errors.Wrap(err, "create catchup bucket")
	}
	return &Cache{store: store}, nil
}

func slotKey(slotIndex uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(slotIndex >> (8 * uint(i)))
	}
	return b
}

// Save persists env as the last self-emitted envelope for its slot.
func (c *Cache) Save(env *ultpb.Envelope) error {
	if env == nil || env.Statement == nil {
		return errors.New("cannot persist a nil envelope")
	}
	b, err := ultpb.Encode(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	if err := c.store.Put(bucket, slotKey(env.Statement.SlotIndex), b); err != nil {
		return errors.Wrap(err, "persist envelope")
	}
	return nil
}

// Load returns the persisted envelope for slotIndex, if any.
func (c *Cache) Load(slotIndex uint64) (*ultpb.Envelope, bool, error) {
	b, ok := c.store.Get(bucket, slotKey(slotIndex))
	if !ok {
		return nil, false, nil
	}
	env, err := ultpb.DecodeEnvelope(b)
	if err != nil {
		return nil, false, errors.Wrap(err, "decode envelope")
	}
	return env, true, nil
}

// Restore replays every persisted envelope back into its BallotState,
// intended to run once at process start before any fresh envelope is
// processed.
func Restore(store db.Database, slots func(slotIndex uint64) *consensus.BallotState) error {
	raw, err := store.GetAll(bucket)
	if err != nil {
		return errors.Wrap(err, "load persisted envelopes")
	}
	for key, b := range raw {
		var slotIndex uint64
		for i := 0; i < 8 && i < len(key); i++ {
			slotIndex = slotIndex<<8 | uint64(key[i])
		}
		env, err := ultpb.DecodeEnvelope(b)
		if err != nil {
			return errors.Wrapf(err, "decode persisted envelope for slot %d", slotIndex)
		}
		bs := slots(slotIndex)
		if bs == nil {
			continue
		}
		if err := bs.SetStateFromEnvelope(env); err != nil {
			return errors.Wrapf(err, "restore slot %d", slotIndex)
		}
	}
	return nil
}
