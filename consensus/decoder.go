package consensus

import (
	"time"

	"github.com/wunderlist/ttlcache"

	"github.com/ultiledger/go-ultiledger/ultpb"
)

// statementCache memoizes the decode of raw envelope bytes into
// *ultpb.Statement, keyed by their base58 hash, so the same wire
// envelope seen from several peers (or replayed from the catch-up
// cache) isn't unmarshalled more than once per TTL window.
var statementCache *ttlcache.Cache

func init() {
	statementCache = ttlcache.NewCache(time.Minute)
}

// decodeStatementCached decodes raw bytes into a Statement, consulting
// statementCache first. hash must be a content hash of b (callers
// already compute one for dedup purposes via ultpb.SHA256Hash).
func decodeStatementCached(hash string, b []byte) (*Statement, error) {
	if v, ok := statementCache.Get(hash); ok {
		return v.(*Statement), nil
	}
	stmt, err := ultpb.DecodeStatement(b)
	if err != nil {
		return nil, err
	}
	statementCache.Set(hash, stmt)
	return stmt, nil
}
