package storage

import (
	"encoding/json"

	"github.com/tidwall/buntdb"

	"github.com/lumenquant/coreengine/contracts"
)

// DayCache is a buntdb-backed contracts.Store keyed by an opaque string
// (feed.MemoizedLineSource keys it by symbol), used by the subscription
// reader's memoizer so a long backtest doesn't re-open the same source twice across warm-up and
// live replay (spec §9's contract-glue memoizer, given a durable backing
// store). Grounded on the teacher's Bunt order store, generalized from a
// fixed Order schema to arbitrary byte values.
type DayCache struct {
	db *buntdb.DB
}

// NewMemoryDayCache opens an in-process, non-persistent cache.
func NewMemoryDayCache() (*DayCache, error) {
	return newDayCache(":memory:")
}

// NewFileDayCache opens a cache persisted at file.
func NewFileDayCache(file string) (*DayCache, error) {
	return newDayCache(file)
}

func newDayCache(source string) (*DayCache, error) {
	db, err := buntdb.Open(source)
	if err != nil {
		return nil, err
	}
	return &DayCache{db: db}, nil
}

// Get satisfies contracts.Store: it reports whether key was previously Set.
func (c *DayCache) Get(key string) ([]byte, bool, error) {
	var value string
	err := c.db.View(func(tx *buntdb.Tx) error {
		v, txErr := tx.Get(key)
		value = v
		return txErr
	})
	if err == buntdb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// Set persists value under key.
func (c *DayCache) Set(key string, value []byte) error {
	return c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(value), nil)
		return err
	})
}

// Close releases the underlying database handle.
func (c *DayCache) Close() error {
	return c.db.Close()
}

// JSONCodec builds a contracts.Codec[V] that (de)serializes V as JSON, the
// encoding the cache values use throughout this module.
func JSONCodec[V any]() contracts.Codec[V] {
	return contracts.Codec[V]{
		Encode: func(v V) ([]byte, error) { return json.Marshal(v) },
		Decode: func(raw []byte) (V, error) {
			var v V
			err := json.Unmarshal(raw, &v)
			return v, err
		},
	}
}
