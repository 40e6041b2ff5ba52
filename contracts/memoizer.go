package contracts

import "sync"

// Store is the backing persistence a Memoizer reads through to. Get reports
// whether a cached value exists; Set persists one.
type Store interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
}

// Codec converts between a typed value and the bytes a Store persists.
type Codec[V any] struct {
	Encode func(V) ([]byte, error)
	Decode func([]byte) (V, error)
}

// Memoizer is a read-through cache per enumerable: each key is resolved by
// Loader at most once per process, with the result additionally persisted to
// a Store so long backtests don't pay the Loader's cost again after a warm
// restart (spec §9 "generator-style lazy sequences" -> explicit memoizer).
type Memoizer[V any] struct {
	mu     sync.Mutex
	memory map[string]V
	store  Store
	codec  Codec[V]
	loader func(key string) (V, error)
}

// NewMemoizer builds a memoizer backed by store (may be nil for in-memory
// only) using codec to (de)serialize values, calling loader on a full miss.
func NewMemoizer[V any](store Store, codec Codec[V], loader func(key string) (V, error)) *Memoizer[V] {
	return &Memoizer[V]{
		memory: make(map[string]V),
		store:  store,
		codec:  codec,
		loader: loader,
	}
}

// Get resolves key, checking the in-memory map, then the backing store, then
// finally invoking Loader and persisting the result.
func (m *Memoizer[V]) Get(key string) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.memory[key]; ok {
		return v, nil
	}

	if m.store != nil {
		if raw, ok, err := m.store.Get(key); err == nil && ok {
			v, decErr := m.codec.Decode(raw)
			if decErr == nil {
				m.memory[key] = v
				return v, nil
			}
		}
	}

	v, err := m.loader(key)
	if err != nil {
		var zero V
		return zero, err
	}
	m.memory[key] = v
	if m.store != nil {
		if raw, encErr := m.codec.Encode(v); encErr == nil {
			_ = m.store.Set(key, raw)
		}
	}
	return v, nil
}
