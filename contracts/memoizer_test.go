package contracts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	data map[string][]byte
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string][]byte)} }

func (s *mapStore) Get(key string) ([]byte, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(key string, value []byte) error {
	s.data[key] = value
	return nil
}

func TestMemoizer_LoaderCalledOnceThenMemoized(t *testing.T) {
	calls := 0
	codec := Codec[int]{
		Encode: func(v int) ([]byte, error) { return []byte(fmt.Sprint(v)), nil },
		Decode: func(b []byte) (int, error) { var v int; _, err := fmt.Sscan(string(b), &v); return v, err },
	}
	m := NewMemoizer(newMapStore(), codec, func(key string) (int, error) {
		calls++
		return len(key), nil
	})

	v1, err := m.Get("hello")
	require.NoError(t, err)
	assert.Equal(t, 5, v1)

	v2, err := m.Get("hello")
	require.NoError(t, err)
	assert.Equal(t, 5, v2)
	assert.Equal(t, 1, calls, "loader must not be called twice for the same key")
}

func TestMemoizer_ReadsThroughStoreBeforeLoading(t *testing.T) {
	store := newMapStore()
	codec := Codec[int]{
		Encode: func(v int) ([]byte, error) { return []byte(fmt.Sprint(v)), nil },
		Decode: func(b []byte) (int, error) { var v int; _, err := fmt.Sscan(string(b), &v); return v, err },
	}
	require.NoError(t, store.Set("k", []byte("99")))

	calls := 0
	m := NewMemoizer(store, codec, func(key string) (int, error) {
		calls++
		return 0, nil
	})

	v, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, 99, v)
	assert.Equal(t, 0, calls, "a store hit must not invoke the loader")
}
