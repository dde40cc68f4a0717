package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetRemove(t *testing.T) {
	s := New()

	_, ok, err := s.GetItem("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetItem("k", "v"))
	v, ok, err := s.GetItem("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.SetItem("k", "v2"))
	v, _, _ = s.GetItem("k")
	assert.Equal(t, "v2", v)

	require.NoError(t, s.RemoveItem("k"))
	require.NoError(t, s.RemoveItem("k"))
	_, ok, _ = s.GetItem("k")
	assert.False(t, ok)
}

func TestStore_EmptyValueIsPresent(t *testing.T) {
	s := New()
	require.NoError(t, s.SetItem("k", ""))

	v, ok, err := s.GetItem("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestStore_KeysAndClear(t *testing.T) {
	s := New()
	for _, k := range []string{"b", "a", "c"} {
		require.NoError(t, s.SetItem(k, k))
	}

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.Clear())
	keys, err = s.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d-%d", n, j)
				_ = s.SetItem(key, "v")
				_, _, _ = s.GetItem(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 800, s.Len())
}
