package selector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJumpSelectorConsistency(t *testing.T) {
	sel := NewJumpSelector(XXH3Hash)

	first := sel("test-key-123", 10)
	require.Equal(t, first, sel("test-key-123", 10))
	require.Equal(t, first, sel("test-key-123", 10))
}

func TestJumpSelectorBounds(t *testing.T) {
	for _, hash := range []HashFunc{XXH3Hash, Murmur3Hash} {
		sel := NewJumpSelector(hash)
		keys := []string{"key1", "key2", "long-key-with-many-characters"}
		counts := []int{1, 2, 5, 10, 100}

		for _, key := range keys {
			for _, n := range counts {
				result := sel(key, n)
				require.True(t, result >= 0 && result < n, "out of bounds: key=%s, n=%d, result=%d", key, n, result)
			}
		}
	}
}

func TestJumpSelectorDistribution(t *testing.T) {
	sel := NewJumpSelector(XXH3Hash)
	n := 10
	distribution := make(map[int]int)

	for i := range 1000 {
		key := fmt.Sprintf("key-%d", i)
		distribution[sel(key, n)]++
	}

	require.Len(t, distribution, n, "expected keys to spread across all backends")
}

func TestPoolSelectNoBackends(t *testing.T) {
	p := NewPool("empty", nil, NewJumpSelector(XXH3Hash))

	_, err := p.Select("test")
	require.ErrorIs(t, err, ErrNoBackends)
}

func TestPoolSelectSingleBackend(t *testing.T) {
	p := NewPool("single", []string{"10.0.0.1:11211"}, NewJumpSelector(XXH3Hash))

	addr, err := p.Select("anything")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:11211", addr)
}

func TestPoolSelectStatic(t *testing.T) {
	backends := []string{"a:1", "b:1", "c:1"}
	p := NewPool("pinned", backends, Static(1))

	addr, err := p.Select("whatever")
	require.NoError(t, err)
	require.Equal(t, "b:1", addr)
}

func TestMurmur3KnownVectors(t *testing.T) {
	require.Equal(t, uint32(0), Murmur3_32(nil, 0))
	require.NotEqual(t, Murmur3_32([]byte("a"), 0), Murmur3_32([]byte("b"), 0))
	require.Equal(t, Murmur3_32([]byte("hello"), 0), Murmur3_32([]byte("hello"), 0))
}
