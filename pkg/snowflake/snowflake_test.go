package snowflake

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNode_RejectsOutOfRange(t *testing.T) {
	_, err := NewNode(-1)
	require.Error(t, err)

	_, err = NewNode(1024)
	require.Error(t, err)

	_, err = NewNode(1023)
	require.NoError(t, err)
}

func TestGenerate_MonotonicWithinNode(t *testing.T) {
	node, err := NewNode(1)
	require.NoError(t, err)

	prev := node.Generate()
	for i := 0; i < 10000; i++ {
		id := node.Generate()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestGenerate_UniqueUnderConcurrency(t *testing.T) {
	node, err := NewNode(1)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 1000)
			for j := range ids {
				ids[j] = node.Generate()
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				require.False(t, seen[id], "duplicate id %d", id)
				seen[id] = true
			}
		}()
	}
	wg.Wait()
}
