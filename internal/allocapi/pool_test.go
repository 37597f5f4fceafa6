package allocapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	type item struct{ id int }
	pool := NewPool[item]()

	// Crossing the page boundary must keep previously allocated items intact.
	const n = poolPageSize*2 + 5
	allocated := make([]*item, n)
	for i := 0; i < n; i++ {
		it := pool.Allocate()
		it.id = i
		allocated[i] = it
	}
	require.Equal(t, n, pool.Allocated())
	for i := 0; i < n; i++ {
		require.Equal(t, i, allocated[i].id)
		require.Equal(t, i, pool.View(i).id)
	}

	// Reset must zero the items and allow the pages to be reused.
	pool.Reset()
	require.Equal(t, 0, pool.Allocated())
	it := pool.Allocate()
	require.Equal(t, 0, it.id)
	require.Equal(t, 1, pool.Allocated())
}
