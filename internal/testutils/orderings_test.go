package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePoolIsDeterministic(t *testing.T) {
	pool := FilePool(8)
	require.Len(t, pool, 8)
	assert.Equal(t, pool, FilePool(8))

	seen := make(map[string]struct{}, len(pool))
	for _, path := range pool {
		_, dup := seen[path]
		assert.False(t, dup, "duplicate path %q", path)
		seen[path] = struct{}{}
	}
}

func TestGenerateOrderings(t *testing.T) {
	orderings := GenerateOrderings(4, 20, 5, 42)
	require.Len(t, orderings, 4)

	for _, o := range orderings {
		require.NoError(t, o.Validate())
		assert.Len(t, o.Items, 20)
		assert.False(t, o.CreatedAt.IsZero())
	}

	// Same seed reproduces the same reviews.
	again := GenerateOrderings(4, 20, 5, 42)
	assert.Equal(t, orderings, again)

	// Zero swaps leaves every participant on the canonical pool order.
	calm := GenerateOrderings(2, 10, 0, 7)
	assert.Equal(t, FilePool(10), calm[0].Items)
	assert.Equal(t, FilePool(10), calm[1].Items)
}
