package testutils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

func TestMemStoreReviewLifecycle(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.CreateReview(ctx, "pr-1"))
	assert.ErrorIs(t, store.CreateReview(ctx, "pr-1"), ports.ErrReviewExists)

	_, err := store.GetOrderings(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrReviewNotFound)

	require.NoError(t, store.CreateReview(ctx, "pr-0"))
	ids, err := store.ListReviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pr-0", "pr-1"}, ids)
}

func TestMemStorePutOrderingReplacesInPlace(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateReview(ctx, "pr-1"))

	require.NoError(t, store.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go"}}))
	require.NoError(t, store.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "bob", Items: []string{"b.go"}}))

	// Resubmission keeps alice in her original slot.
	require.NoError(t, store.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go", "c.go"}}))

	orderings, err := store.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	require.Len(t, orderings, 2)
	assert.Equal(t, "alice", orderings[0].Participant)
	assert.Equal(t, []string{"a.go", "c.go"}, orderings[0].Items)
	assert.Equal(t, "bob", orderings[1].Participant)
}

func TestMemStoreGetOrderingsReturnsCopies(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateReview(ctx, "pr-1"))
	require.NoError(t, store.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go", "b.go"}}))

	first, err := store.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	first[0].Items[0] = "mutated.go"

	second, err := store.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, second[0].Items)
}

func TestMemStoreDeleteOrdering(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateReview(ctx, "pr-1"))
	require.NoError(t, store.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go"}}))

	assert.ErrorIs(t, store.DeleteOrdering(ctx, "pr-1", "bob"), ports.ErrOrderingNotFound)
	require.NoError(t, store.DeleteOrdering(ctx, "pr-1", "alice"))

	orderings, err := store.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	assert.Empty(t, orderings)
}

func TestMemStoreFailureInjection(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateReview(ctx, "pr-1"))

	boom := errors.New("disk on fire")
	store.FailReview("pr-1", boom)

	_, err := store.GetOrderings(ctx, "pr-1")
	assert.ErrorIs(t, err, boom)

	store.FailReview("pr-1", nil)
	_, err = store.GetOrderings(ctx, "pr-1")
	assert.NoError(t, err)
}

func TestMemStoreClose(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateReview(ctx, "pr-1"))
	require.NoError(t, store.Close())

	_, err := store.GetOrderings(ctx, "pr-1")
	assert.ErrorIs(t, err, ports.ErrStoreUnavailable)

	var storeErr *ports.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.True(t, storeErr.IsRetryable())
}
