package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

func newBoltStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concord.db")
	s, err := NewBoltStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestBoltStoreReviewLifecycle(t *testing.T) {
	s, _ := newBoltStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateReview(ctx, "pr-1"))
	assert.ErrorIs(t, s.CreateReview(ctx, "pr-1"), ports.ErrReviewExists)

	_, err := s.GetOrderings(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrReviewNotFound)

	require.NoError(t, s.CreateReview(ctx, "pr-0"))
	ids, err := s.ListReviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pr-0", "pr-1"}, ids)

	orderings, err := s.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	assert.Empty(t, orderings)
}

func TestBoltStorePutOrderingReplacesInPlace(t *testing.T) {
	s, _ := newBoltStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateReview(ctx, "pr-1"))

	require.NoError(t, s.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go"}}))
	require.NoError(t, s.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "bob", Items: []string{"b.go"}}))

	// Resubmission keeps alice in her original slot.
	require.NoError(t, s.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go", "c.go"}}))

	orderings, err := s.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	require.Len(t, orderings, 2)
	assert.Equal(t, "alice", orderings[0].Participant)
	assert.Equal(t, []string{"a.go", "c.go"}, orderings[0].Items)
	assert.Equal(t, "bob", orderings[1].Participant)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	s, _ := newBoltStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateReview(ctx, "pr-1"))

	want := domain.Ordering{
		Participant: "alice",
		Items:       []string{"cmd/main.go", "internal/app.go"},
		CreatedAt:   time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC),
		Source:      "manual",
	}
	require.NoError(t, s.PutOrdering(ctx, "pr-1", want))

	// An empty non-nil item slice is a valid "no vote" and must survive
	// serialization as such.
	require.NoError(t, s.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "bob", Items: []string{}}))

	orderings, err := s.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	require.Len(t, orderings, 2)
	assert.Equal(t, want, orderings[0])
	assert.NotNil(t, orderings[1].Items)
	assert.Empty(t, orderings[1].Items)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	s, path := newBoltStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateReview(ctx, "pr-1"))
	require.NoError(t, s.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go", "b.go"}}))
	require.NoError(t, s.Close())

	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	orderings, err := reopened.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	require.Len(t, orderings, 1)
	assert.Equal(t, []string{"a.go", "b.go"}, orderings[0].Items)
}

func TestBoltStoreDeleteOrdering(t *testing.T) {
	s, _ := newBoltStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateReview(ctx, "pr-1"))
	require.NoError(t, s.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go"}}))
	require.NoError(t, s.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "bob", Items: []string{"b.go"}}))

	assert.ErrorIs(t, s.DeleteOrdering(ctx, "pr-1", "carol"), ports.ErrOrderingNotFound)
	assert.ErrorIs(t, s.DeleteOrdering(ctx, "missing", "alice"), ports.ErrReviewNotFound)

	require.NoError(t, s.DeleteOrdering(ctx, "pr-1", "alice"))
	orderings, err := s.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	require.Len(t, orderings, 1)
	assert.Equal(t, "bob", orderings[0].Participant)

	// A participant who resubmits after deletion lands at the end.
	require.NoError(t, s.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"c.go"}}))
	orderings, err = s.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	require.Len(t, orderings, 2)
	assert.Equal(t, "bob", orderings[0].Participant)
	assert.Equal(t, "alice", orderings[1].Participant)
}

func TestNewBoltStoreBadPath(t *testing.T) {
	_, err := NewBoltStore(filepath.Join(t.TempDir(), "no", "such", "dir", "concord.db"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "open bolt store")
}
