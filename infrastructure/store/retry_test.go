package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
	"github.com/rkonrad/go-concord/internal/testutils"
)

// flakyStore fails a fixed number of calls with a canned error before
// delegating to an in-memory store.
type flakyStore struct {
	inner     ports.ReviewStore
	remaining int
	err       error
	calls     int
}

func newFlakyStore(failures int, err error) *flakyStore {
	return &flakyStore{inner: testutils.NewMemStore(), remaining: failures, err: err}
}

func (f *flakyStore) gate() error {
	f.calls++
	if f.remaining > 0 {
		f.remaining--
		return f.err
	}
	return nil
}

func (f *flakyStore) CreateReview(ctx context.Context, reviewID string) error {
	if err := f.gate(); err != nil {
		return err
	}
	return f.inner.CreateReview(ctx, reviewID)
}

func (f *flakyStore) PutOrdering(ctx context.Context, reviewID string, ordering domain.Ordering) error {
	if err := f.gate(); err != nil {
		return err
	}
	return f.inner.PutOrdering(ctx, reviewID, ordering)
}

func (f *flakyStore) GetOrderings(ctx context.Context, reviewID string) ([]domain.Ordering, error) {
	if err := f.gate(); err != nil {
		return nil, err
	}
	return f.inner.GetOrderings(ctx, reviewID)
}

func (f *flakyStore) DeleteOrdering(ctx context.Context, reviewID, participant string) error {
	if err := f.gate(); err != nil {
		return err
	}
	return f.inner.DeleteOrdering(ctx, reviewID, participant)
}

func (f *flakyStore) ListReviews(ctx context.Context) ([]string, error) {
	if err := f.gate(); err != nil {
		return nil, err
	}
	return f.inner.ListReviews(ctx)
}

func (f *flakyStore) Close() error { return f.inner.Close() }

func unavailableErr(review, op string) error {
	return ports.NewStoreError(review, op, ports.ErrStoreUnavailable)
}

func TestRetryStoreRecoversFromTransientFailures(t *testing.T) {
	flaky := newFlakyStore(2, unavailableErr("pr-1", "create_review"))
	retrying := WithRetry(flaky, 3, time.Millisecond, 5*time.Millisecond)

	require.NoError(t, retrying.CreateReview(context.Background(), "pr-1"))
	assert.Equal(t, 3, flaky.calls)

	// The review must actually exist after the recovery.
	ids, err := retrying.ListReviews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pr-1"}, ids)
}

func TestRetryStoreStopsOnNonRetryableErrors(t *testing.T) {
	flaky := newFlakyStore(1, ports.NewStoreError("pr-1", "get_orderings", ports.ErrReviewNotFound))
	retrying := WithRetry(flaky, 3, time.Millisecond, 5*time.Millisecond)

	_, err := retrying.GetOrderings(context.Background(), "pr-1")
	require.ErrorIs(t, err, ports.ErrReviewNotFound)
	assert.Equal(t, 1, flaky.calls, "logic errors must not be retried")
}

func TestRetryStoreExhaustsAttemptBudget(t *testing.T) {
	flaky := newFlakyStore(10, unavailableErr("", "list_reviews"))
	retrying := WithRetry(flaky, 2, time.Millisecond, 5*time.Millisecond)

	_, err := retrying.ListReviews(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryStoreHonorsCancelledContext(t *testing.T) {
	flaky := newFlakyStore(10, unavailableErr("pr-1", "put_ordering"))
	retrying := WithRetry(flaky, 5, time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retrying.PutOrdering(ctx, "pr-1", domain.Ordering{Participant: "alice", Items: []string{"a.go"}})
	require.Error(t, err)
	assert.Equal(t, 1, flaky.calls, "a cancelled context must stop the retry loop")
}

func TestRetryStorePassesThroughWithoutFailures(t *testing.T) {
	retrying := WithRetry(testutils.NewMemStore(), 3, time.Millisecond, 5*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, retrying.CreateReview(ctx, "pr-1"))
	require.NoError(t, retrying.PutOrdering(ctx, "pr-1",
		domain.Ordering{Participant: "alice", Items: []string{"a.go", "b.go"}}))

	orderings, err := retrying.GetOrderings(ctx, "pr-1")
	require.NoError(t, err)
	require.Len(t, orderings, 1)
	assert.Equal(t, "alice", orderings[0].Participant)

	require.NoError(t, retrying.DeleteOrdering(ctx, "pr-1", "alice"))
	require.NoError(t, retrying.Close())
}

func TestRetryStoreDelayStaysWithinBounds(t *testing.T) {
	retrying := WithRetry(testutils.NewMemStore(), 8, 10*time.Millisecond, 50*time.Millisecond)

	for attempt := 0; attempt < 10; attempt++ {
		d := retrying.delay(attempt)
		assert.Greater(t, d, time.Duration(0), "attempt %d", attempt)
		assert.LessOrEqual(t, d, 50*time.Millisecond, "attempt %d", attempt)
	}
}
