package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

// RetryStore wraps a ReviewStore with automatic retry for transient
// failures. Only errors the backend marks retryable are retried; logic
// errors such as a missing review surface immediately.
type RetryStore struct {
	next       ports.ReviewStore
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// WithRetry decorates next with exponential-backoff retries. maxRetries
// counts the attempts after the first one, so 3 allows four calls total.
func WithRetry(next ports.ReviewStore, maxRetries int, baseDelay, maxDelay time.Duration) *RetryStore {
	return &RetryStore{
		next:       next,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

func (s *RetryStore) CreateReview(ctx context.Context, reviewID string) error {
	return s.do(ctx, func() error { return s.next.CreateReview(ctx, reviewID) })
}

func (s *RetryStore) PutOrdering(ctx context.Context, reviewID string, ordering domain.Ordering) error {
	return s.do(ctx, func() error { return s.next.PutOrdering(ctx, reviewID, ordering) })
}

func (s *RetryStore) GetOrderings(ctx context.Context, reviewID string) ([]domain.Ordering, error) {
	var orderings []domain.Ordering
	err := s.do(ctx, func() error {
		var opErr error
		orderings, opErr = s.next.GetOrderings(ctx, reviewID)
		return opErr
	})
	return orderings, err
}

func (s *RetryStore) DeleteOrdering(ctx context.Context, reviewID, participant string) error {
	return s.do(ctx, func() error { return s.next.DeleteOrdering(ctx, reviewID, participant) })
}

func (s *RetryStore) ListReviews(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.do(ctx, func() error {
		var opErr error
		ids, opErr = s.next.ListReviews(ctx)
		return opErr
	})
	return ids, err
}

func (s *RetryStore) Close() error { return s.next.Close() }

// do runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent.
func (s *RetryStore) do(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt == s.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay(attempt)):
		}
	}

	return fmt.Errorf("store request failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

func retryable(err error) bool {
	var storeErr *ports.StoreError
	if errors.As(err, &storeErr) {
		return storeErr.IsRetryable()
	}
	return errors.Is(err, ports.ErrStoreUnavailable)
}

func (s *RetryStore) delay(attempt int) time.Duration {
	// Exponential backoff with jitter.
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	multiplier := 1 << uint(attempt)
	delay := time.Duration(float64(s.baseDelay) * float64(multiplier))

	// Add jitter (±25%).
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if delay > s.maxDelay {
		delay = s.maxDelay
	}
	return delay
}

var _ ports.ReviewStore = (*RetryStore)(nil)
