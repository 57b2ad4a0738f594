package store

import (
	"context"
	"errors"
	"time"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

// InstrumentedStore records the latency and outcome of every store
// operation through a MetricsCollector, giving deployments visibility
// into backend health independent of the reconciler's own metrics.
type InstrumentedStore struct {
	next      ports.ReviewStore
	collector ports.MetricsCollector
}

// WithInstrumentation decorates next with per-operation metrics. A nil
// collector leaves the store unwrapped.
func WithInstrumentation(next ports.ReviewStore, collector ports.MetricsCollector) ports.ReviewStore {
	if collector == nil {
		return next
	}
	return &InstrumentedStore{next: next, collector: collector}
}

func (s *InstrumentedStore) CreateReview(ctx context.Context, reviewID string) error {
	start := time.Now()
	err := s.next.CreateReview(ctx, reviewID)
	s.observe("create_review", reviewID, start, err)
	return err
}

func (s *InstrumentedStore) PutOrdering(ctx context.Context, reviewID string, ordering domain.Ordering) error {
	start := time.Now()
	err := s.next.PutOrdering(ctx, reviewID, ordering)
	s.observe("put_ordering", reviewID, start, err)
	return err
}

func (s *InstrumentedStore) GetOrderings(ctx context.Context, reviewID string) ([]domain.Ordering, error) {
	start := time.Now()
	orderings, err := s.next.GetOrderings(ctx, reviewID)
	s.observe("get_orderings", reviewID, start, err)
	return orderings, err
}

func (s *InstrumentedStore) DeleteOrdering(ctx context.Context, reviewID, participant string) error {
	start := time.Now()
	err := s.next.DeleteOrdering(ctx, reviewID, participant)
	s.observe("delete_ordering", reviewID, start, err)
	return err
}

func (s *InstrumentedStore) ListReviews(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := s.next.ListReviews(ctx)
	s.observe("list_reviews", "", start, err)
	return ids, err
}

func (s *InstrumentedStore) Close() error { return s.next.Close() }

func (s *InstrumentedStore) observe(operation, reviewID string, start time.Time, err error) {
	labels := map[string]string{
		"operation": operation,
		"status":    statusOf(err),
	}
	if reviewID != "" {
		labels["review"] = reviewID
	}

	s.collector.RecordLatency("store_"+operation, time.Since(start), labels)
	if err != nil {
		s.collector.RecordCounter("store_errors_total", 1, labels)
	}
}

// statusOf buckets errors the way operators page on them: availability
// problems separate from logic errors.
func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ports.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, ports.ErrReviewNotFound), errors.Is(err, ports.ErrOrderingNotFound):
		return "not_found"
	case errors.Is(err, ports.ErrReviewExists):
		return "conflict"
	default:
		return "error"
	}
}

var _ ports.ReviewStore = (*InstrumentedStore)(nil)
