// Package testutils provides utilities for testing, including an in-memory
// review store and test data generators. These components are intended for
// internal use within the project's test suites and are not part of the
// public API.
package testutils

import (
	"context"
	"slices"
	"sync"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

// MemStore is an in-memory ports.ReviewStore for tests. It honors the
// same contract as the persistent stores: submission order is preserved,
// resubmission replaces in place, and missing reviews surface
// ports.ErrReviewNotFound.
//
// MemStore is safe for concurrent use. Failures can be injected per
// review to exercise error paths.
type MemStore struct {
	mu       sync.RWMutex
	reviews  map[string][]domain.Ordering
	failures map[string]error
	closed   bool
}

var _ ports.ReviewStore = (*MemStore)(nil)

// NewMemStore creates an empty in-memory review store.
func NewMemStore() *MemStore {
	return &MemStore{
		reviews:  make(map[string][]domain.Ordering),
		failures: make(map[string]error),
	}
}

// FailReview makes every subsequent operation on the given review return
// err, simulating a broken backend for that review. Passing a nil err
// clears the injection.
func (s *MemStore) FailReview(reviewID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, reviewID)
		return
	}
	s.failures[reviewID] = err
}

// CreateReview registers a new, empty review.
func (s *MemStore) CreateReview(ctx context.Context, reviewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(reviewID, "CreateReview"); err != nil {
		return err
	}
	if _, ok := s.reviews[reviewID]; ok {
		return ports.NewStoreError(reviewID, "CreateReview", ports.ErrReviewExists)
	}
	s.reviews[reviewID] = nil
	return nil
}

// PutOrdering stores or replaces a participant's ordering, keeping the
// participant's original submission slot on replacement.
func (s *MemStore) PutOrdering(ctx context.Context, reviewID string, ordering domain.Ordering) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(reviewID, "PutOrdering"); err != nil {
		return err
	}
	orderings, ok := s.reviews[reviewID]
	if !ok {
		return ports.NewStoreError(reviewID, "PutOrdering", ports.ErrReviewNotFound)
	}

	stored := ordering
	stored.Items = slices.Clone(ordering.Items)
	for i, existing := range orderings {
		if existing.Participant == ordering.Participant {
			orderings[i] = stored
			return nil
		}
	}
	s.reviews[reviewID] = append(orderings, stored)
	return nil
}

// GetOrderings returns the review's orderings in submission order.
func (s *MemStore) GetOrderings(ctx context.Context, reviewID string) ([]domain.Ordering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(reviewID, "GetOrderings"); err != nil {
		return nil, err
	}
	orderings, ok := s.reviews[reviewID]
	if !ok {
		return nil, ports.NewStoreError(reviewID, "GetOrderings", ports.ErrReviewNotFound)
	}

	out := make([]domain.Ordering, len(orderings))
	for i, o := range orderings {
		out[i] = o
		out[i].Items = slices.Clone(o.Items)
	}
	return out, nil
}

// DeleteOrdering removes a participant's ordering from the review.
func (s *MemStore) DeleteOrdering(ctx context.Context, reviewID, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(reviewID, "DeleteOrdering"); err != nil {
		return err
	}
	orderings, ok := s.reviews[reviewID]
	if !ok {
		return ports.NewStoreError(reviewID, "DeleteOrdering", ports.ErrReviewNotFound)
	}
	for i, existing := range orderings {
		if existing.Participant == participant {
			s.reviews[reviewID] = slices.Delete(orderings, i, i+1)
			return nil
		}
	}
	return ports.NewStoreError(reviewID, "DeleteOrdering", ports.ErrOrderingNotFound)
}

// ListReviews returns every review identifier in lexical order.
func (s *MemStore) ListReviews(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ports.NewStoreError("", "ListReviews", ports.ErrStoreUnavailable)
	}
	ids := make([]string, 0, len(s.reviews))
	for id := range s.reviews {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close marks the store unavailable. Subsequent operations fail with
// ports.ErrStoreUnavailable.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemStore) check(reviewID, operation string) error {
	if s.closed {
		return ports.NewStoreError(reviewID, operation, ports.ErrStoreUnavailable)
	}
	if err, ok := s.failures[reviewID]; ok {
		return ports.NewStoreError(reviewID, operation, err)
	}
	return nil
}
