package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

// Bucket layout inside a review bucket. Participant payloads and the
// submission sequence live in separate sub-buckets so participant names
// can never collide with bookkeeping keys.
var (
	bucketOrderings = []byte("orderings")
	bucketSequence  = []byte("sequence")
)

// BoltStore is a ports.ReviewStore backed by a single bbolt file. Each
// review owns a top-level bucket keyed by its identifier; inside it the
// orderings sub-bucket maps participants to JSON payloads and the sequence
// sub-bucket preserves submission order. Replacing an ordering rewrites the
// payload but keeps the participant's original sequence slot.
//
// BoltStore is safe for concurrent use; bbolt serializes writers
// internally.
type BoltStore struct {
	db *bolt.DB
}

var _ ports.ReviewStore = (*BoltStore)(nil)

// NewBoltStore opens (creating if necessary) the bbolt file at path.
// The file is locked for the lifetime of the store; a second open of the
// same path fails after the lock timeout.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// CreateReview registers a new, empty review.
func (s *BoltStore) CreateReview(ctx context.Context, reviewID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(reviewID)) != nil {
			return ports.ErrReviewExists
		}
		review, err := tx.CreateBucket([]byte(reviewID))
		if err != nil {
			return err
		}
		if _, err := review.CreateBucket(bucketOrderings); err != nil {
			return err
		}
		_, err = review.CreateBucket(bucketSequence)
		return err
	})
	if err != nil {
		return ports.NewStoreError(reviewID, "CreateReview", err)
	}
	return nil
}

// PutOrdering stores or replaces a participant's ordering, keeping the
// participant's original submission slot on replacement.
func (s *BoltStore) PutOrdering(ctx context.Context, reviewID string, ordering domain.Ordering) error {
	payload, err := json.Marshal(ordering)
	if err != nil {
		return ports.NewStoreError(reviewID, "PutOrdering", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		review := tx.Bucket([]byte(reviewID))
		if review == nil {
			return ports.ErrReviewNotFound
		}
		orderings := review.Bucket(bucketOrderings)
		sequence := review.Bucket(bucketSequence)

		if orderings.Get([]byte(ordering.Participant)) == nil {
			seq, err := sequence.NextSequence()
			if err != nil {
				return err
			}
			if err := sequence.Put(itob(seq), []byte(ordering.Participant)); err != nil {
				return err
			}
		}
		return orderings.Put([]byte(ordering.Participant), payload)
	})
	if err != nil {
		return ports.NewStoreError(reviewID, "PutOrdering", err)
	}
	return nil
}

// GetOrderings returns the review's orderings in submission order.
func (s *BoltStore) GetOrderings(ctx context.Context, reviewID string) ([]domain.Ordering, error) {
	out := []domain.Ordering{}
	err := s.db.View(func(tx *bolt.Tx) error {
		review := tx.Bucket([]byte(reviewID))
		if review == nil {
			return ports.ErrReviewNotFound
		}
		orderings := review.Bucket(bucketOrderings)
		sequence := review.Bucket(bucketSequence)

		// Sequence keys are big-endian counters, so cursor order is
		// submission order.
		return sequence.ForEach(func(_, participant []byte) error {
			payload := orderings.Get(participant)
			if payload == nil {
				return fmt.Errorf("sequence references unknown participant %q", participant)
			}
			var o domain.Ordering
			if err := json.Unmarshal(payload, &o); err != nil {
				return fmt.Errorf("decode ordering for %q: %w", participant, err)
			}
			out = append(out, o)
			return nil
		})
	})
	if err != nil {
		return nil, ports.NewStoreError(reviewID, "GetOrderings", err)
	}
	return out, nil
}

// DeleteOrdering removes a participant's ordering and its sequence slot.
func (s *BoltStore) DeleteOrdering(ctx context.Context, reviewID, participant string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		review := tx.Bucket([]byte(reviewID))
		if review == nil {
			return ports.ErrReviewNotFound
		}
		orderings := review.Bucket(bucketOrderings)
		sequence := review.Bucket(bucketSequence)

		if orderings.Get([]byte(participant)) == nil {
			return ports.ErrOrderingNotFound
		}
		if err := orderings.Delete([]byte(participant)); err != nil {
			return err
		}

		c := sequence.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if string(v) == participant {
				return sequence.Delete(k)
			}
		}
		return nil
	})
	if err != nil {
		return ports.NewStoreError(reviewID, "DeleteOrdering", err)
	}
	return nil
}

// ListReviews returns every review identifier in lexical order. bbolt
// iterates buckets in byte order, which matches the contract.
func (s *BoltStore) ListReviews(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			ids = append(ids, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, ports.NewStoreError("", "ListReviews", err)
	}
	return ids, nil
}

// Close releases the file lock and flushes the database.
func (s *BoltStore) Close() error { return s.db.Close() }

// itob encodes a bucket sequence number as a sortable big-endian key.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
