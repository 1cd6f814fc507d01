package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RequestKind identifies the variant of a QueuedRequest.
type RequestKind string

const (
	// KindFavorite is a deferred favorite toggle.
	KindFavorite RequestKind = "favorite"

	// KindReview is a deferred review submission.
	KindReview RequestKind = "review"
)

// FavoriteUpdate is a favorite toggle that did not reach the server.
type FavoriteUpdate struct {
	RestaurantID int64 `json:"restaurantId"`
	IsFavorite   bool  `json:"isFavorite"`
}

// ReviewSubmission is a review that did not reach the server. The review
// carries the local key it was cached under.
type ReviewSubmission struct {
	Review Review `json:"review"`
}

// QueuedRequest is a write intent waiting for replay.
//
// Exactly one of Favorite and Review is set, matching Kind. Seq is assigned
// by the store on append and orders entries within one queue table.
type QueuedRequest struct {
	ID        string            `json:"id"`
	Seq       int64             `json:"seq,omitempty"`
	Kind      RequestKind       `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Favorite  *FavoriteUpdate   `json:"favorite,omitempty"`
	Review    *ReviewSubmission `json:"review,omitempty"`
}

// NewFavoriteUpdate builds a queued favorite toggle.
func NewFavoriteUpdate(restaurantID int64, isFavorite bool, now time.Time) QueuedRequest {
	return QueuedRequest{
		ID:        uuid.NewString(),
		Kind:      KindFavorite,
		Timestamp: now,
		Favorite:  &FavoriteUpdate{RestaurantID: restaurantID, IsFavorite: isFavorite},
	}
}

// NewReviewSubmission builds a queued review submission.
func NewReviewSubmission(review Review, now time.Time) QueuedRequest {
	return QueuedRequest{
		ID:        uuid.NewString(),
		Kind:      KindReview,
		Timestamp: now,
		Review:    &ReviewSubmission{Review: review},
	}
}

// Validate checks that the variant payload matches Kind.
func (q *QueuedRequest) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("id is required")
	}
	if q.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	switch q.Kind {
	case KindFavorite:
		if q.Favorite == nil || q.Review != nil {
			return fmt.Errorf("favorite request must carry only a favorite payload")
		}
		if q.Favorite.RestaurantID <= 0 {
			return fmt.Errorf("favorite request: restaurant id must be positive")
		}
	case KindReview:
		if q.Review == nil || q.Favorite != nil {
			return fmt.Errorf("review request must carry only a review payload")
		}
	default:
		return fmt.Errorf("unknown request kind %q", q.Kind)
	}
	return nil
}
