// Package queue is the durable retry queue for writes that failed to reach
// the review server.
//
// Favorite toggles and review submissions live in separate collections
// (favoriteRequestQueue and reviewRequestQueue). Pending and Drain merge both
// back into a single sequence in insertion order so replay sees intents in
// the order the user made them. Replay reads with Pending and removes each
// entry with Ack once the server has answered for it.
package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// Store is the persistence the queue needs.
type Store interface {
	AppendFavoriteRequest(ctx context.Context, q schema.QueuedRequest) (int64, error)
	AppendReviewRequest(ctx context.Context, q schema.QueuedRequest) (int64, error)
	DeleteFavoriteRequests(ctx context.Context, restaurantID int64) (int64, error)
	DeleteFavoriteRequest(ctx context.Context, seq int64) error
	DeleteReviewRequest(ctx context.Context, seq int64) error
	ListFavoriteRequests(ctx context.Context) ([]schema.QueuedRequest, error)
	ListReviewRequests(ctx context.Context) ([]schema.QueuedRequest, error)
	DrainFavoriteRequests(ctx context.Context) ([]schema.QueuedRequest, error)
	DrainReviewRequests(ctx context.Context) ([]schema.QueuedRequest, error)
	QueuedCounts(ctx context.Context) (favorites, reviews int, err error)
}

// Options tunes queue behaviour.
type Options struct {
	// DedupeFavorites drops older queued toggles for the same restaurant on
	// enqueue, so only the latest intent is replayed. Off by default: every
	// failed toggle is kept.
	DedupeFavorites bool

	// Logger for queue activity (default: stderr logger)
	Logger *log.Logger
}

// Queue appends and drains deferred write intents.
type Queue struct {
	store  Store
	opts   Options
	logger *log.Logger
}

// New creates a queue over store.
func New(store Store, opts Options) *Queue {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{store: store, opts: opts, logger: logger}
}

// Enqueue appends q durably. It never touches the network.
func (q *Queue) Enqueue(ctx context.Context, req schema.QueuedRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid queued request: %w", err)
	}

	switch req.Kind {
	case schema.KindFavorite:
		if q.opts.DedupeFavorites {
			removed, err := q.store.DeleteFavoriteRequests(ctx, req.Favorite.RestaurantID)
			if err != nil {
				return fmt.Errorf("failed to dedupe favorite requests: %w", err)
			}
			if removed > 0 {
				q.logger.Printf("Replaced %d queued favorite request(s) for restaurant %d", removed, req.Favorite.RestaurantID)
			}
		}
		if _, err := q.store.AppendFavoriteRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to enqueue favorite request: %w", err)
		}
	case schema.KindReview:
		if _, err := q.store.AppendReviewRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to enqueue review request: %w", err)
		}
	}

	q.logger.Printf("Queued %s request %s", req.Kind, req.ID)
	return nil
}

// Drain returns and clears every queued request, oldest first.
func (q *Queue) Drain(ctx context.Context) ([]schema.QueuedRequest, error) {
	favorites, err := q.store.DrainFavoriteRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to drain favorite requests: %w", err)
	}
	reviews, err := q.store.DrainReviewRequests(ctx)
	if err != nil {
		// Put the favorites back so nothing is lost.
		if restoreErr := q.Requeue(ctx, favorites); restoreErr != nil {
			q.logger.Printf("WARNING: failed to restore drained favorites: %v", restoreErr)
		}
		return nil, fmt.Errorf("failed to drain review requests: %w", err)
	}
	return merge(favorites, reviews), nil
}

// Pending returns the queued requests, oldest first, without removing them.
func (q *Queue) Pending(ctx context.Context) ([]schema.QueuedRequest, error) {
	favorites, err := q.store.ListFavoriteRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorite requests: %w", err)
	}
	reviews, err := q.store.ListReviewRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list review requests: %w", err)
	}
	return merge(favorites, reviews), nil
}

// Ack removes one request returned by Pending once it no longer needs to be
// replayed. Entries stay durable until acknowledged, so a pass interrupted
// by a crash replays them again.
func (q *Queue) Ack(ctx context.Context, req schema.QueuedRequest) error {
	if req.Seq <= 0 {
		return fmt.Errorf("request %s has no queue sequence", req.ID)
	}
	var err error
	switch req.Kind {
	case schema.KindFavorite:
		err = q.store.DeleteFavoriteRequest(ctx, req.Seq)
	case schema.KindReview:
		err = q.store.DeleteReviewRequest(ctx, req.Seq)
	default:
		err = fmt.Errorf("unknown request kind %q", req.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s request %s: %w", req.Kind, req.ID, err)
	}
	return nil
}

// Len returns the number of queued requests.
func (q *Queue) Len(ctx context.Context) (int, error) {
	favorites, reviews, err := q.store.QueuedCounts(ctx)
	if err != nil {
		return 0, err
	}
	return favorites + reviews, nil
}

// Requeue appends requests back in order, keeping their ids and timestamps.
// Used by replay to return entries it could not deliver.
func (q *Queue) Requeue(ctx context.Context, reqs []schema.QueuedRequest) error {
	for _, req := range reqs {
		var err error
		switch req.Kind {
		case schema.KindFavorite:
			_, err = q.store.AppendFavoriteRequest(ctx, req)
		case schema.KindReview:
			_, err = q.store.AppendReviewRequest(ctx, req)
		default:
			err = fmt.Errorf("unknown request kind %q", req.Kind)
		}
		if err != nil {
			return fmt.Errorf("failed to requeue %s request %s: %w", req.Kind, req.ID, err)
		}
	}
	return nil
}

// merge interleaves the two queues by enqueue time. Ties keep favorites
// before reviews and then sequence order.
func merge(favorites, reviews []schema.QueuedRequest) []schema.QueuedRequest {
	out := make([]schema.QueuedRequest, 0, len(favorites)+len(reviews))
	out = append(out, favorites...)
	out = append(out, reviews...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
