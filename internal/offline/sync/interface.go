package sync

import (
	"context"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/reconcile"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// RestaurantCache is the read-write restaurant collection.
type RestaurantCache interface {
	AllRestaurants(ctx context.Context) ([]schema.Restaurant, error)
	GetRestaurant(ctx context.Context, id int64) (*schema.Restaurant, error)
	PutRestaurant(ctx context.Context, r *schema.Restaurant) error
	ReplaceRestaurants(ctx context.Context, restaurants []schema.Restaurant) error
}

// ReviewCache is the read-write review collection.
type ReviewCache interface {
	ReviewsByRestaurant(ctx context.Context, restaurantID int64) ([]schema.Review, error)
	PutReview(ctx context.Context, r *schema.Review) (int64, error)
}

// RequestQueue accepts write intents the server did not take.
type RequestQueue interface {
	Enqueue(ctx context.Context, req schema.QueuedRequest) error
}

// ReviewMerger reconciles server reviews into the cache.
type ReviewMerger interface {
	Merge(ctx context.Context, restaurantID int64, reviews []schema.Review) (reconcile.Result, error)
}

// Remote is the review server.
type Remote interface {
	FetchRestaurants(ctx context.Context) ([]schema.Restaurant, error)
	FetchReviews(ctx context.Context, restaurantID int64) ([]schema.Review, error)
	PutFavorite(ctx context.Context, restaurantID int64, isFavorite bool) error
	PostReview(ctx context.Context, review schema.Review) (*schema.Review, error)
}

// Events receives notifications about cache changes made by the coordinator.
// Implementations must not block; background reconciliation calls them from
// its own goroutine.
type Events interface {
	// OnReviewsReconciled is called after server reviews were merged.
	OnReviewsReconciled(res reconcile.Result)

	// OnFavoriteUpdated is called after a favorite toggle was cached.
	OnFavoriteUpdated(restaurantID int64, isFavorite bool, delivery Delivery)

	// OnReviewAdded is called after a new review was cached.
	OnReviewAdded(review schema.Review, delivery Delivery)

	// OnRequestQueued is called after a write intent was queued.
	OnRequestQueued(req schema.QueuedRequest)
}
