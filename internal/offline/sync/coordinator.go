package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/db"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/remote"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// FilterAll disables filtering on a dimension.
const FilterAll = "all"

var (
	// ErrNotFound is returned when a restaurant is not known.
	ErrNotFound = errors.New("restaurant not found")

	// ErrInvalidReview is returned for a review missing required fields.
	ErrInvalidReview = errors.New("invalid review")
)

// Delivery reports how a write reached the server.
type Delivery int

const (
	// DeliverySynced means the server accepted the write.
	DeliverySynced Delivery = iota

	// DeliveryQueued means the write is cached and queued for replay.
	DeliveryQueued
)

func (d Delivery) String() string {
	if d == DeliveryQueued {
		return "queued"
	}
	return "synced"
}

// Config wires a Coordinator.
type Config struct {
	Restaurants RestaurantCache
	Reviews     ReviewCache
	Queue       RequestQueue
	Remote      Remote
	Merger      ReviewMerger

	// Events receives change notifications (optional)
	Events Events

	// ReconcileTimeout bounds a background review sync (default: 30s)
	ReconcileTimeout time.Duration

	// Logger for coordinator activity (default: stderr logger)
	Logger *log.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// Coordinator implements cache fallback reads and write-through writes with
// retry for restaurants, reviews and favorites.
type Coordinator struct {
	restaurants RestaurantCache
	reviews     ReviewCache
	queue       RequestQueue
	remote      Remote
	merger      ReviewMerger
	events      Events
	logger      *log.Logger
	now         func() time.Time

	reconcileTimeout time.Duration

	// Background reconciliation lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Connectivity tracking
	offline     atomic.Bool
	hooksMu     sync.Mutex
	reconnectFn []func()
}

// New creates a coordinator. Restaurants, Reviews, Queue, Remote and Merger
// are required.
func New(config *Config) (*Coordinator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Restaurants == nil || config.Reviews == nil || config.Queue == nil ||
		config.Remote == nil || config.Merger == nil {
		return nil, fmt.Errorf("restaurants, reviews, queue, remote and merger are required")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	timeout := config.ReconcileTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		restaurants:      config.Restaurants,
		reviews:          config.Reviews,
		queue:            config.Queue,
		remote:           config.Remote,
		merger:           config.Merger,
		events:           config.Events,
		logger:           logger,
		now:              now,
		reconcileTimeout: timeout,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// OnReconnect registers fn to be called when a server call succeeds after
// the server was unreachable. fn must not block.
func (c *Coordinator) OnReconnect(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.reconnectFn = append(c.reconnectFn, fn)
}

// Online reports whether the last server call reached the server.
func (c *Coordinator) Online() bool {
	return !c.offline.Load()
}

// Wait blocks until background reconciliation has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels background reconciliation and waits for it to stop.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// Observe tracks connectivity from the outcome of a server call made by the
// coordinator or on its behalf. Any HTTP response, including an error
// status, counts as reachable. A call abandoned by its own context says
// nothing about the server and is ignored.
func (c *Coordinator) Observe(err error) {
	if errors.Is(err, remote.ErrUnreachable) {
		if !c.offline.Swap(true) {
			c.logger.Printf("Server unreachable, serving from cache")
		}
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if !c.offline.Swap(false) {
		return
	}

	c.logger.Printf("Server reachable again")
	c.hooksMu.Lock()
	hooks := append([]func(){}, c.reconnectFn...)
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// FetchRestaurants returns the server's restaurants and refreshes the cache
// with them. When the server fails, the cached restaurants are returned
// instead; an empty result is valid.
//
// The only error returned is the context's.
func (c *Coordinator) FetchRestaurants(ctx context.Context) ([]schema.Restaurant, error) {
	restaurants, err := c.remote.FetchRestaurants(ctx)
	c.Observe(err)
	if err == nil {
		c.cacheRestaurants(ctx, restaurants)
		return restaurants, nil
	}

	c.logger.Printf("Fetching restaurants failed, using cache: %v", err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	cached, err := c.restaurants.AllRestaurants(ctx)
	if err != nil {
		c.logStoreError("read restaurant cache", err)
		return []schema.Restaurant{}, nil
	}
	return cached, nil
}

// FetchRestaurantByID returns one restaurant, or ErrNotFound.
func (c *Coordinator) FetchRestaurantByID(ctx context.Context, id int64) (*schema.Restaurant, error) {
	restaurants, err := c.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	for i := range restaurants {
		if restaurants[i].ID == id {
			r := restaurants[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// FetchRestaurantsByCuisine returns restaurants serving cuisine.
func (c *Coordinator) FetchRestaurantsByCuisine(ctx context.Context, cuisine string) ([]schema.Restaurant, error) {
	return c.FetchRestaurantsByCuisineAndNeighborhood(ctx, cuisine, FilterAll)
}

// FetchRestaurantsByNeighborhood returns restaurants in neighborhood.
func (c *Coordinator) FetchRestaurantsByNeighborhood(ctx context.Context, neighborhood string) ([]schema.Restaurant, error) {
	return c.FetchRestaurantsByCuisineAndNeighborhood(ctx, FilterAll, neighborhood)
}

// FetchRestaurantsByCuisineAndNeighborhood filters on both dimensions.
// FilterAll on either dimension matches every restaurant.
func (c *Coordinator) FetchRestaurantsByCuisineAndNeighborhood(ctx context.Context, cuisine, neighborhood string) ([]schema.Restaurant, error) {
	restaurants, err := c.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return filterRestaurants(restaurants, cuisine, neighborhood), nil
}

// FetchNeighborhoods returns the distinct neighborhoods in first-seen order.
func (c *Coordinator) FetchNeighborhoods(ctx context.Context) ([]string, error) {
	restaurants, err := c.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return distinct(restaurants, func(r schema.Restaurant) string { return r.Neighborhood }), nil
}

// FetchCuisines returns the distinct cuisines in first-seen order.
func (c *Coordinator) FetchCuisines(ctx context.Context) ([]string, error) {
	restaurants, err := c.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	return distinct(restaurants, func(r schema.Restaurant) string { return r.CuisineType }), nil
}

func (c *Coordinator) cacheRestaurants(ctx context.Context, restaurants []schema.Restaurant) {
	for _, r := range restaurants {
		if err := r.Validate(); err != nil {
			c.logger.Printf("WARNING: Not caching server restaurant: %v", err)
		}
	}
	if err := c.restaurants.ReplaceRestaurants(ctx, restaurants); err != nil {
		c.logStoreError("refresh restaurant cache", err)
	}
}

func filterRestaurants(restaurants []schema.Restaurant, cuisine, neighborhood string) []schema.Restaurant {
	out := []schema.Restaurant{}
	for _, r := range restaurants {
		if cuisine != FilterAll && r.CuisineType != cuisine {
			continue
		}
		if neighborhood != FilterAll && r.Neighborhood != neighborhood {
			continue
		}
		out = append(out, r)
	}
	return out
}

func distinct(restaurants []schema.Restaurant, field func(schema.Restaurant) string) []string {
	seen := make(map[string]bool, len(restaurants))
	out := []string{}
	for _, r := range restaurants {
		v := field(r)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// FetchReviewsByRestaurantID returns the cached reviews for a restaurant.
//
// It also starts a background sync that fetches the server's reviews and
// merges them into the cache. The returned reviews do not wait for that
// sync and may predate it.
func (c *Coordinator) FetchReviewsByRestaurantID(ctx context.Context, restaurantID int64) ([]schema.Review, error) {
	c.wg.Add(1)
	go c.syncReviews(restaurantID)

	reviews, err := c.reviews.ReviewsByRestaurant(ctx, restaurantID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logStoreError("read review cache", err)
		return []schema.Review{}, nil
	}
	return reviews, nil
}

// syncReviews fetches and merges one restaurant's reviews. It is detached
// from the caller's context and bounded by the reconcile timeout.
func (c *Coordinator) syncReviews(restaurantID int64) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.reconcileTimeout)
	defer cancel()

	if err := c.reconcileReviews(ctx, restaurantID); err != nil {
		c.logger.Printf("Syncing reviews for restaurant %d failed: %v", restaurantID, err)
	}
}

func (c *Coordinator) reconcileReviews(ctx context.Context, restaurantID int64) error {
	reviews, err := c.remote.FetchReviews(ctx, restaurantID)
	c.Observe(err)
	if err != nil {
		return fmt.Errorf("failed to fetch reviews: %w", err)
	}

	res, err := c.merger.Merge(ctx, restaurantID, reviews)
	if err != nil {
		c.logStoreError(fmt.Sprintf("merge reviews for restaurant %d", restaurantID), err)
		return nil
	}
	if c.events != nil {
		c.events.OnReviewsReconciled(res)
	}
	return nil
}

// Refresh pulls the server's restaurants into the cache and then reconciles
// each restaurant's reviews in turn, bounded per restaurant by the reconcile
// timeout. It stops at the first call that cannot reach the server.
//
// Refresh is the daemon's periodic pull; it also keeps Online current while
// nothing else is talking to the server.
func (c *Coordinator) Refresh(ctx context.Context) error {
	restaurants, err := c.remote.FetchRestaurants(ctx)
	c.Observe(err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to fetch restaurants: %w", err)
	}
	c.cacheRestaurants(ctx, restaurants)

	for _, r := range restaurants {
		if r.Validate() != nil {
			continue
		}
		rctx, cancel := context.WithTimeout(ctx, c.reconcileTimeout)
		err := c.reconcileReviews(rctx, r.ID)
		cancel()
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, remote.ErrUnreachable) {
			return fmt.Errorf("restaurant %d: %w", r.ID, err)
		}
		c.logger.Printf("WARNING: Reviews for restaurant %d not refreshed: %v", r.ID, err)
	}
	return nil
}

// SetFavorite marks a cached restaurant as favorite or not.
//
// The cache is updated before the server is tried. If the server does not
// accept the change, it is queued for replay. Returns ErrNotFound when the
// restaurant is not cached.
func (c *Coordinator) SetFavorite(ctx context.Context, restaurantID int64, isFavorite bool) (Delivery, error) {
	r, err := c.restaurants.GetRestaurant(ctx, restaurantID)
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrStoreUnavailable) {
		return DeliverySynced, fmt.Errorf("%w: %d", ErrNotFound, restaurantID)
	}
	if err != nil {
		return DeliverySynced, fmt.Errorf("failed to read restaurant %d: %w", restaurantID, err)
	}

	r.IsFavorite = schema.FlexBool(isFavorite)
	if err := c.restaurants.PutRestaurant(ctx, r); err != nil {
		return DeliverySynced, fmt.Errorf("failed to cache favorite for %d: %w", restaurantID, err)
	}

	delivery := DeliverySynced
	err = c.remote.PutFavorite(ctx, restaurantID, isFavorite)
	c.Observe(err)
	if err != nil {
		c.logger.Printf("Favorite update for restaurant %d not delivered: %v", restaurantID, err)
		if err := c.enqueue(ctx, schema.NewFavoriteUpdate(restaurantID, isFavorite, c.now())); err != nil {
			return DeliverySynced, err
		}
		delivery = DeliveryQueued
	}

	if c.events != nil {
		c.events.OnFavoriteUpdated(restaurantID, isFavorite, delivery)
	}
	return delivery, nil
}

// AddReview caches a new review and submits it to the server.
//
// The review is visible to cache reads before the server is tried. On
// success the server's record replaces the cached one under the same local
// key; otherwise the review is queued for replay with its local key.
func (c *Coordinator) AddReview(ctx context.Context, review schema.Review) (*schema.Review, Delivery, error) {
	if err := review.Validate(); err != nil {
		return nil, DeliverySynced, fmt.Errorf("%w: %v", ErrInvalidReview, err)
	}

	now := schema.NewTimestamp(c.now())
	review.ServerID = nil
	review.LocalKey = 0
	review.CreatedAt = now
	review.UpdatedAt = now

	key, err := c.reviews.PutReview(ctx, &review)
	if err != nil {
		if !errors.Is(err, db.ErrStoreUnavailable) {
			return nil, DeliverySynced, fmt.Errorf("failed to cache review: %w", err)
		}
		c.logStoreError("cache review", err)
	}

	canonical, err := c.remote.PostReview(ctx, review)
	c.Observe(err)
	if err != nil {
		c.logger.Printf("Review for restaurant %d not delivered: %v", review.RestaurantID, err)
		review.LocalKey = key
		if err := c.enqueue(ctx, schema.NewReviewSubmission(review, c.now())); err != nil {
			return nil, DeliverySynced, err
		}
		if c.events != nil {
			c.events.OnReviewAdded(review, DeliveryQueued)
		}
		return &review, DeliveryQueued, nil
	}

	stored := *canonical
	stored.LocalKey = key
	if key != 0 {
		if _, err := c.reviews.PutReview(ctx, &stored); err != nil {
			c.logStoreError("cache confirmed review", err)
		}
	}

	if c.events != nil {
		c.events.OnReviewAdded(stored, DeliverySynced)
	}
	return &stored, DeliverySynced, nil
}

// enqueue queues a write intent. An unavailable store is logged and
// tolerated; other store failures are returned.
func (c *Coordinator) enqueue(ctx context.Context, req schema.QueuedRequest) error {
	if err := c.queue.Enqueue(ctx, req); err != nil {
		if errors.Is(err, db.ErrStoreUnavailable) {
			c.logStoreError(fmt.Sprintf("queue %s request", req.Kind), err)
			return nil
		}
		return fmt.Errorf("failed to queue %s request: %w", req.Kind, err)
	}
	if c.events != nil {
		c.events.OnRequestQueued(req)
	}
	return nil
}

func (c *Coordinator) logStoreError(action string, err error) {
	if errors.Is(err, db.ErrStoreUnavailable) {
		c.logger.Printf("Cache unavailable, skipped: %s", action)
		return
	}
	c.logger.Printf("WARNING: Failed to %s: %v", action, err)
}
