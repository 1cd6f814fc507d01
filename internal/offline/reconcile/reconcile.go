// Package reconcile merges server-origin reviews into the local cache.
//
// The server is authoritative for every field. The only thing carried over
// from an existing cache entry is its local key, so a review keeps the same
// cache identity across the transition from locally created to server
// confirmed. Merging the same batch twice leaves the cache unchanged.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/db"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// Upserter is the store capability the engine needs: an atomic
// lookup-by-server-identity followed by overwrite or insert.
type Upserter interface {
	UpsertReviewByServerID(ctx context.Context, r *schema.Review) (int64, bool, error)
}

// Result counts what a merge did.
type Result struct {
	RestaurantID int64
	Inserted     int
	Updated      int
	Skipped      int
	Failed       int
}

// Total returns the number of records that were written.
func (r Result) Total() int {
	return r.Inserted + r.Updated
}

// Engine merges review batches.
type Engine struct {
	store  Upserter
	logger *log.Logger
}

// New creates an engine over store. If logger is nil, a default logger
// writing to stderr is used.
func New(store Upserter, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	return &Engine{store: store, logger: logger}
}

// Merge applies server reviews for one restaurant to the cache.
//
// Records without a server identity, or belonging to another restaurant,
// are skipped. Individual write failures are logged and counted but don't
// stop the merge. An unavailable store aborts the merge with
// db.ErrStoreUnavailable.
func (e *Engine) Merge(ctx context.Context, restaurantID int64, reviews []schema.Review) (Result, error) {
	res := Result{RestaurantID: restaurantID}

	for i := range reviews {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		r := reviews[i]
		if !r.HasServerID() {
			e.logger.Printf("WARNING: Skipping review without server id for restaurant %d", restaurantID)
			res.Skipped++
			continue
		}
		if r.RestaurantID != restaurantID {
			e.logger.Printf("WARNING: Skipping review %d: belongs to restaurant %d, not %d",
				r.ServerIDValue(), r.RestaurantID, restaurantID)
			res.Skipped++
			continue
		}

		key, existed, err := e.store.UpsertReviewByServerID(ctx, &r)
		if err != nil {
			if errors.Is(err, db.ErrStoreUnavailable) {
				return res, fmt.Errorf("failed to merge reviews for restaurant %d: %w", restaurantID, err)
			}
			e.logger.Printf("WARNING: Failed to merge review %d: %v", r.ServerIDValue(), err)
			res.Failed++
			continue
		}

		if existed {
			res.Updated++
		} else {
			res.Inserted++
			e.logger.Printf("Cached review %d as local key %d", r.ServerIDValue(), key)
		}
	}

	e.logger.Printf("Reconciled restaurant %d: inserted=%d updated=%d skipped=%d failed=%d",
		restaurantID, res.Inserted, res.Updated, res.Skipped, res.Failed)
	return res, nil
}
