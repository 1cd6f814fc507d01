// Package loadtest exercises the local cache under concurrent access.
//
// It simulates many clients reading restaurants and reviews while background
// reconciliation merges server reviews into the same cache, and reports read
// latency. Used by the CLI's loadtest command and by tests that check the
// cache keeps one entry per server review under contention.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/db"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/reconcile"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// TestCache is a populated cache for load testing.
type TestCache struct {
	DB               *db.DB
	RestaurantIDs    []int64
	ReviewsPerServer int

	engine *reconcile.Engine
}

// LatencyStats captures read latency from a load test.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
}

var (
	cuisines      = []string{"Asian", "Pizza", "American", "Mexican"}
	neighborhoods = []string{"Manhattan", "Brooklyn", "Queens"}
)

// CreateTestCache creates a cache at dbPath holding numRestaurants
// restaurants, each with reviewsPerRestaurant server reviews.
func CreateTestCache(ctx context.Context, dbPath string, numRestaurants, reviewsPerRestaurant int) (*TestCache, error) {
	cache, err := db.OpenAndInit(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	tc := &TestCache{
		DB:               cache,
		RestaurantIDs:    make([]int64, 0, numRestaurants),
		ReviewsPerServer: reviewsPerRestaurant,
		engine:           reconcile.New(cache, log.New(io.Discard, "", 0)),
	}

	restaurants := generateRestaurants(numRestaurants)
	if err := cache.ReplaceRestaurants(ctx, restaurants); err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("failed to insert restaurants: %w", err)
	}

	for _, r := range restaurants {
		tc.RestaurantIDs = append(tc.RestaurantIDs, r.ID)
		if _, err := tc.engine.Merge(ctx, r.ID, generateReviews(r.ID, reviewsPerRestaurant, 0)); err != nil {
			_ = cache.Close()
			return nil, fmt.Errorf("failed to insert reviews for restaurant %d: %w", r.ID, err)
		}
	}

	return tc, nil
}

// Close closes the cache.
func (tc *TestCache) Close() error {
	if tc.DB != nil {
		return tc.DB.Close()
	}
	return nil
}

// RunConcurrentReads simulates numClients clients, each reading the reviews
// of a random restaurant queriesPerClient times.
func (tc *TestCache) RunConcurrentReads(ctx context.Context, numClients, queriesPerClient int) (*LatencyStats, error) {
	if len(tc.RestaurantIDs) == 0 {
		return nil, fmt.Errorf("cache has no restaurants")
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		all      []time.Duration
		failures int
	)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(int64(client)))
			durations := make([]time.Duration, 0, queriesPerClient)
			failed := 0

			for j := 0; j < queriesPerClient; j++ {
				id := tc.RestaurantIDs[rng.Intn(len(tc.RestaurantIDs))]

				start := time.Now()
				_, err := tc.DB.ReviewsByRestaurant(ctx, id)
				durations = append(durations, time.Since(start))
				if err != nil {
					failed++
				}
			}

			mu.Lock()
			all = append(all, durations...)
			failures += failed
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(all) == 0 {
		return nil, fmt.Errorf("no queries completed")
	}

	stats := computeLatencyStats(all)
	stats.Errors = failures
	return stats, nil
}

// VerifyConcurrentReconcile runs numReaders readers against the cache while
// numMergers mergers repeatedly reconcile updated server reviews for every
// restaurant, for duration. It then checks that every restaurant still has
// exactly one entry per server review.
func (tc *TestCache) VerifyConcurrentReconcile(ctx context.Context, numReaders, numMergers int, duration time.Duration) error {
	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+numMergers)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			for runCtx.Err() == nil {
				id := tc.RestaurantIDs[reader%len(tc.RestaurantIDs)]
				reviews, err := tc.DB.ReviewsByRestaurant(runCtx, id)
				if err != nil {
					if runCtx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d failed: %w", reader, err)
					}
					return
				}
				for _, r := range reviews {
					if r.RestaurantID != id {
						errorsChan <- fmt.Errorf("reader %d got review %d of restaurant %d", reader, r.LocalKey, r.RestaurantID)
						return
					}
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	for i := 0; i < numMergers; i++ {
		wg.Add(1)
		go func(merger int) {
			defer wg.Done()
			for round := 1; runCtx.Err() == nil; round++ {
				for _, id := range tc.RestaurantIDs {
					reviews := generateReviews(id, tc.ReviewsPerServer, merger*1000+round)
					if _, err := tc.engine.Merge(runCtx, id, reviews); err != nil {
						if runCtx.Err() == nil {
							errorsChan <- fmt.Errorf("merger %d failed: %w", merger, err)
						}
						return
					}
				}
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)
	if err, ok := <-errorsChan; ok {
		return err
	}

	for _, id := range tc.RestaurantIDs {
		reviews, err := tc.DB.ReviewsByRestaurant(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read restaurant %d: %w", id, err)
		}
		if len(reviews) != tc.ReviewsPerServer {
			return fmt.Errorf("restaurant %d has %d reviews, want %d", id, len(reviews), tc.ReviewsPerServer)
		}
	}
	return nil
}

// generateRestaurants creates restaurants with ids 1..count.
func generateRestaurants(count int) []schema.Restaurant {
	restaurants := make([]schema.Restaurant, count)
	created := schema.NewTimestamp(time.Now().Add(-30 * 24 * time.Hour))
	for i := range restaurants {
		id := int64(i + 1)
		restaurants[i] = schema.Restaurant{
			ID:           id,
			Name:         fmt.Sprintf("Restaurant %d", id),
			CuisineType:  cuisines[i%len(cuisines)],
			Neighborhood: neighborhoods[i%len(neighborhoods)],
			Photograph:   fmt.Sprintf("%d", id),
			LatLng:       schema.LatLng{Lat: 40.7 + float64(i)/1000, Lng: -73.9},
			CreatedAt:    created,
			UpdatedAt:    created,
		}
	}
	return restaurants
}

// generateReviews creates count server reviews for a restaurant. Server ids
// are stable per restaurant so repeated merges overwrite rather than append;
// version changes the comment text.
func generateReviews(restaurantID int64, count, version int) []schema.Review {
	reviews := make([]schema.Review, count)
	now := schema.NewTimestamp(time.Now())
	for i := range reviews {
		serverID := restaurantID*10000 + int64(i)
		reviews[i] = schema.Review{
			ServerID:     schema.WithServerID(serverID),
			RestaurantID: restaurantID,
			Name:         fmt.Sprintf("Reviewer %d", i),
			Rating:       i%schema.MaxRating + 1,
			Comments:     fmt.Sprintf("Review %d, version %d", serverID, version),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	return reviews
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
	}
}

// Fprint writes the statistics to w.
func (s *LatencyStats) Fprint(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
