package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/db"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

func setupQueue(t *testing.T, opts Options) (*Queue, *db.DB) {
	t.Helper()

	store, err := db.OpenAndInit(context.Background(), filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	opts.Logger = log.New(io.Discard, "", 0)
	return New(store, opts), store
}

func TestEnqueueDrain_InsertionOrder(t *testing.T) {
	q, _ := setupQueue(t, Options{})
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	review := schema.Review{LocalKey: 5, RestaurantID: 9, Name: "A", Rating: 4}
	reqs := []schema.QueuedRequest{
		schema.NewFavoriteUpdate(1, true, base),
		schema.NewReviewSubmission(review, base.Add(time.Second)),
		schema.NewFavoriteUpdate(2, false, base.Add(2*time.Second)),
	}
	for _, r := range reqs {
		if err := q.Enqueue(ctx, r); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("Pending() returned %d, want 3", len(pending))
	}

	drained, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if len(drained) != 3 {
		t.Fatalf("Drain() returned %d, want 3", len(drained))
	}
	for i := range reqs {
		if drained[i].ID != reqs[i].ID {
			t.Errorf("position %d: got %s (%s), want %s (%s)",
				i, drained[i].ID, drained[i].Kind, reqs[i].ID, reqs[i].Kind)
		}
	}
	if drained[1].Review.Review.LocalKey != 5 {
		t.Errorf("review local key = %d, want 5", drained[1].Review.Review.LocalKey)
	}

	n, err = q.Len(ctx)
	if err != nil {
		t.Fatalf("Len() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Len() after drain = %d, want 0", n)
	}
}

func TestEnqueue_KeepsDuplicatesByDefault(t *testing.T) {
	q, _ := setupQueue(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, schema.NewFavoriteUpdate(4, true, time.Now())); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}
}

func TestEnqueue_DedupeFavorites(t *testing.T) {
	q, _ := setupQueue(t, Options{DedupeFavorites: true})
	ctx := context.Background()
	base := time.Now()

	steps := []schema.QueuedRequest{
		schema.NewFavoriteUpdate(4, true, base),
		schema.NewFavoriteUpdate(5, true, base.Add(time.Millisecond)),
		schema.NewFavoriteUpdate(4, false, base.Add(2*time.Millisecond)),
	}
	for _, r := range steps {
		if err := q.Enqueue(ctx, r); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	drained, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if len(drained) != 2 {
		t.Fatalf("Drain() returned %d, want 2", len(drained))
	}
	last := drained[1]
	if last.Favorite.RestaurantID != 4 || last.Favorite.IsFavorite {
		t.Errorf("latest intent for restaurant 4 should win, got %+v", last.Favorite)
	}
}

func TestEnqueue_Invalid(t *testing.T) {
	q, _ := setupQueue(t, Options{})

	bad := schema.QueuedRequest{ID: "x", Kind: schema.KindFavorite, Timestamp: time.Now()}
	if err := q.Enqueue(context.Background(), bad); err == nil {
		t.Error("Enqueue() should reject a request without payload")
	}
}

func TestEnqueue_UnavailableStore(t *testing.T) {
	q, store := setupQueue(t, Options{})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	err := q.Enqueue(context.Background(), schema.NewFavoriteUpdate(1, true, time.Now()))
	if !errors.Is(err, db.ErrStoreUnavailable) {
		t.Errorf("Enqueue() error = %v, want ErrStoreUnavailable", err)
	}

	drained, err := q.Drain(context.Background())
	if err != nil || len(drained) != 0 {
		t.Errorf("Drain() = %v, %v; want empty, nil", drained, err)
	}
}

func TestRequeue_PreservesIdentity(t *testing.T) {
	q, _ := setupQueue(t, Options{})
	ctx := context.Background()

	orig := schema.NewFavoriteUpdate(7, true, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := q.Requeue(ctx, []schema.QueuedRequest{orig}); err != nil {
		t.Fatalf("Requeue() failed: %v", err)
	}

	drained, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
	if len(drained) != 1 || drained[0].ID != orig.ID || !drained[0].Timestamp.Equal(orig.Timestamp) {
		t.Errorf("Requeue() did not keep identity: %+v", drained)
	}
}

func TestAck_RemovesOnlyThatEntry(t *testing.T) {
	q, _ := setupQueue(t, Options{})
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	review := schema.Review{LocalKey: 5, RestaurantID: 9, Name: "A", Rating: 4}
	for _, r := range []schema.QueuedRequest{
		schema.NewFavoriteUpdate(1, true, base),
		schema.NewReviewSubmission(review, base.Add(time.Second)),
		schema.NewFavoriteUpdate(2, false, base.Add(2*time.Second)),
	} {
		if err := q.Enqueue(ctx, r); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if err := q.Ack(ctx, pending[0]); err != nil {
		t.Fatalf("Ack() favorite failed: %v", err)
	}
	if err := q.Ack(ctx, pending[1]); err != nil {
		t.Fatalf("Ack() review failed: %v", err)
	}
	// Acknowledging twice is harmless.
	if err := q.Ack(ctx, pending[0]); err != nil {
		t.Errorf("second Ack() failed: %v", err)
	}

	left, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(left) != 1 || left[0].ID != pending[2].ID {
		t.Errorf("Pending() after Ack = %+v, want only %s", left, pending[2].ID)
	}

	if err := q.Ack(ctx, schema.NewFavoriteUpdate(3, true, base)); err == nil {
		t.Error("Ack() should reject a request that was never queued")
	}
}
