package db

import (
	"context"
	"testing"
	"time"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

func TestFavoriteQueue_AppendDrain(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, fav := range []bool{true, false, true} {
		q := schema.NewFavoriteUpdate(int64(i+1), fav, base.Add(time.Duration(i)*time.Second))
		seq, err := db.AppendFavoriteRequest(ctx, q)
		if err != nil {
			t.Fatalf("AppendFavoriteRequest() failed: %v", err)
		}
		if seq == 0 {
			t.Error("expected a sequence number")
		}
	}

	favs, reviews, err := db.QueuedCounts(ctx)
	if err != nil {
		t.Fatalf("QueuedCounts() failed: %v", err)
	}
	if favs != 3 || reviews != 0 {
		t.Errorf("QueuedCounts() = %d, %d; want 3, 0", favs, reviews)
	}

	drained, err := db.DrainFavoriteRequests(ctx)
	if err != nil {
		t.Fatalf("DrainFavoriteRequests() failed: %v", err)
	}
	if len(drained) != 3 {
		t.Fatalf("drained %d requests, want 3", len(drained))
	}
	for i, q := range drained {
		if q.Favorite.RestaurantID != int64(i+1) {
			t.Errorf("entry %d restaurant = %d, want insertion order", i, q.Favorite.RestaurantID)
		}
		if !q.Timestamp.Equal(base.Add(time.Duration(i) * time.Second)) {
			t.Errorf("entry %d timestamp = %v", i, q.Timestamp)
		}
	}
	if drained[1].Favorite.IsFavorite {
		t.Error("entry 1 should carry is_favorite=false")
	}

	again, err := db.DrainFavoriteRequests(ctx)
	if err != nil {
		t.Fatalf("second DrainFavoriteRequests() failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("queue not cleared: %d entries left", len(again))
	}
}

func TestFavoriteQueue_NoDedup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := db.AppendFavoriteRequest(ctx, schema.NewFavoriteUpdate(4, true, time.Now())); err != nil {
			t.Fatalf("AppendFavoriteRequest() failed: %v", err)
		}
	}

	listed, err := db.ListFavoriteRequests(ctx)
	if err != nil {
		t.Fatalf("ListFavoriteRequests() failed: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("expected duplicates to be kept, got %d entries", len(listed))
	}

	removed, err := db.DeleteFavoriteRequests(ctx, 4)
	if err != nil {
		t.Fatalf("DeleteFavoriteRequests() failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d, want 2", removed)
	}
}

func TestReviewQueue_CarriesLocalKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	review := testReview(9, nil, "offline")
	review.LocalKey = 5
	if _, err := db.AppendReviewRequest(ctx, schema.NewReviewSubmission(review, time.Now())); err != nil {
		t.Fatalf("AppendReviewRequest() failed: %v", err)
	}

	listed, err := db.ListReviewRequests(ctx)
	if err != nil {
		t.Fatalf("ListReviewRequests() failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 queued review, got %d", len(listed))
	}
	if got := listed[0].Review.Review.LocalKey; got != 5 {
		t.Errorf("queued local key = %d, want 5", got)
	}

	drained, err := db.DrainReviewRequests(ctx)
	if err != nil {
		t.Fatalf("DrainReviewRequests() failed: %v", err)
	}
	if len(drained) != 1 || drained[0].Review.Review.Comments != "offline" {
		t.Errorf("DrainReviewRequests() = %+v", drained)
	}
}

func TestQueues_RejectWrongKind(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fav := schema.NewFavoriteUpdate(1, true, time.Now())
	if _, err := db.AppendReviewRequest(ctx, fav); err == nil {
		t.Error("AppendReviewRequest() should reject a favorite request")
	}
	rev := schema.NewReviewSubmission(testReview(1, nil, "x"), time.Now())
	if _, err := db.AppendFavoriteRequest(ctx, rev); err == nil {
		t.Error("AppendFavoriteRequest() should reject a review request")
	}
}
