package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// AppendFavoriteRequest appends a favorite toggle to favoriteRequestQueue
// and returns its sequence number.
func (db *DB) AppendFavoriteRequest(ctx context.Context, q schema.QueuedRequest) (int64, error) {
	if !db.Available() {
		return 0, ErrStoreUnavailable
	}
	if q.Kind != schema.KindFavorite {
		return 0, fmt.Errorf("cannot append %s request to %s", q.Kind, CollectionFavoriteRequestQueue)
	}
	if err := q.Validate(); err != nil {
		return 0, fmt.Errorf("invalid favorite request: %w", err)
	}

	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO favoriteRequestQueue (request_id, restaurant_id, is_favorite, enqueued_at)
	VALUES (?, ?, ?, ?)`,
		q.ID,
		q.Favorite.RestaurantID,
		boolToInt(q.Favorite.IsFavorite),
		q.Timestamp.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append favorite request: %w", err)
	}
	return res.LastInsertId()
}

// AppendReviewRequest appends a review submission to reviewRequestQueue
// and returns its sequence number.
func (db *DB) AppendReviewRequest(ctx context.Context, q schema.QueuedRequest) (int64, error) {
	if !db.Available() {
		return 0, ErrStoreUnavailable
	}
	if q.Kind != schema.KindReview {
		return 0, fmt.Errorf("cannot append %s request to %s", q.Kind, CollectionReviewRequestQueue)
	}
	if err := q.Validate(); err != nil {
		return 0, fmt.Errorf("invalid review request: %w", err)
	}

	doc, err := json.Marshal(q.Review.Review)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal queued review: %w", err)
	}

	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO reviewRequestQueue (request_id, local_key, doc, enqueued_at)
	VALUES (?, ?, ?, ?)`,
		q.ID,
		q.Review.Review.LocalKey,
		string(doc),
		q.Timestamp.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append review request: %w", err)
	}
	return res.LastInsertId()
}

// DeleteFavoriteRequests removes queued favorite toggles for one restaurant
// and returns how many were removed.
func (db *DB) DeleteFavoriteRequests(ctx context.Context, restaurantID int64) (int64, error) {
	if !db.Available() {
		return 0, ErrStoreUnavailable
	}

	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM favoriteRequestQueue WHERE restaurant_id = ?`, restaurantID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete favorite requests for %d: %w", restaurantID, err)
	}
	return res.RowsAffected()
}

// DeleteFavoriteRequest removes one queued favorite toggle by sequence.
// Deleting an entry that is already gone is not an error.
func (db *DB) DeleteFavoriteRequest(ctx context.Context, seq int64) error {
	return db.deleteQueued(ctx, "favoriteRequestQueue", seq)
}

// DeleteReviewRequest removes one queued review submission by sequence.
// Deleting an entry that is already gone is not an error.
func (db *DB) DeleteReviewRequest(ctx context.Context, seq int64) error {
	return db.deleteQueued(ctx, "reviewRequestQueue", seq)
}

func (db *DB) deleteQueued(ctx context.Context, table string, seq int64) error {
	if !db.Available() {
		return ErrStoreUnavailable
	}

	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM `+table+` WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("failed to delete %s entry %d: %w", table, seq, err)
	}
	return nil
}

// ListFavoriteRequests returns queued favorite toggles in insertion order
// without removing them.
func (db *DB) ListFavoriteRequests(ctx context.Context) ([]schema.QueuedRequest, error) {
	if !db.Available() {
		return []schema.QueuedRequest{}, nil
	}
	return selectFavoriteRequests(ctx, db.conn)
}

// ListReviewRequests returns queued review submissions in insertion order
// without removing them.
func (db *DB) ListReviewRequests(ctx context.Context) ([]schema.QueuedRequest, error) {
	if !db.Available() {
		return []schema.QueuedRequest{}, nil
	}
	return selectReviewRequests(ctx, db.conn)
}

// DrainFavoriteRequests returns and removes every queued favorite toggle in
// one transaction.
func (db *DB) DrainFavoriteRequests(ctx context.Context) ([]schema.QueuedRequest, error) {
	if !db.Available() {
		return []schema.QueuedRequest{}, nil
	}

	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	var out []schema.QueuedRequest
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = selectFavoriteRequests(ctx, tx)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		last := out[len(out)-1].Seq
		if _, err := tx.ExecContext(ctx, `DELETE FROM favoriteRequestQueue WHERE seq <= ?`, last); err != nil {
			return fmt.Errorf("failed to clear favorite requests: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DrainReviewRequests returns and removes every queued review submission in
// one transaction.
func (db *DB) DrainReviewRequests(ctx context.Context) ([]schema.QueuedRequest, error) {
	if !db.Available() {
		return []schema.QueuedRequest{}, nil
	}

	db.queueMu.Lock()
	defer db.queueMu.Unlock()

	var out []schema.QueuedRequest
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = selectReviewRequests(ctx, tx)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		last := out[len(out)-1].Seq
		if _, err := tx.ExecContext(ctx, `DELETE FROM reviewRequestQueue WHERE seq <= ?`, last); err != nil {
			return fmt.Errorf("failed to clear review requests: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueuedCounts returns the number of pending favorite and review requests.
func (db *DB) QueuedCounts(ctx context.Context) (favorites, reviews int, err error) {
	if !db.Available() {
		return 0, 0, ErrStoreUnavailable
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM favoriteRequestQueue").Scan(&favorites); err != nil {
		return 0, 0, fmt.Errorf("failed to count favorite requests: %w", err)
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviewRequestQueue").Scan(&reviews); err != nil {
		return 0, 0, fmt.Errorf("failed to count review requests: %w", err)
	}
	return favorites, reviews, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func selectFavoriteRequests(ctx context.Context, q querier) ([]schema.QueuedRequest, error) {
	rows, err := q.QueryContext(ctx, `
	SELECT seq, request_id, restaurant_id, is_favorite, enqueued_at
	FROM favoriteRequestQueue
	ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorite requests: %w", err)
	}
	defer rows.Close()

	out := []schema.QueuedRequest{}
	for rows.Next() {
		var (
			req        schema.QueuedRequest
			fav        schema.FavoriteUpdate
			isFavorite int
			enqueuedAt int64
		)
		if err := rows.Scan(&req.Seq, &req.ID, &fav.RestaurantID, &isFavorite, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite request: %w", err)
		}
		fav.IsFavorite = isFavorite != 0
		req.Kind = schema.KindFavorite
		req.Favorite = &fav
		req.Timestamp = time.Unix(0, enqueuedAt).UTC()
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating favorite requests: %w", err)
	}
	return out, nil
}

func selectReviewRequests(ctx context.Context, q querier) ([]schema.QueuedRequest, error) {
	rows, err := q.QueryContext(ctx, `
	SELECT seq, request_id, local_key, doc, enqueued_at
	FROM reviewRequestQueue
	ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query review requests: %w", err)
	}
	defer rows.Close()

	out := []schema.QueuedRequest{}
	for rows.Next() {
		var (
			req        schema.QueuedRequest
			localKey   int64
			doc        string
			enqueuedAt int64
		)
		if err := rows.Scan(&req.Seq, &req.ID, &localKey, &doc, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review request: %w", err)
		}
		var review schema.Review
		if err := json.Unmarshal([]byte(doc), &review); err != nil {
			return nil, fmt.Errorf("failed to unmarshal queued review %d: %w", req.Seq, err)
		}
		review.LocalKey = localKey
		req.Kind = schema.KindReview
		req.Review = &schema.ReviewSubmission{Review: review}
		req.Timestamp = time.Unix(0, enqueuedAt).UTC()
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review requests: %w", err)
	}
	return out, nil
}
