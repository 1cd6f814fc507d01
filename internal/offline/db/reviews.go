package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

const reviewColumns = `local_key, server_id, doc`

// GetReview retrieves a cached review by local key.
func (db *DB) GetReview(ctx context.Context, localKey int64) (*schema.Review, error) {
	if !db.Available() {
		return nil, ErrStoreUnavailable
	}

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE local_key = ?`, localKey)
	r, err := scanReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("review %d: %w", localKey, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get review %d: %w", localKey, err)
	}
	return r, nil
}

// ReviewByServerID looks a review up through the server identity index.
func (db *DB) ReviewByServerID(ctx context.Context, serverID int64) (*schema.Review, error) {
	if !db.Available() {
		return nil, ErrStoreUnavailable
	}

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE server_id = ?`, serverID)
	r, err := scanReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("review with server id %d: %w", serverID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get review by server id %d: %w", serverID, err)
	}
	return r, nil
}

// ReviewsByRestaurant returns the cached reviews of one restaurant through
// the restaurant index, ordered by local key.
//
// An unavailable cache yields an empty slice and no error.
func (db *DB) ReviewsByRestaurant(ctx context.Context, restaurantID int64) ([]schema.Review, error) {
	if !db.Available() {
		return []schema.Review{}, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE restaurant_id = ? ORDER BY local_key ASC`,
		restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews for restaurant %d: %w", restaurantID, err)
	}
	defer rows.Close()

	return scanReviews(rows)
}

// AllReviews returns every cached review ordered by local key.
func (db *DB) AllReviews(ctx context.Context) ([]schema.Review, error) {
	if !db.Available() {
		return []schema.Review{}, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews ORDER BY local_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	return scanReviews(rows)
}

// PutReview inserts or overwrites a review and returns its local key.
//
// A review without a local key gets a fresh one, unless it carries a server
// identity that is already cached, in which case the existing key is reused.
// A review with a local key overwrites that entry; any other entry holding
// the same server identity is removed so that the identity stays unique.
//
// r.LocalKey is updated to the assigned key.
func (db *DB) PutReview(ctx context.Context, r *schema.Review) (int64, error) {
	if !db.Available() {
		return 0, ErrStoreUnavailable
	}

	db.reviewsMu.Lock()
	defer db.reviewsMu.Unlock()

	var key int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if r.LocalKey == 0 && r.HasServerID() {
			existing, err := lookupLocalKeyTx(ctx, tx, r.ServerIDValue())
			if err != nil {
				return err
			}
			r.LocalKey = existing
		}

		var err error
		key, err = putReviewTx(ctx, tx, r)
		return err
	})
	if err != nil {
		return 0, err
	}
	return key, nil
}

// UpsertReviewByServerID merges a server-origin review into the cache.
//
// The lookup by server identity and the overwrite run in one transaction
// while holding the reviews writer, so concurrent merges of the same server
// identity cannot produce two entries. If an entry exists its local key is
// carried onto r; otherwise a fresh key is assigned. Any local key already on
// r is ignored.
//
// Returns the local key and whether an entry already existed.
func (db *DB) UpsertReviewByServerID(ctx context.Context, r *schema.Review) (int64, bool, error) {
	if !db.Available() {
		return 0, false, ErrStoreUnavailable
	}
	if !r.HasServerID() {
		return 0, false, fmt.Errorf("review has no server identity")
	}

	db.reviewsMu.Lock()
	defer db.reviewsMu.Unlock()

	var (
		key     int64
		existed bool
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := lookupLocalKeyTx(ctx, tx, r.ServerIDValue())
		if err != nil {
			return err
		}
		existed = existing != 0
		r.LocalKey = existing

		key, err = putReviewTx(ctx, tx, r)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return key, existed, nil
}

// ReviewCount returns the number of cached reviews.
func (db *DB) ReviewCount(ctx context.Context) (int, error) {
	if !db.Available() {
		return 0, ErrStoreUnavailable
	}
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get review count: %w", err)
	}
	return count, nil
}

// lookupLocalKeyTx returns the local key holding serverID, or 0.
func lookupLocalKeyTx(ctx context.Context, tx *sql.Tx, serverID int64) (int64, error) {
	var key int64
	err := tx.QueryRowContext(ctx, `SELECT local_key FROM reviews WHERE server_id = ?`, serverID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up server id %d: %w", serverID, err)
	}
	return key, nil
}

func putReviewTx(ctx context.Context, tx *sql.Tx, r *schema.Review) (int64, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal review: %w", err)
	}

	serverID := sql.NullInt64{Int64: r.ServerIDValue(), Valid: r.HasServerID()}

	if r.LocalKey == 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO reviews (server_id, restaurant_id, doc, cached_at) VALUES (?, ?, ?, ?)`,
			serverID, r.RestaurantID, string(doc), nowString())
		if err != nil {
			return 0, fmt.Errorf("failed to insert review: %w", err)
		}
		key, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read assigned local key: %w", err)
		}
		r.LocalKey = key
		return key, nil
	}

	if serverID.Valid {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM reviews WHERE server_id = ? AND local_key != ?`,
			serverID.Int64, r.LocalKey)
		if err != nil {
			return 0, fmt.Errorf("failed to release server id %d: %w", serverID.Int64, err)
		}
	}

	query := `
	INSERT INTO reviews (local_key, server_id, restaurant_id, doc, cached_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(local_key) DO UPDATE SET
		server_id = excluded.server_id,
		restaurant_id = excluded.restaurant_id,
		doc = excluded.doc,
		cached_at = excluded.cached_at
	`
	if _, err := tx.ExecContext(ctx, query,
		r.LocalKey, serverID, r.RestaurantID, string(doc), nowString()); err != nil {
		return 0, fmt.Errorf("failed to upsert review %d: %w", r.LocalKey, err)
	}
	return r.LocalKey, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (*schema.Review, error) {
	var (
		key      int64
		serverID sql.NullInt64
		doc      string
	)
	if err := row.Scan(&key, &serverID, &doc); err != nil {
		return nil, err
	}

	var r schema.Review
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review %d: %w", key, err)
	}

	// Columns are authoritative for identity.
	r.LocalKey = key
	r.ServerID = nil
	if serverID.Valid {
		r.ServerID = schema.WithServerID(serverID.Int64)
	}
	return &r, nil
}

func scanReviews(rows *sql.Rows) ([]schema.Review, error) {
	reviews := []schema.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}
