package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// AllRestaurants returns every cached restaurant ordered by id.
//
// An unavailable cache yields an empty slice and no error.
func (db *DB) AllRestaurants(ctx context.Context) ([]schema.Restaurant, error) {
	if !db.Available() {
		return []schema.Restaurant{}, nil
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT doc FROM restaurants ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query restaurants: %w", err)
	}
	defer rows.Close()

	restaurants := []schema.Restaurant{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan restaurant: %w", err)
		}
		var r schema.Restaurant
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal restaurant: %w", err)
		}
		restaurants = append(restaurants, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating restaurants: %w", err)
	}

	return restaurants, nil
}

// GetRestaurant retrieves a cached restaurant by id.
// Returns ErrNotFound if the restaurant is not cached.
func (db *DB) GetRestaurant(ctx context.Context, id int64) (*schema.Restaurant, error) {
	if !db.Available() {
		return nil, ErrStoreUnavailable
	}

	var doc string
	err := db.conn.QueryRowContext(ctx, `SELECT doc FROM restaurants WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("restaurant %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get restaurant %d: %w", id, err)
	}

	var r schema.Restaurant
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal restaurant %d: %w", id, err)
	}
	return &r, nil
}

// PutRestaurant inserts or overwrites a single restaurant.
func (db *DB) PutRestaurant(ctx context.Context, r *schema.Restaurant) error {
	if !db.Available() {
		return ErrStoreUnavailable
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid restaurant: %w", err)
	}

	db.restaurantsMu.Lock()
	defer db.restaurantsMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		return putRestaurantTx(ctx, tx, r)
	})
}

// ReplaceRestaurants overwrites the whole restaurants collection with the
// given set in one transaction. Cached restaurants missing from the set are
// removed. Records without a usable id cannot be keyed and are left out;
// everything else is stored as given.
func (db *DB) ReplaceRestaurants(ctx context.Context, restaurants []schema.Restaurant) error {
	if !db.Available() {
		return ErrStoreUnavailable
	}

	db.restaurantsMu.Lock()
	defer db.restaurantsMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM restaurants`); err != nil {
			return fmt.Errorf("failed to clear restaurants: %w", err)
		}
		for i := range restaurants {
			if restaurants[i].Validate() != nil {
				continue
			}
			if err := putRestaurantTx(ctx, tx, &restaurants[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func putRestaurantTx(ctx context.Context, tx *sql.Tx, r *schema.Restaurant) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal restaurant %d: %w", r.ID, err)
	}

	query := `
	INSERT INTO restaurants (id, name, cuisine_type, neighborhood, is_favorite, doc, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		cuisine_type = excluded.cuisine_type,
		neighborhood = excluded.neighborhood,
		is_favorite = excluded.is_favorite,
		doc = excluded.doc,
		cached_at = excluded.cached_at
	`

	_, err = tx.ExecContext(ctx, query,
		r.ID,
		r.Name,
		r.CuisineType,
		r.Neighborhood,
		boolToInt(bool(r.IsFavorite)),
		string(doc),
		nowString(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert restaurant %d: %w", r.ID, err)
	}
	return nil
}

// RestaurantCount returns the number of cached restaurants.
func (db *DB) RestaurantCount(ctx context.Context) (int, error) {
	if !db.Available() {
		return 0, ErrStoreUnavailable
	}
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM restaurants").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get restaurant count: %w", err)
	}
	return count, nil
}
