package schema

import (
	"fmt"
	"strings"
)

// MaxRating is the highest star rating a review may carry.
const MaxRating = 5

// Review is a restaurant review.
//
// LocalKey is assigned by the cache on first insert and is zero until then.
// ServerID is assigned by the server and is nil until the review is synced.
type Review struct {
	LocalKey     int64     `json:"localKey,omitempty"`
	ServerID     *int64    `json:"id,omitempty"`
	RestaurantID int64     `json:"restaurant_id"`
	Name         string    `json:"name"`
	Rating       int       `json:"rating"`
	Comments     string    `json:"comments"`
	CreatedAt    Timestamp `json:"createdAt"`
	UpdatedAt    Timestamp `json:"updatedAt"`
}

// Validate checks the fields a reviewer must supply.
func (r *Review) Validate() error {
	if r.RestaurantID <= 0 {
		return fmt.Errorf("restaurant_id must be positive (got %d)", r.RestaurantID)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if r.Rating < 1 || r.Rating > MaxRating {
		return fmt.Errorf("rating must be between 1 and %d (got %d)", MaxRating, r.Rating)
	}
	return nil
}

// HasServerID reports whether the server has assigned an identity.
func (r *Review) HasServerID() bool {
	return r.ServerID != nil
}

// ServerIDValue returns the server identity, or 0 when unset.
func (r *Review) ServerIDValue() int64 {
	if r.ServerID == nil {
		return 0
	}
	return *r.ServerID
}

// WithServerID returns a pointer suitable for Review.ServerID.
func WithServerID(id int64) *int64 {
	return &id
}
