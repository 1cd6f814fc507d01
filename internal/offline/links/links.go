// Package links builds the page and image URLs and map markers a client
// renders for a restaurant. Nothing here touches the cache or the network.
package links

import (
	"fmt"
	"strconv"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

const (
	photoDir     = "/dist/img/photos"
	thumbnailDir = "/dist/img/photos/thumbnails"
)

// URLForRestaurant returns the restaurant's detail page URL.
func URLForRestaurant(r schema.Restaurant) string {
	return fmt.Sprintf("./restaurant.html?id=%d", r.ID)
}

// ImageURLForRestaurant returns the full-size photo URL.
func ImageURLForRestaurant(r schema.Restaurant) string {
	return fmt.Sprintf("%s/%s.jpg", photoDir, photoName(r))
}

// ThumbnailURLForRestaurant returns the thumbnail photo URL.
func ThumbnailURLForRestaurant(r schema.Restaurant) string {
	return fmt.Sprintf("%s/%s.jpg", thumbnailDir, photoName(r))
}

// Photos are named after the restaurant id when the record carries none.
func photoName(r schema.Restaurant) string {
	if r.Photograph != "" {
		return r.Photograph
	}
	return strconv.FormatInt(r.ID, 10)
}

// Marker is a map pin for one restaurant.
type Marker struct {
	Position  schema.LatLng `json:"position"`
	Title     string        `json:"title"`
	URL       string        `json:"url"`
	Animation string        `json:"animation,omitempty"`
}

// Map is a rendered map that markers are placed on.
type Map interface {
	AddMarker(m Marker)
}

// MarkerFactory creates markers. Map providers supply their own.
type MarkerFactory interface {
	NewMarker(r schema.Restaurant, m Map) Marker
}

// DefaultMarkerFactory builds plain markers with a drop animation.
type DefaultMarkerFactory struct{}

// NewMarker builds the marker and places it on m when m is not nil.
func (DefaultMarkerFactory) NewMarker(r schema.Restaurant, m Map) Marker {
	marker := Marker{
		Position:  r.LatLng,
		Title:     r.Name,
		URL:       URLForRestaurant(r),
		Animation: "drop",
	}
	if m != nil {
		m.AddMarker(marker)
	}
	return marker
}

// MarkersForRestaurants builds one marker per restaurant with factory.
func MarkersForRestaurants(factory MarkerFactory, restaurants []schema.Restaurant, m Map) []Marker {
	markers := make([]Marker, 0, len(restaurants))
	for _, r := range restaurants {
		markers = append(markers, factory.NewMarker(r, m))
	}
	return markers
}
