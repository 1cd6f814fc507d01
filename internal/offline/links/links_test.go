package links

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

func TestURLs(t *testing.T) {
	tests := []struct {
		name      string
		r         schema.Restaurant
		page      string
		image     string
		thumbnail string
	}{
		{
			name:      "with photograph",
			r:         schema.Restaurant{ID: 3, Photograph: "3"},
			page:      "./restaurant.html?id=3",
			image:     "/dist/img/photos/3.jpg",
			thumbnail: "/dist/img/photos/thumbnails/3.jpg",
		},
		{
			name:      "named photograph",
			r:         schema.Restaurant{ID: 7, Photograph: "kang-ho-dong"},
			page:      "./restaurant.html?id=7",
			image:     "/dist/img/photos/kang-ho-dong.jpg",
			thumbnail: "/dist/img/photos/thumbnails/kang-ho-dong.jpg",
		},
		{
			name:      "missing photograph falls back to id",
			r:         schema.Restaurant{ID: 10},
			page:      "./restaurant.html?id=10",
			image:     "/dist/img/photos/10.jpg",
			thumbnail: "/dist/img/photos/thumbnails/10.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := URLForRestaurant(tt.r); got != tt.page {
				t.Errorf("URLForRestaurant() = %q, want %q", got, tt.page)
			}
			if got := ImageURLForRestaurant(tt.r); got != tt.image {
				t.Errorf("ImageURLForRestaurant() = %q, want %q", got, tt.image)
			}
			if got := ThumbnailURLForRestaurant(tt.r); got != tt.thumbnail {
				t.Errorf("ThumbnailURLForRestaurant() = %q, want %q", got, tt.thumbnail)
			}
		})
	}
}

type recordingMap struct {
	markers []Marker
}

func (m *recordingMap) AddMarker(marker Marker) {
	m.markers = append(m.markers, marker)
}

func TestDefaultMarkerFactory(t *testing.T) {
	restaurants := []schema.Restaurant{
		{ID: 1, Name: "Mission Chinese Food", LatLng: schema.LatLng{Lat: 40.713829, Lng: -73.989667}},
		{ID: 2, Name: "Emily", LatLng: schema.LatLng{Lat: 40.683555, Lng: -73.966393}},
	}

	m := &recordingMap{}
	markers := MarkersForRestaurants(DefaultMarkerFactory{}, restaurants, m)

	want := []Marker{
		{Position: restaurants[0].LatLng, Title: "Mission Chinese Food", URL: "./restaurant.html?id=1", Animation: "drop"},
		{Position: restaurants[1].LatLng, Title: "Emily", URL: "./restaurant.html?id=2", Animation: "drop"},
	}
	if diff := cmp.Diff(want, markers); diff != "" {
		t.Errorf("markers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, m.markers); diff != "" {
		t.Errorf("markers placed on map mismatch (-want +got):\n%s", diff)
	}

	// A nil map is allowed.
	marker := DefaultMarkerFactory{}.NewMarker(restaurants[0], nil)
	if marker.Title != "Mission Chinese Food" {
		t.Errorf("NewMarker() title = %q", marker.Title)
	}
}
