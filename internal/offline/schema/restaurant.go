package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LatLng is a geographic coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FlexBool decodes from a JSON boolean or from the strings "true" and "false".
// The restaurant server stores is_favorite as a string after a PUT.
type FlexBool bool

// MarshalJSON implements json.Marshaler.
func (b FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true":
		*b = true
	case "false", "", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean value %s", data)
	}
	return nil
}

// Restaurant is a listing served by the restaurant server.
type Restaurant struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Neighborhood   string            `json:"neighborhood"`
	CuisineType    string            `json:"cuisine_type"`
	Photograph     string            `json:"photograph,omitempty"`
	Address        string            `json:"address,omitempty"`
	LatLng         LatLng            `json:"latlng"`
	OperatingHours map[string]string `json:"operating_hours,omitempty"`
	IsFavorite     FlexBool          `json:"is_favorite"`
	CreatedAt      Timestamp         `json:"createdAt"`
	UpdatedAt      Timestamp         `json:"updatedAt"`
}

// Validate checks that the restaurant can be keyed in the cache. Every other
// field is stored as the server sent it, blank or not.
func (r *Restaurant) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("restaurant id must be positive (got %d)", r.ID)
	}
	return nil
}
