package dashboard

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeReviewsReconciled indicates server reviews were merged into the cache
	MessageTypeReviewsReconciled MessageType = "reviews_reconciled"

	// MessageTypeFavoriteUpdated indicates a favorite toggle was cached
	MessageTypeFavoriteUpdated MessageType = "favorite_updated"

	// MessageTypeReviewAdded indicates a new review was cached
	MessageTypeReviewAdded MessageType = "review_added"

	// MessageTypeRequestQueued indicates a write was queued for replay
	MessageTypeRequestQueued MessageType = "request_queued"

	// MessageTypeQueueDrained indicates a replay pass finished
	MessageTypeQueueDrained MessageType = "queue_drained"

	// MessageTypeStats indicates updated activity counters
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (m Message) encode() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return json.Marshal(m)
}
