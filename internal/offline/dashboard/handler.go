package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/daemon"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/reconcile"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
	offlinesync "github.com/mwsrestaurants/restaurant-sync/internal/offline/sync"
)

// ReconciledData contains the outcome of a review merge
type ReconciledData struct {
	RestaurantID int64 `json:"restaurant_id"`
	Inserted     int   `json:"inserted"`
	Updated      int   `json:"updated"`
	Skipped      int   `json:"skipped"`
	Failed       int   `json:"failed"`
}

// FavoriteData contains a favorite toggle
type FavoriteData struct {
	RestaurantID int64  `json:"restaurant_id"`
	IsFavorite   bool   `json:"is_favorite"`
	Delivery     string `json:"delivery"` // synced, queued
}

// ReviewAddedData contains a newly cached review
type ReviewAddedData struct {
	RestaurantID int64  `json:"restaurant_id"`
	LocalKey     int64  `json:"local_key"`
	ServerID     *int64 `json:"server_id,omitempty"`
	Rating       int    `json:"rating"`
	Delivery     string `json:"delivery"` // synced, queued
}

// RequestQueuedData contains a write queued for replay
type RequestQueuedData struct {
	RequestID    string `json:"request_id"`
	Kind         string `json:"kind"`
	RestaurantID int64  `json:"restaurant_id"`
}

// StatsData contains activity counters since the handler was created
type StatsData struct {
	Reconciliations   int `json:"reconciliations"`
	ReviewsMerged     int `json:"reviews_merged"`
	FavoritesUpdated  int `json:"favorites_updated"`
	ReviewsAdded      int `json:"reviews_added"`
	RequestsQueued    int `json:"requests_queued"`
	RequestsDelivered int `json:"requests_delivered"`
	RequestsDropped   int `json:"requests_dropped"`
	Pending           int `json:"pending"`
}

// Handler turns coordinator and replayer events into dashboard messages.
// It satisfies sync.Events and daemon.Events and is safe for concurrent use.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

var (
	_ offlinesync.Events = (*Handler)(nil)
	_ daemon.Events      = (*Handler)(nil)
)

// NewHandler creates a new event handler connected to a dashboard server.
// New clients receive the current stats as their first message.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server: server,
		logger: logger,
	}
	server.setWelcome(h.statsMessage)
	return h
}

// OnReviewsReconciled handles background review merges
func (h *Handler) OnReviewsReconciled(res reconcile.Result) {
	h.mu.Lock()
	h.stats.Reconciliations++
	h.stats.ReviewsMerged += res.Total()
	h.mu.Unlock()

	h.send(MessageTypeReviewsReconciled, ReconciledData{
		RestaurantID: res.RestaurantID,
		Inserted:     res.Inserted,
		Updated:      res.Updated,
		Skipped:      res.Skipped,
		Failed:       res.Failed,
	})
	h.broadcastStats()
}

// OnFavoriteUpdated handles favorite toggles
func (h *Handler) OnFavoriteUpdated(restaurantID int64, isFavorite bool, delivery offlinesync.Delivery) {
	h.mu.Lock()
	h.stats.FavoritesUpdated++
	h.mu.Unlock()

	h.send(MessageTypeFavoriteUpdated, FavoriteData{
		RestaurantID: restaurantID,
		IsFavorite:   isFavorite,
		Delivery:     delivery.String(),
	})
	h.broadcastStats()
}

// OnReviewAdded handles new reviews
func (h *Handler) OnReviewAdded(review schema.Review, delivery offlinesync.Delivery) {
	h.mu.Lock()
	h.stats.ReviewsAdded++
	h.mu.Unlock()

	h.send(MessageTypeReviewAdded, ReviewAddedData{
		RestaurantID: review.RestaurantID,
		LocalKey:     review.LocalKey,
		ServerID:     review.ServerID,
		Rating:       review.Rating,
		Delivery:     delivery.String(),
	})
	h.broadcastStats()
}

// OnRequestQueued handles writes queued for replay
func (h *Handler) OnRequestQueued(req schema.QueuedRequest) {
	h.logger.Printf("Request queued: %s %s", req.Kind, req.ID)

	h.mu.Lock()
	h.stats.RequestsQueued++
	h.stats.Pending++
	h.mu.Unlock()

	data := RequestQueuedData{RequestID: req.ID, Kind: string(req.Kind)}
	switch {
	case req.Favorite != nil:
		data.RestaurantID = req.Favorite.RestaurantID
	case req.Review != nil:
		data.RestaurantID = req.Review.Review.RestaurantID
	}
	h.send(MessageTypeRequestQueued, data)
	h.broadcastStats()
}

// OnQueueDrained handles finished replay passes
func (h *Handler) OnQueueDrained(report daemon.Report) {
	h.logger.Printf("Queue drained (%s): %d delivered, %d dropped, %d remaining",
		report.Trigger, report.Delivered, report.Dropped, report.Remaining)

	h.mu.Lock()
	h.stats.RequestsDelivered += report.Delivered
	h.stats.RequestsDropped += report.Dropped
	h.stats.Pending = max(0, h.stats.Pending-report.Delivered-report.Dropped)
	h.mu.Unlock()

	h.send(MessageTypeQueueDrained, report)
	h.broadcastStats()
}

// UpdateStats resets the pending count from the queue's actual length.
// This is useful for initialization or periodic refresh.
func (h *Handler) UpdateStats(pending int) {
	h.mu.Lock()
	h.stats.Pending = pending
	h.mu.Unlock()

	h.broadcastStats()
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

func (h *Handler) statsMessage() Message {
	stats := h.GetStats()
	dataJSON, err := json.Marshal(stats)
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return Message{Type: MessageTypeStats, Timestamp: time.Now()}
	}
	return Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	h.server.Broadcast(h.statsMessage())
}
