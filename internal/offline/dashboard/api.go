package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
	offlinesync "github.com/mwsrestaurants/restaurant-sync/internal/offline/sync"
)

// maxReviewBody caps a POST /api/reviews body.
const maxReviewBody = 64 << 10

// Backend is the sync coordinator as seen by the local API.
type Backend interface {
	FetchRestaurantsByCuisineAndNeighborhood(ctx context.Context, cuisine, neighborhood string) ([]schema.Restaurant, error)
	FetchRestaurantByID(ctx context.Context, id int64) (*schema.Restaurant, error)
	FetchNeighborhoods(ctx context.Context) ([]string, error)
	FetchCuisines(ctx context.Context) ([]string, error)
	FetchReviewsByRestaurantID(ctx context.Context, restaurantID int64) ([]schema.Review, error)
	SetFavorite(ctx context.Context, restaurantID int64, isFavorite bool) (offlinesync.Delivery, error)
	AddReview(ctx context.Context, review schema.Review) (*schema.Review, offlinesync.Delivery, error)
	Online() bool
}

var _ Backend = (*offlinesync.Coordinator)(nil)

// api serves the coordinator's reads and writes to on-device clients:
//
//	GET  /api/restaurants?cuisine=&neighborhood=
//	GET  /api/restaurants/{id}
//	GET  /api/restaurants/{id}/reviews
//	PUT  /api/restaurants/{id}/favorite?is_favorite={bool}
//	POST /api/reviews
//	GET  /api/neighborhoods
//	GET  /api/cuisines
//
// Reads never fail because the server is down; they answer from the cache.
type api struct {
	backend Backend
	logger  *log.Logger
}

func newAPI(backend Backend, logger *log.Logger) *api {
	return &api{backend: backend, logger: logger}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/restaurants", a.listRestaurants)
	mux.HandleFunc("GET /api/restaurants/{id}", a.getRestaurant)
	mux.HandleFunc("GET /api/restaurants/{id}/reviews", a.listReviews)
	mux.HandleFunc("PUT /api/restaurants/{id}/favorite", a.setFavorite)
	mux.HandleFunc("POST /api/reviews", a.addReview)
	mux.HandleFunc("GET /api/neighborhoods", a.listNeighborhoods)
	mux.HandleFunc("GET /api/cuisines", a.listCuisines)
}

// writeResult is the body of a write: what was stored and whether the
// server already has it.
type writeResult struct {
	Delivery string `json:"delivery"`
	Online   bool   `json:"online"`
	Data     any    `json:"data,omitempty"`
}

func (a *api) listRestaurants(w http.ResponseWriter, r *http.Request) {
	cuisine := filterParam(r, "cuisine")
	neighborhood := filterParam(r, "neighborhood")

	restaurants, err := a.backend.FetchRestaurantsByCuisineAndNeighborhood(r.Context(), cuisine, neighborhood)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, restaurants)
}

func (a *api) getRestaurant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	restaurant, err := a.backend.FetchRestaurantByID(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, restaurant)
}

func (a *api) listReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reviews, err := a.backend.FetchReviewsByRestaurantID(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (a *api) setFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	isFavorite, err := strconv.ParseBool(r.URL.Query().Get("is_favorite"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "is_favorite must be true or false")
		return
	}

	delivery, err := a.backend.SetFavorite(r.Context(), id, isFavorite)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{
		Delivery: delivery.String(),
		Online:   a.backend.Online(),
		Data:     map[string]any{"restaurant_id": id, "is_favorite": isFavorite},
	})
}

func (a *api) addReview(w http.ResponseWriter, r *http.Request) {
	var review schema.Review
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReviewBody))
	if err := dec.Decode(&review); err != nil {
		writeError(w, http.StatusBadRequest, "invalid review body: "+err.Error())
		return
	}

	stored, delivery, err := a.backend.AddReview(r.Context(), review)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if delivery == offlinesync.DeliveryQueued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, writeResult{
		Delivery: delivery.String(),
		Online:   a.backend.Online(),
		Data:     stored,
	})
}

func (a *api) listNeighborhoods(w http.ResponseWriter, r *http.Request) {
	values, err := a.backend.FetchNeighborhoods(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (a *api) listCuisines(w http.ResponseWriter, r *http.Request) {
	values, err := a.backend.FetchCuisines(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// fail maps a coordinator error to a status. Anything unexpected is logged
// and reported as 500 without detail.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, offlinesync.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, offlinesync.ErrInvalidReview):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody is reading the response.
	default:
		a.logger.Printf("WARNING: %s %s failed: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func filterParam(r *http.Request, name string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	return offlinesync.FilterAll
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid restaurant id "+strconv.Quote(r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
