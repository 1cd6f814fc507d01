package sync

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	gosync "sync"
	"testing"
	"time"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/db"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/queue"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/reconcile"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/remote"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

// fakeServer is an in-memory review server. While down, every request has
// its connection dropped without a response.
type fakeServer struct {
	mu          gosync.Mutex
	down        bool
	restaurants []schema.Restaurant
	reviews     []schema.Review
	nextID      int64
	favoritePUT int
	reviewPOST  int

	srv *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	f := &fakeServer{nextID: 100}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /restaurants", f.handleRestaurants)
	mux.HandleFunc("PUT /restaurants/{id}", f.handleFavorite)
	mux.HandleFunc("GET /reviews", f.handleReviews)
	mux.HandleFunc("POST /reviews", f.handlePostReview)

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		down := f.down
		f.mu.Unlock()
		if down {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Errorf("response writer does not support hijacking")
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeServer) setRestaurants(rs ...schema.Restaurant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restaurants = rs
}

func (f *fakeServer) addReview(r schema.Review) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews = append(f.reviews, r)
}

func (f *fakeServer) counts() (favoritePUT, reviewPOST int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.favoritePUT, f.reviewPOST
}

func (f *fakeServer) handleRestaurants(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, f.restaurants)
}

func (f *fakeServer) handleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	fav := r.URL.Query().Get("is_favorite") == "true"

	f.mu.Lock()
	defer f.mu.Unlock()
	f.favoritePUT++
	for i := range f.restaurants {
		if f.restaurants[i].ID == id {
			f.restaurants[i].IsFavorite = schema.FlexBool(fav)
			writeJSON(w, f.restaurants[i])
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (f *fakeServer) handleReviews(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.URL.Query().Get("restaurant_id"), 10, 64)

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []schema.Review{}
	for _, rv := range f.reviews {
		if rv.RestaurantID == id {
			out = append(out, rv)
		}
	}
	writeJSON(w, out)
}

func (f *fakeServer) handlePostReview(w http.ResponseWriter, r *http.Request) {
	var rv schema.Review
	if err := json.NewDecoder(r.Body).Decode(&rv); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewPOST++
	f.nextID++
	rv.ServerID = schema.WithServerID(f.nextID)
	rv.UpdatedAt = schema.NewTimestamp(time.Now())
	f.reviews = append(f.reviews, rv)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, rv)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// recordingEvents captures coordinator notifications.
type recordingEvents struct {
	mu         gosync.Mutex
	reconciled []reconcile.Result
	favorites  []Delivery
	reviews    []Delivery
	queued     []schema.QueuedRequest
}

func (e *recordingEvents) OnReviewsReconciled(res reconcile.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reconciled = append(e.reconciled, res)
}

func (e *recordingEvents) OnFavoriteUpdated(_ int64, _ bool, d Delivery) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.favorites = append(e.favorites, d)
}

func (e *recordingEvents) OnReviewAdded(_ schema.Review, d Delivery) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reviews = append(e.reviews, d)
}

func (e *recordingEvents) OnRequestQueued(req schema.QueuedRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queued = append(e.queued, req)
}

type harness struct {
	coord  *Coordinator
	store  *db.DB
	queue  *queue.Queue
	server *fakeServer
	events *recordingEvents
}

func setupHarness(t *testing.T) *harness {
	t.Helper()

	discard := log.New(io.Discard, "", 0)

	store, err := db.OpenAndInit(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	server := newFakeServer(t)
	client, err := remote.NewClient(&remote.Config{
		BaseURL: server.srv.URL,
		Timeout: 2 * time.Second,
		Logger:  discard,
	})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	q := queue.New(store, queue.Options{Logger: discard})
	events := &recordingEvents{}

	coord, err := New(&Config{
		Restaurants:      store,
		Reviews:          store,
		Queue:            q,
		Remote:           client,
		Merger:           reconcile.New(store, discard),
		Events:           events,
		ReconcileTimeout: 5 * time.Second,
		Logger:           discard,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(coord.Close)

	return &harness{coord: coord, store: store, queue: q, server: server, events: events}
}

func restaurant(id int64, name, cuisine, neighborhood string) schema.Restaurant {
	return schema.Restaurant{
		ID:           id,
		Name:         name,
		CuisineType:  cuisine,
		Neighborhood: neighborhood,
	}
}

func ids(rs []schema.Restaurant) map[int64]bool {
	out := make(map[int64]bool, len(rs))
	for _, r := range rs {
		out[r.ID] = true
	}
	return out
}
