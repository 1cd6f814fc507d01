package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/daemon"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/reconcile"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
	offlinesync "github.com/mwsrestaurants/restaurant-sync/internal/offline/sync"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Port:   0,
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// localAddr rewrites the wildcard listen address to loopback.
func localAddr(t *testing.T, server *Server) string {
	t.Helper()
	_, port, err := net.SplitHostPort(server.GetAddr())
	if err != nil {
		t.Fatalf("Invalid server address %q: %v", server.GetAddr(), err)
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func dialClient(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+localAddr(t, server)+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection_WelcomeStats(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	handler.UpdateStats(4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Pending != 4 {
		t.Errorf("Expected 4 pending, got %d", stats.Pending)
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		conn := dialClient(t, ctx, server)
		readMessage(t, ctx, conn)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestHandlerReconciledEvent(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server)
	readMessage(t, ctx, conn)

	handler.OnReviewsReconciled(reconcile.Result{RestaurantID: 9, Inserted: 2, Updated: 1})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeReviewsReconciled {
		t.Fatalf("Expected message type %s, got %s", MessageTypeReviewsReconciled, msg.Type)
	}
	var data ReconciledData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}
	if data.RestaurantID != 9 || data.Inserted != 2 || data.Updated != 1 {
		t.Errorf("Unexpected reconcile data: %+v", data)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Errorf("Expected message type %s, got %s", MessageTypeStats, msg.Type)
	}

	stats := handler.GetStats()
	if stats.Reconciliations != 1 || stats.ReviewsMerged != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestHandlerWriteEvents(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server)
	readMessage(t, ctx, conn)

	handler.OnFavoriteUpdated(3, true, offlinesync.DeliveryQueued)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeFavoriteUpdated {
		t.Fatalf("Expected message type %s, got %s", MessageTypeFavoriteUpdated, msg.Type)
	}
	var fav FavoriteData
	if err := json.Unmarshal(msg.Data, &fav); err != nil {
		t.Fatalf("Failed to unmarshal favorite data: %v", err)
	}
	if fav.RestaurantID != 3 || !fav.IsFavorite || fav.Delivery != "queued" {
		t.Errorf("Unexpected favorite data: %+v", fav)
	}
	readMessage(t, ctx, conn) // stats

	handler.OnReviewAdded(schema.Review{LocalKey: 12, RestaurantID: 3, Rating: 5}, offlinesync.DeliverySynced)

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeReviewAdded {
		t.Fatalf("Expected message type %s, got %s", MessageTypeReviewAdded, msg.Type)
	}
	var added ReviewAddedData
	if err := json.Unmarshal(msg.Data, &added); err != nil {
		t.Fatalf("Failed to unmarshal review data: %v", err)
	}
	if added.LocalKey != 12 || added.Delivery != "synced" {
		t.Errorf("Unexpected review data: %+v", added)
	}
}

func TestHandlerQueueEvents(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server)
	readMessage(t, ctx, conn)

	req := schema.NewFavoriteUpdate(8, false, time.Now())
	handler.OnRequestQueued(req)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeRequestQueued {
		t.Fatalf("Expected message type %s, got %s", MessageTypeRequestQueued, msg.Type)
	}
	var queued RequestQueuedData
	if err := json.Unmarshal(msg.Data, &queued); err != nil {
		t.Fatalf("Failed to unmarshal queued data: %v", err)
	}
	if queued.RequestID != req.ID || queued.RestaurantID != 8 || queued.Kind != "favorite" {
		t.Errorf("Unexpected queued data: %+v", queued)
	}
	readMessage(t, ctx, conn) // stats

	handler.OnQueueDrained(daemon.Report{Trigger: "reconnect", Delivered: 1})

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeQueueDrained {
		t.Fatalf("Expected message type %s, got %s", MessageTypeQueueDrained, msg.Type)
	}
	var report daemon.Report
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		t.Fatalf("Failed to unmarshal report: %v", err)
	}
	if report.Trigger != "reconnect" || report.Delivered != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}

	stats := handler.GetStats()
	if stats.Pending != 0 || stats.RequestsQueued != 1 || stats.RequestsDelivered != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startTestServer(t)

	resp, err := http.Get("http://" + localAddr(t, server) + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("Unexpected health response: %+v", body)
	}
}
