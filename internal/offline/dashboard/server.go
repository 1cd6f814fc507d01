// Package dashboard is the daemon's local HTTP surface.
//
// It serves a WebSocket feed (/ws) that broadcasts review reconciliations,
// favorite toggles, new reviews and retry queue activity, so a UI can
// re-query the cache after a background merge instead of polling. When a
// Backend is attached it also serves a small JSON API under /api that lets
// on-device clients read and write through the sync coordinator; writes
// made there show up on the feed.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Server serves the WebSocket feed and, optionally, the local API.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	hub      *hub
	backend  Backend

	// welcome builds the first message a new client receives
	welcome   func() Message
	welcomeMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Backend serves /api (optional; without it only the feed is served)
	Backend Backend

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// NewServer creates a dashboard server. It does not listen until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:    fmt.Sprintf(":%d", config.Port),
		hub:     newHub(logger),
		backend: config.Backend,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// SetBackend attaches the API backend. It must be called before Start.
func (s *Server) SetBackend(b Backend) {
	s.backend = b
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	if s.backend != nil {
		newAPI(s.backend, s.logger).register(mux)
	}
	return mux
}

// Stop disconnects every client and shuts the listener down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	// Feed connections are hijacked, so Shutdown does not wait for them.
	s.conns.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients without blocking.
func (s *Server) Broadcast(msg Message) {
	if s.ctx.Err() != nil {
		return
	}
	data, err := msg.encode()
	if err != nil {
		s.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}
	s.hub.publish(data)
}

func (s *Server) setWelcome(fn func() Message) {
	s.welcomeMu.Lock()
	defer s.welcomeMu.Unlock()
	s.welcome = fn
}

func (s *Server) welcomeMessage() Message {
	s.welcomeMu.RLock()
	defer s.welcomeMu.RUnlock()
	if s.welcome == nil {
		return Message{Type: MessageTypeStats}
	}
	return s.welcome()
}

// handleWebSocket upgrades the request and feeds the client until it
// disconnects or the server stops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Counted before the upgrade, while Shutdown still tracks the request.
	s.conns.Add(1)
	defer s.conns.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	welcome, err := s.welcomeMessage().encode()
	if err != nil {
		s.logger.Printf("Failed to marshal welcome message: %v", err)
		welcome = nil
	}
	s.hub.serve(s.ctx, s.hub.join(conn, welcome))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"api":     s.backend != nil,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "restaurant-sync daemon\n\nfeed:   ws://%s/ws\nhealth: http://%s/health\n", r.Host, r.Host)
	if s.backend != nil {
		_, _ = fmt.Fprintf(w, "api:    http://%s/api/restaurants\n", r.Host)
	}
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	return s.hub.count()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
