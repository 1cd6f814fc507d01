package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// Messages waiting for one subscriber before it is cut off
	subscriberBuffer = 64

	writeTimeout = 5 * time.Second
)

// subscriber is one WebSocket client. Its writer goroutine is the only one
// that writes to conn.
type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
	gone chan struct{}
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.gone) })
}

// hub fans encoded messages out to subscribers. A subscriber whose buffer
// is full is dropped rather than allowed to stall the others.
type hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	logger *log.Logger
}

func newHub(logger *log.Logger) *hub {
	return &hub{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// join registers conn. first, when not nil, is queued ahead of any
// broadcast.
func (h *hub) join(conn *websocket.Conn, first []byte) *subscriber {
	sub := &subscriber{
		conn: conn,
		out:  make(chan []byte, subscriberBuffer),
		gone: make(chan struct{}),
	}
	if first != nil {
		sub.out <- first
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.logger.Printf("Client connected (total: %d)", n)
	return sub
}

func (h *hub) leave(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.logger.Printf("Client disconnected (total: %d)", n)
	}
}

func (h *hub) publish(data []byte) {
	h.mu.Lock()
	var slow []*subscriber
	for sub := range h.subs {
		select {
		case sub.out <- data:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range slow {
		h.logger.Println("WARNING: Client not keeping up, disconnecting")
		h.leave(sub)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// serve writes queued messages to sub until it leaves, the client
// disconnects or ctx is done.
func (h *hub) serve(ctx context.Context, sub *subscriber) {
	defer h.leave(sub)

	// The client sends nothing we need; CloseRead handles control frames
	// and reports the disconnect.
	ctx = sub.conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = sub.conn.Close(websocket.StatusGoingAway, "Server shutting down")
			return
		case <-sub.gone:
			_ = sub.conn.Close(websocket.StatusPolicyViolation, "Too slow")
			return
		case data := <-sub.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sub.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Printf("Failed to send to client: %v", err)
				_ = sub.conn.CloseNow()
				return
			}
		}
	}
}
