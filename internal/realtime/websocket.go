package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Admin stream is served behind the operator's own ingress; origin
		// restriction belongs to that layer, not here.
		return true
	},
}

const writeWait = 10 * time.Second

// WebSocketSubscriber adapts a single gorilla/websocket connection to the
// EventSubscriber interface so it can register directly with an EventBus.
type WebSocketSubscriber struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewWebSocketSubscriber wraps an already-upgraded connection.
func NewWebSocketSubscriber(conn *websocket.Conn, logger *slog.Logger) *WebSocketSubscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketSubscriber{
		id:     uuid.New().String(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "websocket_subscriber"),
	}
}

// ID returns the subscriber's unique ID.
func (s *WebSocketSubscriber) ID() string { return s.id }

// Context returns the subscriber's lifetime context.
func (s *WebSocketSubscriber) Context() context.Context { return s.ctx }

// Send writes event as JSON to the underlying connection.
func (s *WebSocketSubscriber) Send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(event)
}

// Close closes the underlying connection. Safe to call more than once.
func (s *WebSocketSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return s.conn.Close()
}

// ServeWebSocket upgrades r and registers the resulting connection with bus,
// blocking until the connection drops or the request context is cancelled.
// Mount at GET /ws.
func ServeWebSocket(bus EventBus, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
			return
		}

		sub := NewWebSocketSubscriber(conn, logger)
		if err := bus.Subscribe(sub); err != nil {
			logger.Warn("websocket subscribe failed", "error", err)
			conn.Close()
			return
		}
		defer bus.Unsubscribe(sub)

		// Drain and discard inbound frames; this stream is publish-only, but
		// we must keep reading so pings/pongs and client-initiated close
		// frames are handled and a dropped connection is noticed.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
