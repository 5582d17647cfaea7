package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"arksync/backend/pkg/utils"
)

const (
	// ClientBuffer is how many messages a websocket client may lag behind
	// before new ones are dropped for it.
	ClientBuffer = 32

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Envelope frames every message on the stream.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub streams readings and state changes to websocket clients. A slow client
// loses messages, it never blocks the publisher.
type Hub struct {
	l        *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool

	dropped atomic.Uint64
}

func NewHub(l *slog.Logger) *Hub {
	return &Hub{
		l: l.With(slog.String("component", "stream")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: map[*wsClient]struct{}{},
	}
}

// ServeHTTP upgrades the request and blocks until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.l.Warn("websocket upgrade failed", utils.ErrAttr(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, ClientBuffer)}
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	h.l.Debug("stream client connected", slog.String("remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	h.readPump(c)

	h.l.Debug("stream client disconnected", slog.String("remote", conn.RemoteAddr().String()))
}

func (h *Hub) PublishReading(_ context.Context, r Reading) error {
	return h.broadcast(Envelope{Type: "reading", Data: r})
}

func (h *Hub) PublishState(_ context.Context, c StateChange) error {
	return h.broadcast(Envelope{Type: "state", Data: c})
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Dropped is the number of messages discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(env Envelope) error {
	msg, err := utils.ToJSON(env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}

	return nil
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump only watches for the client closing, inbound messages are ignored.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
