package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/poolchem/poolchem/pkg/dosing"
	"github.com/poolchem/poolchem/server/internal/metrics"
	"github.com/poolchem/poolchem/server/internal/service"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// DefaultPingPeriod controls how often the server sends WebSocket ping
	// frames when New is given a zero interval.
	DefaultPingPeriod = 30 * time.Second

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	// maxRequestBytes bounds one incoming calculation request.
	maxRequestBytes = 4096
)

// Event names sent to clients.
const (
	EventCatalog = "catalog"
	EventResult  = "result"
	EventError   = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins. Callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Request is one calculation a client asks for. ID is echoed in the reply so
// the client can match responses to requests.
type Request struct {
	ID      string         `json:"id"`
	Request dosing.Request `json:"request"`
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string      `json:"event"`
	ID    string      `json:"id,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Hub manages WebSocket calculator sessions. Each client sends calculation
// requests and receives results; every client is pushed the new catalog when
// the configuration is reloaded.
type Hub struct {
	svc        *service.Service
	metrics    *metrics.Metrics
	pingPeriod time.Duration
	pongWait   time.Duration
	updates    chan service.Catalog

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// New creates a Hub serving calculations from svc. pingPeriod of zero uses
// DefaultPingPeriod.
func New(svc *service.Service, m *metrics.Metrics, pingPeriod time.Duration) *Hub {
	if pingPeriod <= 0 {
		pingPeriod = DefaultPingPeriod
	}
	h := &Hub{
		svc:        svc,
		metrics:    m,
		pingPeriod: pingPeriod,
		pongWait:   pingPeriod * 10 / 9,
		updates:    make(chan service.Catalog, 1),
		clients:    make(map[*client]struct{}),
	}
	svc.Subscribe(func(cat service.Catalog) {
		// Keep only the newest catalog if Run has not drained the last one.
		select {
		case <-h.updates:
		default:
		}
		select {
		case h.updates <- cat:
		default:
		}
	})
	return h
}

// Run pushes catalog updates to every connected client. It blocks until ctx
// is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case cat := <-h.updates:
			h.broadcast(Message{Event: EventCatalog, Data: cat})
		}
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client.
// The current catalog is sent immediately on connect. Blocks until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := json.Marshal(Message{Event: EventCatalog, Data: h.svc.Catalog()}); err == nil {
		c.enqueue(data)
	}

	go c.writePump(h.pingPeriod)
	h.readPump(c) // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.ClientConnected()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
		h.metrics.ClientDisconnected()
	}
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws: marshal broadcast", "event", msg.Event, "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			// Client's outgoing buffer is full, disconnect it.
			h.unregister(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.close()
		h.metrics.ClientDisconnected()
	}
}

// readPump reads calculation requests from the client and queues the reply.
// Blocks until the connection closes.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxRequestBytes)
	c.conn.SetReadDeadline(time.Now().Add(h.pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws: read", "err", err)
			}
			return
		}
		reply := h.handle(raw)
		data, err := json.Marshal(reply)
		if err != nil {
			slog.Error("ws: marshal reply", "err", err)
			continue
		}
		if !c.enqueue(data) {
			return
		}
	}
}

// handle turns one raw client frame into the reply envelope.
func (h *Hub) handle(raw []byte) Message {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Message{Event: EventError, Error: "invalid request: " + err.Error()}
	}
	if req.Request.Mode == "" {
		return Message{Event: EventError, ID: req.ID, Error: "request.mode is required"}
	}
	resp, err := h.svc.Calculate(service.FrontendWS, req.Request)
	if err != nil {
		msg := err.Error()
		if !service.IsClientError(err) {
			slog.Error("ws: calculate", "mode", req.Request.Mode, "err", err)
			msg = "internal error"
		}
		return Message{Event: EventError, ID: req.ID, Error: msg}
	}
	return Message{Event: EventResult, ID: req.ID, Data: resp}
}

// enqueue queues data without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					slog.Debug("ws: write", "err", err)
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
