package bridge

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/ed247/errors"
	"github.com/c360/ed247/metric"
)

// writeTimeout bounds a write to one client so a stalled client cannot hold
// the bridge loop
const writeTimeout = 2 * time.Second

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// WebSocketHub broadcasts sample events to every connected WebSocket client.
// It is an http.Handler; mount it on the metrics server.
type WebSocketHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient

	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewWebSocketHub creates a hub without clients
func NewWebSocketHub(logger *slog.Logger, metrics *metric.Metrics) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*wsClient),
		logger:  logger.With("component", "websocket-hub"),
		metrics: metrics,
	}
}

// Name returns the sink name used in metrics
func (h *WebSocketHub) Name() string { return "websocket" }

// Clients returns the number of connected clients
func (h *WebSocketHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client until it disconnects
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", "error", err)
		if h.metrics != nil {
			h.metrics.RecordBridgeError("connection_upgrade")
		}
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[conn] = client
	h.mu.Unlock()
	h.logger.Debug("WebSocket client connected", "remote", conn.RemoteAddr().String())

	// clients only listen; reading detects the close
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Publish writes the event to every client. Clients failing the write are dropped.
func (h *WebSocketHub) Publish(_ *SampleEvent, payload []byte) error {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var failed int
	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.writeMu.Unlock()
		if err != nil {
			failed++
			h.remove(c.conn)
		}
	}
	if failed > 0 {
		return errors.WrapTransient(errors.New("websocket write failed"), "WebSocketHub", "Publish",
			"broadcast")
	}
	return nil
}

// Close disconnects every client
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge stopping"), time.Now().Add(time.Second))
		_ = conn.Close()
		delete(h.clients, conn)
	}
}
