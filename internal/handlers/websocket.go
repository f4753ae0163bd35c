package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local operation
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocketHandler streams published events to connected operator UIs
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	serverInstanceID string // Clients use this to detect a server restart
}

// NewWebSocketHandler creates the handler and subscribes it to every
// published event
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
	}

	if err := eventService.Subscribe(interfaces.EventType("*"), func(ctx context.Context, event interfaces.Event) error {
		h.broadcast(event)
		return nil
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to subscribe websocket handler to events")
	}

	return h
}

// HandleWebSocket handles GET /ws - upgrades and registers a client
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().
		Str("remote", r.RemoteAddr).
		Int("clients", clientCount).
		Msg("WebSocket client connected")

	// Hello frame so clients can detect server restarts
	h.writeTo(conn, map[string]interface{}{
		"type":               "hello",
		"server_instance_id": h.serverInstanceID,
		"timestamp":          time.Now().UTC(),
	})

	common.SafeGo(h.logger, "ws:ping", func() { h.pingLoop(conn) })
	h.readLoop(conn)
}

// readLoop drains client frames; its only job is detecting disconnects
func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer h.dropClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pingLoop keeps the connection alive through idle proxies
func (h *WebSocketHandler) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for range ticker.C {
		h.mu.RLock()
		mutex, ok := h.clientMutex[conn]
		h.mu.RUnlock()
		if !ok {
			return
		}

		mutex.Lock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		mutex.Unlock()
		if err != nil {
			h.dropClient(conn)
			return
		}
	}
}

// broadcast sends an event to every connected client
func (h *WebSocketHandler) broadcast(event interfaces.Event) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.writeTo(conn, event)
	}
}

// writeTo serializes a frame to one client under its write mutex
func (h *WebSocketHandler) writeTo(conn *websocket.Conn, payload interface{}) {
	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	mutex.Lock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	err := conn.WriteJSON(payload)
	mutex.Unlock()

	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
		h.dropClient(conn)
	}
}

// dropClient unregisters and closes a connection
func (h *WebSocketHandler) dropClient(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	clientCount := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	h.logger.Info().Int("clients", clientCount).Msg("WebSocket client disconnected")
}
