package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/logging"
)

// Hub fans session events out to websocket subscribers. It implements
// core.EventSink, so it can be handed directly to the orchestration layer as
// the outbound sink. Emit never blocks: a subscriber whose buffer is full
// misses the event.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*wsClient]struct{}
	logger   logging.Logger
	upgrader websocket.Upgrader
}

var _ core.EventSink = (*Hub)(nil)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 64
)

// HubOptions configures a Hub.
type HubOptions struct {
	Logger logging.Logger
}

// NewHub creates an empty Hub.
func NewHub(optFns ...func(o *HubOptions)) *Hub {
	opts := HubOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Hub{
		sessions: make(map[string]map[*wsClient]struct{}),
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan core.Event
	done chan struct{}
	once sync.Once
}

// close tears the client down exactly once. The send channel is never
// closed, so concurrent Emit calls cannot panic.
func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Emit implements core.EventSink.
func (h *Hub) Emit(event core.Event) {
	h.mu.RLock()
	clients := h.sessions[event.SessionID]
	targets := make([]*wsClient, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- event:
		case <-c.done:
		default:
			h.logger.Debug("subscriber buffer full, dropping event", "session", event.SessionID, "type", string(event.Type))
		}
	}
}

// ServeWS upgrades the request and streams the session's events until the
// peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan core.Event, wsSendBuffer), done: make(chan struct{})}
	h.register(sessionID, c)
	h.logger.Debug("subscriber connected", "session", sessionID)

	go h.writePump(sessionID, c)
	h.readPump(sessionID, c)
}

// SubscriberCount returns the number of open subscriptions for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]map[*wsClient]struct{})
	h.mu.Unlock()

	for _, clients := range sessions {
		for c := range clients {
			c.close()
		}
	}
}

func (h *Hub) register(sessionID string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.sessions[sessionID]
	if !ok {
		clients = make(map[*wsClient]struct{})
		h.sessions[sessionID] = clients
	}
	clients[c] = struct{}{}
}

func (h *Hub) unregister(sessionID string, c *wsClient) {
	h.mu.Lock()
	clients, ok := h.sessions[sessionID]
	if ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// writePump serializes events onto the connection until the client is torn
// down or a write fails.
func (h *Hub) writePump(sessionID string, c *wsClient) {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				h.logger.Debug("subscriber write failed", "session", sessionID, "error", err)
				h.unregister(sessionID, c)
				return
			}
		}
	}
}

// readPump discards inbound frames; its purpose is noticing the close.
func (h *Hub) readPump(sessionID string, c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister(sessionID, c)
			h.logger.Debug("subscriber disconnected", "session", sessionID)
			return
		}
	}
}
