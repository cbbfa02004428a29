package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// HubConfig holds WebSocket connection settings.
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// Hub is the per-match registry of client connections and the WebSocket
// event sink of the broadcast gateway. Fan-out never blocks: a connection
// whose send buffer is full is dropped.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	matches map[string]map[*connection]struct{}
	onEmpty func(matchID string)
}

type connection struct {
	id      string
	userID  string
	matchID string
	ws      *websocket.Conn
	send    chan []byte
}

func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		matches: make(map[string]map[*connection]struct{}),
	}
}

// OnEmpty registers fn to run, on its own goroutine, whenever the last
// connection of a match goes away.
func (h *Hub) OnEmpty(fn func(matchID string)) {
	h.mu.Lock()
	h.onEmpty = fn
	h.mu.Unlock()
}

// Publish delivers frame to every connection of matchID.
func (h *Hub) Publish(matchID string, frame []byte) {
	var slow []*connection
	h.mu.RLock()
	for c := range h.matches[matchID] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().
			Str("connection_id", c.id).
			Str("user_id", c.userID).
			Str("match_id", matchID).
			Msg("connection send buffer full, dropping connection")
		h.unregister(c)
		c.ws.Close()
	}
}

// Connections returns the number of live connections for matchID.
func (h *Hub) Connections(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.matches[matchID])
}

// unicast queues frame for c only. It reports false if c is gone or slow.
func (h *Hub) unicast(c *connection, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.matches[c.matchID][c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (h *Hub) register(ws *websocket.Conn, matchID, userID string) *connection {
	c := &connection{
		id:      uuid.NewString(),
		userID:  userID,
		matchID: matchID,
		ws:      ws,
		send:    make(chan []byte, h.cfg.SendBufferSize),
	}

	h.mu.Lock()
	if h.matches[matchID] == nil {
		h.matches[matchID] = make(map[*connection]struct{})
	}
	h.matches[matchID][c] = struct{}{}
	total := len(h.matches[matchID])
	h.mu.Unlock()

	log.Debug().
		Str("connection_id", c.id).
		Str("user_id", userID).
		Str("match_id", matchID).
		Int("total_connections", total).
		Msg("connection registered")
	return c
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	conns, ok := h.matches[c.matchID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	close(c.send)
	empty := len(conns) == 0
	if empty {
		delete(h.matches, c.matchID)
	}
	onEmpty := h.onEmpty
	h.mu.Unlock()

	log.Info().
		Str("connection_id", c.id).
		Str("user_id", c.userID).
		Str("match_id", c.matchID).
		Msg("connection unregistered")

	// Publish runs on the match goroutine, so the callback must not run inline.
	if empty && onEmpty != nil {
		go onEmpty(c.matchID)
	}
}

// writePump owns all writes to c.ws until c.send is closed.
func (h *Hub) writePump(c *connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("write to websocket failed")
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}
