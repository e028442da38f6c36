// Package notify fans typed events out to a user's live push connections.
// Delivery is best-effort: nothing is buffered or replayed, and a connection
// that fails a write is dropped.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/habittks/habit-tks/internal/metrics"
)

// Sink is how other components publish events. *Hub implements it.
type Sink interface {
	BroadcastToUser(userID string, eventType EventType, payload interface{}) int
}

// Conn is the part of *websocket.Conn the hub uses.
type Conn interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Config tunes the hub.
type Config struct {
	HeartbeatInterval time.Duration
	MaxMissed         int // unanswered probes before a connection is closed
	WriteTimeout      time.Duration
	DefaultUserID     string // used when a connection names no user
	Metrics           *metrics.Metrics
}

type client struct {
	id     string
	userID string
	conn   Conn

	writeMu sync.Mutex
	missed  atomic.Int32
	closed  atomic.Bool
}

func (c *client) send(msg Message, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteJSON(msg)
}

func (c *client) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// Hub is the registry of live connections.
type Hub struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*client

	now func() time.Time
}

// NewHub creates an empty hub.
func NewHub(cfg Config, logger zerolog.Logger) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MaxMissed <= 0 {
		cfg.MaxMissed = 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger.With().Str("component", "notify").Logger(),
		metrics: cfg.Metrics,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Register adds conn for userID, installs the pong handler and sends the
// welcome message. It returns the connection id.
func (h *Hub) Register(conn Conn, userID string) string {
	if userID == "" {
		userID = h.cfg.DefaultUserID
	}
	c := &client{id: uuid.NewString(), userID: userID, conn: conn}
	conn.SetPongHandler(func(string) error {
		c.missed.Store(0)
		return nil
	})

	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetPushConnections(count)
	h.logger.Info().Str("client_id", c.id).Str("user_id", userID).Int("clients", count).Msg("client registered")

	welcome := h.envelope(EventNotification, NotificationPayload{Message: "Connected to Habit TKS real-time updates"})
	if err := c.send(welcome, h.cfg.WriteTimeout); err != nil {
		h.logger.Warn().Err(err).Str("client_id", c.id).Msg("welcome failed")
		h.Unregister(c.id)
	}
	return c.id
}

// Unregister removes and closes a connection. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.closeClient(c)
	h.metrics.SetPushConnections(count)
	h.logger.Info().Str("client_id", id).Str("user_id", c.userID).Int("clients", count).Msg("client unregistered")
}

func (h *Hub) closeClient(c *client) {
	if c.closed.CompareAndSwap(false, true) {
		c.conn.Close()
	}
}

// BroadcastToUser sends an event to every connection of userID and returns
// how many deliveries succeeded. Failed connections are unregistered.
func (h *Hub) BroadcastToUser(userID string, eventType EventType, payload interface{}) int {
	h.mu.RLock()
	targets := make([]*client, 0, 2)
	for _, c := range h.clients {
		if c.userID == userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	msg := h.envelope(eventType, payload)
	delivered := 0
	for _, c := range targets {
		if err := c.send(msg, h.cfg.WriteTimeout); err != nil {
			h.logger.Warn().Err(err).Str("client_id", c.id).Str("type", string(eventType)).Msg("push failed, dropping client")
			h.metrics.RecordPush(string(eventType), "failed")
			h.Unregister(c.id)
			continue
		}
		h.metrics.RecordPush(string(eventType), "sent")
		delivered++
	}

	h.logger.Debug().Str("user_id", userID).Str("type", string(eventType)).Int("delivered", delivered).Msg("broadcast")
	return delivered
}

// ConnectedClients returns the number of registered connections.
func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectedUsers returns the number of distinct users with a connection.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make(map[string]struct{})
	for _, c := range h.clients {
		users[c.userID] = struct{}{}
	}
	return len(users)
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		h.closeClient(c)
	}
	h.metrics.SetPushConnections(0)
	h.logger.Info().Int("closed", len(clients)).Msg("notification hub shut down")
}

func (h *Hub) envelope(t EventType, data interface{}) Message {
	return Message{Type: t, Data: data, Timestamp: h.now().UTC()}
}
