package notify

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and serves the connection until it closes.
// The user is taken from the userId query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	id := h.Register(conn, r.URL.Query().Get("userId"))
	h.readLoop(id, conn)
}

// readLoop handles client messages until the connection fails, then
// unregisters it.
func (h *Hub) readLoop(id string, conn Conn) {
	defer h.Unregister(id)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Debug().Err(err).Str("client_id", id).Msg("websocket read error")
			}
			return
		}
		h.handleClientMessage(id, raw)
	}
}

func (h *Hub) handleClientMessage(id string, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warn().Err(err).Str("client_id", id).Msg("invalid client message")
		return
	}

	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	var reply Message
	switch msg.Type {
	case "ping":
		reply = h.envelope(EventPong, nil)
	case "subscribe":
		reply = h.envelope(EventNotification, NotificationPayload{Message: "subscribed", Events: msg.Events})
		h.logger.Debug().Str("client_id", id).Strs("events", msg.Events).Msg("client subscribed")
	default:
		h.logger.Warn().Str("client_id", id).Str("type", msg.Type).Msg("unknown client message type")
		return
	}

	if err := c.send(reply, h.cfg.WriteTimeout); err != nil {
		h.logger.Warn().Err(err).Str("client_id", id).Msg("reply failed, dropping client")
		h.Unregister(id)
	}
}
