package notify

import (
	"context"
	"time"
)

// Run probes every connection each heartbeat interval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	h.logger.Info().Dur("interval", h.cfg.HeartbeatInterval).Int("max_missed", h.cfg.MaxMissed).Msg("heartbeat started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("heartbeat stopped")
			return
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

// heartbeat closes connections that left MaxMissed probes unanswered and
// pings the rest.
func (h *Hub) heartbeat() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if int(c.missed.Load()) >= h.cfg.MaxMissed {
			h.logger.Warn().Str("client_id", c.id).Str("user_id", c.userID).Msg("heartbeat timeout, closing client")
			h.metrics.RecordHeartbeatTimeout()
			h.Unregister(c.id)
			continue
		}
		c.missed.Add(1)
		if err := c.ping(h.cfg.WriteTimeout); err != nil {
			h.logger.Warn().Err(err).Str("client_id", c.id).Msg("ping failed, dropping client")
			h.Unregister(c.id)
		}
	}
}
