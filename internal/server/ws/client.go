package ws

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/query"
	"github.com/gorilla/websocket"
)

// client represents a single websocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn

	mu      sync.Mutex
	send    chan []byte
	closed  bool
	subs    map[string]bool
	watches map[uint64]*query.Subscription
}

// enqueue queues a frame without blocking. It reports false when the
// client is closed or its buffer is full.
func (c *client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) sendFrame(env envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// close ends every watch and closes the send channel. Safe to call twice.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, sub := range c.watches {
		sub.Close()
		delete(c.watches, id)
	}
	close(c.send)
}

// readPump handles control frames until the connection drops.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			c.close()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var req request
		if err := json.Unmarshal(message, &req); err != nil {
			c.sendFrame(envelope{Type: "error", Error: "malformed request"})
			continue
		}
		c.handle(req)
	}
}

func (c *client) handle(req request) {
	switch strings.ToLower(req.Action) {
	case "subscribe":
		c.mu.Lock()
		for _, ch := range req.Channels {
			c.subs[ch] = true
		}
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		for _, ch := range req.Channels {
			delete(c.subs, ch)
		}
		c.mu.Unlock()
	case "watch":
		if req.AlphaID == nil {
			c.sendFrame(envelope{Type: "error", Error: "alpha_id is required"})
			return
		}
		c.watch(*req.AlphaID)
	case "unwatch":
		if req.AlphaID == nil {
			return
		}
		c.mu.Lock()
		if sub, ok := c.watches[*req.AlphaID]; ok {
			sub.Close()
			delete(c.watches, *req.AlphaID)
		}
		c.mu.Unlock()
	default:
		c.sendFrame(envelope{Type: "error", Error: "unknown action " + req.Action})
	}
}

// watch streams the live stats of alpha id until unwatch or disconnect.
func (c *client) watch(id uint64) {
	if c.hub.stats == nil {
		c.sendFrame(envelope{Type: "error", AlphaID: &id, Error: "live stats unavailable"})
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.watches[id]; ok {
		c.mu.Unlock()
		return
	}
	if len(c.watches) >= maxWatches {
		c.mu.Unlock()
		c.sendFrame(envelope{Type: "error", AlphaID: &id, Error: "too many watches"})
		return
	}
	sub := c.hub.stats.WatchLiveStats(id)
	c.watches[id] = sub
	c.mu.Unlock()

	go func() {
		for res := range sub.Updates() {
			if res.Err != nil {
				c.sendFrame(envelope{Type: "live_stats", AlphaID: &id, Error: res.Err.Error()})
				continue
			}
			st, ok := res.Value.(domain.LiveStats)
			if !ok {
				continue
			}
			payload, err := json.Marshal(liveStatsPayload(st))
			if err != nil {
				continue
			}
			c.sendFrame(envelope{Type: "live_stats", AlphaID: &id, Payload: payload})
		}
	}()
}

func liveStatsPayload(st domain.LiveStats) map[string]any {
	return map[string]any{
		"creatorStake":   bigString(st.CreatorStake),
		"totalOpponents": bigString(st.TotalOpponents),
		"totalStaked":    bigString(st.TotalStaked),
		"opponentCount":  st.OpponentCount,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// sendHello tells a new client the connection is live.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	payload, err := json.Marshal(map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": max(uptime, 0),
		"channels":       defaultChannels,
	})
	if err != nil {
		return
	}
	c.sendFrame(envelope{Type: "hello", Payload: payload})
}

// isSubscribed checks whether the client is subscribed to the given channel.
// A trailing "*" subscribes to every channel with that prefix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump writes queued frames as JSON text messages and pings the peer.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
