// Package ws pushes write lifecycle events and live pool updates to
// websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/query"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Connection limits. pingPeriod stays below pongWait so a healthy peer
// always answers before the read deadline.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	maxWatches     = 16
)

// defaultChannels are the bus channels every client starts subscribed to.
var defaultChannels = []string{domain.ChannelTx}

// LiveStatsWatcher opens revalidating subscriptions on an alpha's pool.
type LiveStatsWatcher interface {
	WatchLiveStats(id uint64) *query.Subscription
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// AllowedOrigins restricts browser upgrades. Empty allows all.
	AllowedOrigins []string
}

// envelope is every frame the hub writes.
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	AlphaID *uint64         `json:"alpha_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// request is a client control frame.
//
//	{"action":"subscribe","channels":["ch:tx"]}
//	{"action":"watch","alpha_id":7}
type request struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
	AlphaID  *uint64  `json:"alpha_id"`
}

// Hub manages connected clients. It fans bus messages out to subscribed
// clients and runs one live stats watch per client and alpha.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	stats      LiveStatsWatcher
	gauge      prometheus.Gauge
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// broadcastMsg is a ready frame tagged with its bus channel.
type broadcastMsg struct {
	channel string
	data    []byte
}

// NewHub creates a hub. stats and gauge may be nil.
func NewHub(bus domain.SignalBus, stats LiveStatsWatcher, gauge prometheus.Gauge, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		stats:      stats,
		gauge:      gauge,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  startedAt,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(set) == 0 || origin == "" || set[strings.ToLower(origin)]
	}
}

// Run owns the client set until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for _, ch := range defaultChannels {
		go h.subscribeToChannel(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
				h.gaugeAdd(-1)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.gaugeAdd(1)
			h.logger.Debug("ws: client registered", slog.Int("clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
				h.gaugeAdd(-1)
			}
			h.mu.Unlock()
			h.logger.Debug("ws: client gone", slog.Int("clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.channel) && !c.enqueue(msg.data) {
					h.logger.Warn("ws: send buffer full", slog.String("channel", msg.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) gaugeAdd(d float64) {
	if h.gauge != nil {
		h.gauge.Add(d)
	}
}

// subscribeToChannel forwards one bus channel to the broadcast loop,
// wrapping each payload in an envelope.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: bus subscription ended", slog.String("channel", channel))
				return
			}
			frame, err := json.Marshal(envelope{Type: frameType(channel), Channel: channel, Payload: data})
			if err != nil {
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, data: frame}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func frameType(channel string) string {
	if channel == domain.ChannelTx {
		return "tx"
	}
	return "message"
}

// HandleWS upgrades the request and hands the connection to Run.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		subs:    make(map[string]bool),
		watches: make(map[uint64]*query.Subscription),
	}
	for _, ch := range defaultChannels {
		c.subs[ch] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
