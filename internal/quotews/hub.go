// Package quotews is the public websocket quote server. It bridges the
// per-asset Redis quote channels to connected clients, each holding its own
// subscription set.
package quotews

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 1024

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Quotes are public data; allow all origins.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed assets
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to manage its asset
// subscriptions: {"type":"SUBSCRIBE","symbol":"BTC"}.
type subscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// broadcastMsg carries a quote along with its asset so the hub routes it only
// to clients subscribed to that asset.
type broadcastMsg struct {
	asset string
	data  []byte
}

// Hub manages connected clients and fans quotes from the Redis bus out to
// every client subscribed to the quote's asset.
type Hub struct {
	assets     []string
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.Bus
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub bridging the given assets' quote channels.
func NewHub(bus domain.Bus, assets []string, logger *slog.Logger) *Hub {
	return &Hub{
		assets:     assets,
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "quotews")),
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and quote broadcasting, and exits when ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for _, asset := range h.assets {
		go h.subscribeToAsset(ctx, asset)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.asset) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the quote.
						h.logger.Warn("dropping quote for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeToAsset subscribes to one asset's quote channel and forwards
// received quotes to the hub's broadcast channel.
func (h *Hub) subscribeToAsset(ctx context.Context, asset string) {
	msgCh, err := h.bus.Subscribe(ctx, asset)
	if err != nil {
		h.logger.Error("failed to subscribe to asset channel",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("subscribed to asset channel", slog.String("asset", asset))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("asset subscription closed",
					slog.String("asset", asset),
				)
				return
			}
			h.broadcast <- broadcastMsg{asset: asset, data: data}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. Clients start with no subscriptions.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}

	h.register <- c

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription management messages from the connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
				c.hub.logger.Warn("unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		c.handleSubscription(sub)
	}
}

// handleSubscription processes SUBSCRIBE/UNSUBSCRIBE requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	if msg.Symbol == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case "SUBSCRIBE":
		c.subs[msg.Symbol] = true
	case "UNSUBSCRIBE":
		delete(c.subs, msg.Symbol)
	}
}

// isSubscribed checks whether the client is subscribed to the given asset.
func (c *client) isSubscribed(asset string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[asset]
}

// writePump pumps quotes from the hub to the WebSocket connection and sends
// periodic ping frames for keepalive.
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
				// The hub closed the channel.
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
