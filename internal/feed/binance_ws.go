// Package feed ingests market data from the Binance websocket API, converts
// it to fixed-point quotes, and fans it out to the engine stream and the
// public quote channels.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// aggTrade is the Binance aggregated trade message.
type aggTrade struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	Time   int64  `json:"T"`
}

// TradeHandler is called for every aggregated trade received.
type TradeHandler func(symbol, price string, at time.Time)

// wsConn is one Binance websocket connection subscribed to aggTrade for a
// symbol set. It lives until the connection drops or ctx is done; reconnect
// policy belongs to the caller.
type wsConn struct {
	conn    *websocket.Conn
	onTrade TradeHandler
}

// dial connects and subscribes to <symbol>@aggTrade for every symbol.
func dial(ctx context.Context, url string, symbols []string, onTrade TradeHandler) (*wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: connect %s: %w", url, err)
	}

	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, strings.ToLower(s)+"@aggTrade")
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("feed: subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	return &wsConn{conn: conn, onTrade: onTrade}, nil
}

// run reads trades until the connection fails or ctx is done.
func (w *wsConn) run(ctx context.Context) error {
	defer w.conn.Close()

	go w.pingLoop(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, message, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %w", err)
		}

		var trade aggTrade
		if err := json.Unmarshal(message, &trade); err != nil {
			// Subscription acks and other envelopes land here; skip.
			continue
		}
		if trade.Event != "aggTrade" || trade.Price == "" {
			continue
		}

		w.onTrade(trade.Symbol, trade.Price, time.UnixMilli(trade.Time))
	}
}

// pingLoop sends periodic ping messages to keep the websocket alive.
func (w *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
