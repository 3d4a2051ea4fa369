package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

const (
	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// Config holds the market-data feed configuration.
type Config struct {
	// URL is the Binance websocket endpoint,
	// e.g. "wss://stream.binance.com:9443/ws".
	URL string

	// Symbols maps exchange symbols to engine asset names,
	// e.g. {"BTCUSDT": "BTC"}.
	Symbols map[string]string

	// Stream is the engine command stream quote updates are appended to.
	Stream string
}

// Feed consumes Binance aggregated trades and turns each one into a quote:
// bid is the trade price, ask is the trade price marked up one percent. Every
// quote is published on the asset's channel for the websocket fan-out and
// appended to the engine stream.
type Feed struct {
	cfg    Config
	log    domain.EventLog
	bus    domain.Bus
	logger *slog.Logger
}

// New creates a Feed.
func New(cfg Config, log domain.EventLog, bus domain.Bus, logger *slog.Logger) *Feed {
	return &Feed{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Run connects and consumes trades until ctx is done, reconnecting with
// exponential backoff on disconnect.
func (f *Feed) Run(ctx context.Context) error {
	if len(f.cfg.Symbols) == 0 {
		f.logger.Info("no symbols configured, exiting")
		return nil
	}

	symbols := make([]string, 0, len(f.cfg.Symbols))
	for s := range f.cfg.Symbols {
		symbols = append(symbols, s)
	}

	delay := reconnectDelay
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := f.runConnection(ctx, symbols)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("binance ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *Feed) runConnection(ctx context.Context, symbols []string) error {
	conn, err := dial(ctx, f.cfg.URL, symbols, func(symbol, price string, at time.Time) {
		f.handleTrade(ctx, symbol, price, at)
	})
	if err != nil {
		return err
	}

	f.logger.Info("binance ws subscribed", slog.Int("symbols", len(symbols)))
	return conn.run(ctx)
}

// handleTrade converts one trade into a quote and fans it out. Publish and
// append failures are logged and dropped; the next trade supersedes this one.
func (f *Feed) handleTrade(ctx context.Context, symbol, price string, at time.Time) {
	asset, ok := f.cfg.Symbols[symbol]
	if !ok {
		return
	}

	bid, err := fixed.ParsePrice(price)
	if err != nil || bid <= 0 {
		f.logger.Debug("unparseable trade price dropped",
			slog.String("symbol", symbol),
			slog.String("price", price),
		)
		return
	}
	// Synthetic one percent spread over the trade price.
	ask := bid + bid/100

	quote := domain.Quote{Asset: asset, Ask: ask, Bid: bid, At: at}
	if payload, err := json.Marshal(quote); err == nil {
		if err := f.bus.Publish(ctx, asset, payload); err != nil {
			f.logger.Warn("quote publish failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
	}

	cmd := domain.QuoteUpdateCommand{
		Asset: asset,
		Ask:   ask,
		Bid:   bid,
		Time:  at.UnixMilli(),
	}
	kind, payload, err := domain.EncodeCommand(cmd)
	if err != nil {
		return
	}
	if _, err := f.log.Append(ctx, f.cfg.Stream, kind, payload); err != nil {
		f.logger.Warn("quote append failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
	}
}
