package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

type captureLog struct {
	stream string
	kinds  []string
	bodies [][]byte
}

func (c *captureLog) Append(_ context.Context, stream, kind string, payload []byte) (string, error) {
	c.stream = stream
	c.kinds = append(c.kinds, kind)
	c.bodies = append(c.bodies, payload)
	return "1-0", nil
}

func (c *captureLog) Read(context.Context, string, string, int64, time.Duration) ([]domain.StreamEntry, error) {
	return nil, nil
}

func (c *captureLog) LastID(context.Context, string) (string, error) {
	return "0", nil
}

type captureBus struct {
	channels []string
	payloads [][]byte
}

func (c *captureBus) Publish(_ context.Context, channel string, payload []byte) error {
	c.channels = append(c.channels, channel)
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *captureBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func newTestFeed() (*Feed, *captureLog, *captureBus) {
	log := &captureLog{}
	bus := &captureBus{}
	f := New(Config{
		URL:     "wss://example.invalid/ws",
		Symbols: map[string]string{"BTCUSDT": "BTC", "SOLUSDT": "SOL"},
		Stream:  "engine-stream",
	}, log, bus, slog.New(slog.DiscardHandler))
	return f, log, bus
}

func TestHandleTradeFansOutScaledQuote(t *testing.T) {
	f, log, bus := newTestFeed()
	at := time.UnixMilli(1_700_000_000_000)

	f.handleTrade(context.Background(), "BTCUSDT", "65000", at)

	require.Len(t, bus.channels, 1)
	assert.Equal(t, "BTC", bus.channels[0])

	var quote domain.Quote
	require.NoError(t, json.Unmarshal(bus.payloads[0], &quote))
	assert.Equal(t, fixed.Price(650000000), quote.Bid)
	// Ask carries the synthetic one percent markup.
	assert.Equal(t, fixed.Price(656500000), quote.Ask)

	require.Equal(t, []string{"quote-update"}, log.kinds)
	assert.Equal(t, "engine-stream", log.stream)

	cmd, err := domain.DecodeCommand(log.kinds[0], log.bodies[0])
	require.NoError(t, err)
	update, ok := cmd.(domain.QuoteUpdateCommand)
	require.True(t, ok)
	assert.Equal(t, "BTC", update.Asset)
	assert.Equal(t, quote.Ask, update.Ask)
	assert.Equal(t, quote.Bid, update.Bid)
	assert.Equal(t, at.UnixMilli(), update.Time)
}

func TestHandleTradeMarkupTruncates(t *testing.T) {
	f, log, _ := newTestFeed()

	// 150.33 scales to 1503300; one percent is 15033 exactly.
	f.handleTrade(context.Background(), "SOLUSDT", "150.33", time.Now())

	require.Len(t, log.bodies, 1)
	cmd, err := domain.DecodeCommand("quote-update", log.bodies[0])
	require.NoError(t, err)
	update := cmd.(domain.QuoteUpdateCommand)
	assert.Equal(t, fixed.Price(1503300), update.Bid)
	assert.Equal(t, fixed.Price(1518333), update.Ask)
}

func TestHandleTradeIgnoresUnknownSymbol(t *testing.T) {
	f, log, bus := newTestFeed()

	f.handleTrade(context.Background(), "DOGEUSDT", "0.1", time.Now())

	assert.Empty(t, log.kinds)
	assert.Empty(t, bus.channels)
}

func TestHandleTradeDropsBadPrice(t *testing.T) {
	f, log, bus := newTestFeed()

	f.handleTrade(context.Background(), "BTCUSDT", "not-a-number", time.Now())
	f.handleTrade(context.Background(), "BTCUSDT", "-1", time.Now())

	assert.Empty(t, log.kinds)
	assert.Empty(t, bus.channels)
}
