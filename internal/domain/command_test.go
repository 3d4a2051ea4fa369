package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/fixed"
)

func TestDecodeCommandVariants(t *testing.T) {
	cmd, err := DecodeCommand("quote-update", []byte(`{"asset":"BTC","ask":650000000,"bid":649900000}`))
	require.NoError(t, err)
	q, ok := cmd.(QuoteUpdateCommand)
	require.True(t, ok)
	assert.Equal(t, fixed.Price(650000000), q.Ask)

	cmd, err = DecodeCommand("place", []byte(`{"orderId":"o1","userId":"u1","asset":"BTC","side":"long","margin":100000,"leverage":10,"stopLoss":645000000}`))
	require.NoError(t, err)
	p, ok := cmd.(PlaceCommand)
	require.True(t, ok)
	assert.Equal(t, SideLong, p.Side)
	require.NotNil(t, p.StopLoss)
	assert.Equal(t, fixed.Price(645000000), *p.StopLoss)
	assert.Nil(t, p.TakeProfit)

	cmd, err = DecodeCommand("close", []byte(`{"orderId":"o1","userId":"u1"}`))
	require.NoError(t, err)
	c, ok := cmd.(CloseCommand)
	require.True(t, ok)
	assert.Equal(t, "o1", c.OrderID)
}

func TestDecodeCommandRejectsUnknownKind(t *testing.T) {
	_, err := DecodeCommand("rebalance", []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDecodeCommandRejectsMalformedPayload(t *testing.T) {
	_, err := DecodeCommand("place", []byte(`{"margin":"lots"`))
	assert.Error(t, err)

	// Numbers where integers are expected must not pass silently.
	_, err = DecodeCommand("quote-update", []byte(`{"asset":"BTC","ask":"high"}`))
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tp := fixed.Price(660000000)
	orig := PlaceCommand{
		OrderID: "o1", UserID: "u1", Asset: "BTC",
		Side: SideShort, Margin: 100000, Leverage: 20, TakeProfit: &tp,
	}
	kind, payload, err := EncodeCommand(orig)
	require.NoError(t, err)
	assert.Equal(t, "place", kind)

	decoded, err := DecodeCommand(kind, payload)
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)
}

func TestValidLeverage(t *testing.T) {
	for _, l := range Leverages {
		assert.True(t, ValidLeverage(l))
	}
	assert.False(t, ValidLeverage(0))
	assert.False(t, ValidLeverage(3))
	assert.False(t, ValidLeverage(200))
}
