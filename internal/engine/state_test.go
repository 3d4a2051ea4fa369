package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

func TestStateStoreSnapshotDoesNotAliasLiveState(t *testing.T) {
	s := NewStateStore()
	s.SetQuote(domain.Quote{Asset: "BTC", Ask: 650000000, Bid: 649900000})
	s.PutPosition(domain.Position{
		OrderID: "ord-1", UserID: "u1", Asset: "BTC",
		Side: domain.SideLong, Margin: 100000, Leverage: 10,
		OpenPrice: 650000000, StopLoss: price(645000000),
	})

	positions, quotes := s.Snapshot()

	// Threshold pointers are deep-copied: writing through the snapshot
	// must not reach live state.
	*positions["ord-1"].StopLoss = 0
	p, ok := s.Position("ord-1")
	require.True(t, ok)
	assert.Equal(t, fixed.Price(645000000), *p.StopLoss)

	// Mutations after the snapshot must not leak into the copy.
	s.RemovePosition("ord-1")
	s.SetQuote(domain.Quote{Asset: "BTC", Ask: 1, Bid: 1})

	require.Len(t, positions, 1)
	assert.Equal(t, fixed.Price(650000000), positions["ord-1"].OpenPrice)
	assert.Equal(t, fixed.Price(650000000), quotes["BTC"].Ask)
}

func TestStateStorePositionsForAsset(t *testing.T) {
	s := NewStateStore()
	s.PutPosition(domain.Position{OrderID: "a", Asset: "BTC"})
	s.PutPosition(domain.Position{OrderID: "b", Asset: "ETH"})
	s.PutPosition(domain.Position{OrderID: "c", Asset: "BTC"})

	btc := s.PositionsForAsset("BTC")
	assert.Len(t, btc, 2)
	assert.Empty(t, s.PositionsForAsset("SOL"))

	// Overwriting the same order id must not grow the open set.
	s.PutPosition(domain.Position{OrderID: "a", Asset: "BTC", Margin: 5})
	assert.Equal(t, 3, s.OpenCount())
}
