package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// scenario is a mixed command sequence that exercises quotes, places, manual
// closes, and a monitor-triggered close.
func scenario() []domain.Command {
	return []domain.Command{
		quoteCmd("BTC", 650000000, 649900000),
		quoteCmd("ETH", 30000000, 29990000),
		domain.PlaceCommand{
			OrderID: "btc-long", UserID: "u1", Asset: "BTC",
			Side: domain.SideLong, Margin: 100000, Leverage: 10,
			StopLoss: price(645000000),
		},
		domain.PlaceCommand{
			OrderID: "eth-short", UserID: "u2", Asset: "ETH",
			Side: domain.SideShort, Margin: 50000, Leverage: 5,
		},
		quoteCmd("ETH", 30500000, 30490000),
		domain.CloseCommand{OrderID: "eth-short", UserID: "u2"},
		quoteCmd("BTC", 640100000, 640000000), // fires the BTC stop-loss
		domain.PlaceCommand{
			OrderID: "btc-short", UserID: "u1", Asset: "BTC",
			Side: domain.SideShort, Margin: 20000, Leverage: 20,
		},
	}
}

func snapshotOf(e *Engine) (map[string]domain.Position, map[string]domain.Quote, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	positions, quotes := e.state.Snapshot()
	return positions, quotes, e.cursor
}

func TestCheckpointPlusReplayEqualsFullReplay(t *testing.T) {
	// Reference: the full sequence applied from empty.
	full := newHarness(t)
	for _, cmd := range scenario() {
		full.send(t, cmd)
	}
	full.pump(t)
	wantPositions, wantQuotes, wantCursor := snapshotOf(full.e)

	for prefix := 0; prefix <= len(scenario()); prefix++ {
		// Apply a prefix, checkpoint, then recover a fresh engine over
		// the same log and let it replay the rest.
		h := newHarness(t)
		cmds := scenario()
		for _, cmd := range cmds[:prefix] {
			h.send(t, cmd)
		}
		h.pump(t)
		require.NoError(t, h.e.writeCheckpoint(context.Background()))
		for _, cmd := range cmds[prefix:] {
			h.send(t, cmd)
		}

		restored := New(Config{}, h.log, newFakeArchive(), h.cps, slog.New(slog.DiscardHandler),
			WithClock(h.e.now))
		require.NoError(t, restored.recover(context.Background()))

		gotPositions, gotQuotes, gotCursor := snapshotOf(restored)
		assert.Equal(t, wantPositions, gotPositions, "prefix %d", prefix)
		assert.Equal(t, wantQuotes, gotQuotes, "prefix %d", prefix)
		assert.Equal(t, wantCursor, gotCursor, "prefix %d", prefix)
	}
}

func TestRecoverWithoutCheckpointStartsAtTail(t *testing.T) {
	h := newHarness(t)
	// Entries exist but there is no checkpoint: history is not replayed.
	h.send(t, quoteCmd("BTC", 650000000, 649900000))

	require.NoError(t, h.e.recover(context.Background()))
	// The tail is a concrete last-entry id, not a symbolic marker, so
	// subsequent reads at this cursor cannot skip anything.
	assert.Equal(t, "1-0", h.e.Cursor())
	_, ok := h.e.CurrentQuote("BTC")
	assert.False(t, ok)

	// Everything appended after the anchor is consumed.
	h.send(t, quoteCmd("BTC", 651000000, 650900000))
	h.pump(t)
	q, ok := h.e.CurrentQuote("BTC")
	require.True(t, ok)
	assert.Equal(t, fixed.Price(651000000), q.Ask)
}

func TestRecoverWithoutCheckpointOnEmptyLog(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.e.recover(context.Background()))
	assert.Equal(t, "0", h.e.Cursor())

	h.send(t, quoteCmd("BTC", 650000000, 649900000))
	h.pump(t)
	_, ok := h.e.CurrentQuote("BTC")
	assert.True(t, ok)
}

func TestRecoverRetriesTransientReadErrors(t *testing.T) {
	h := newHarness(t)
	h.send(t, quoteCmd("BTC", 650000000, 649900000))
	h.pump(t)
	require.NoError(t, h.e.writeCheckpoint(context.Background()))
	h.send(t, quoteCmd("BTC", 651000000, 650900000))

	restored := New(Config{}, h.log, newFakeArchive(), h.cps, slog.New(slog.DiscardHandler))
	h.log.failReads = 2
	require.NoError(t, restored.recover(context.Background()))

	q, ok := restored.CurrentQuote("BTC")
	require.True(t, ok)
	assert.Equal(t, fixed.Price(651000000), q.Ask)
}

func TestRunDrainsAndWritesFinalCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.send(t, quoteCmd("BTC", 650000000, 649900000))
	h.send(t, domain.PlaceCommand{
		OrderID: "ord-1", UserID: "u1", Asset: "BTC",
		Side: domain.SideLong, Margin: 100000, Leverage: 10,
	})

	// Checkpoint so Run recovers with a concrete cursor and replays the
	// backlog instead of starting at the tail.
	require.NoError(t, h.e.writeCheckpoint(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.e.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.e.OpenPositionCount() == 1 && h.e.Phase() == PhaseLive
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, PhaseStopped, h.e.Phase())

	final, err := h.cps.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.e.Cursor(), final.Cursor)
	assert.Len(t, final.Positions, 1)
}

func TestCheckpointPruneRetention(t *testing.T) {
	h := newHarness(t)
	h.e.cfg.CheckpointRetention = 2

	for i := 0; i < 5; i++ {
		h.send(t, quoteCmd("BTC", 650000000+int64(i), 649900000))
		h.pump(t)
		require.NoError(t, h.e.writeCheckpoint(context.Background()))
	}

	h.cps.mu.Lock()
	kept := len(h.cps.saved)
	h.cps.mu.Unlock()
	assert.Equal(t, 2, kept)
}
