package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// replyLog is an in-memory event log carrying only the reply stream.
type replyLog struct {
	mu      sync.Mutex
	entries []domain.StreamEntry
	seq     int
}

func (l *replyLog) Append(_ context.Context, _, kind string, payload []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	id := fmt.Sprintf("%d-0", l.seq)
	l.entries = append(l.entries, domain.StreamEntry{ID: id, Kind: kind, Payload: payload})
	return id, nil
}

func (l *replyLog) Read(ctx context.Context, _, after string, count int64, block time.Duration) ([]domain.StreamEntry, error) {
	deadline := time.Now().Add(block)
	for {
		l.mu.Lock()
		var out []domain.StreamEntry
		for _, e := range l.entries {
			if e.ID > after {
				out = append(out, e)
			}
			if int64(len(out)) == count {
				break
			}
		}
		l.mu.Unlock()

		if len(out) > 0 {
			return out, nil
		}
		if block < 0 || time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (l *replyLog) LastID(context.Context, string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return "0", nil
	}
	return l.entries[len(l.entries)-1].ID, nil
}

func newTestWaiter(t *testing.T) (*Waiter, *replyLog) {
	t.Helper()
	log := &replyLog{}
	return startWaiter(t, log), log
}

func startWaiter(t *testing.T, log *replyLog) *Waiter {
	t.Helper()
	w := NewWaiter(log, "callback-queue", slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func appendReply(t *testing.T, log *replyLog, reply domain.Reply) {
	t.Helper()
	payload, err := json.Marshal(reply)
	require.NoError(t, err)
	_, err = log.Append(context.Background(), "callback-queue", "reply", payload)
	require.NoError(t, err)
}

func TestWaiterDeliversRegisteredReply(t *testing.T) {
	w, log := newTestWaiter(t)

	ch, cleanup := w.Register("order-1")
	defer cleanup()

	appendReply(t, log, domain.Reply{ID: "order-1", Status: domain.StatusOpened})

	reply, err := w.Await(context.Background(), ch, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "order-1", reply.ID)
	assert.Equal(t, domain.StatusOpened, reply.Status)
}

func TestWaiterAwaitTimesOut(t *testing.T) {
	w, _ := newTestWaiter(t)

	ch, cleanup := w.Register("order-1")
	defer cleanup()

	_, err := w.Await(context.Background(), ch, 20*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrReplyTimeout)
}

func TestWaiterDropsUnclaimedReplies(t *testing.T) {
	w, log := newTestWaiter(t)

	appendReply(t, log, domain.Reply{ID: "order-ghost", Status: domain.StatusClosed})

	// Registering after delivery must not resurrect the dropped reply.
	time.Sleep(50 * time.Millisecond)
	ch, cleanup := w.Register("order-ghost")
	defer cleanup()

	_, err := w.Await(context.Background(), ch, 50*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrReplyTimeout)
}

func TestWaiterAnchorsAfterExistingReplies(t *testing.T) {
	log := &replyLog{}
	// A stale reply left on the stream by a previous process.
	payload, err := json.Marshal(domain.Reply{ID: "order-old", Status: domain.StatusClosed})
	require.NoError(t, err)
	_, err = log.Append(context.Background(), "callback-queue", "reply", payload)
	require.NoError(t, err)

	w := startWaiter(t, log)

	chOld, cleanupOld := w.Register("order-old")
	defer cleanupOld()
	chNew, cleanupNew := w.Register("order-new")
	defer cleanupNew()

	appendReply(t, log, domain.Reply{ID: "order-new", Status: domain.StatusOpened})

	// The tail was resolved once at startup: everything after it arrives,
	// history before it does not.
	reply, err := w.Await(context.Background(), chNew, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpened, reply.Status)

	_, err = w.Await(context.Background(), chOld, 50*time.Millisecond)
	require.ErrorIs(t, err, domain.ErrReplyTimeout)
}

func TestWaiterRoutesConcurrentReplies(t *testing.T) {
	w, log := newTestWaiter(t)

	chA, cleanupA := w.Register("order-a")
	defer cleanupA()
	chB, cleanupB := w.Register("order-b")
	defer cleanupB()

	appendReply(t, log, domain.Reply{ID: "order-b", Status: domain.StatusClosed})
	appendReply(t, log, domain.Reply{ID: "order-a", Status: domain.StatusOpened})

	replyA, err := w.Await(context.Background(), chA, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpened, replyA.Status)

	replyB, err := w.Await(context.Background(), chB, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, replyB.Status)
}
