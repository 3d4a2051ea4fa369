// Package gateway is the public HTTP API. It authenticates users, validates
// trade requests, submits commands to the engine stream, and correlates the
// engine's replies back to in-flight HTTP requests.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/gateway/handler"
)

var _ handler.ReplyWaiter = (*Waiter)(nil)

// Waiter tails the reply stream and routes each reply to the HTTP request
// waiting on its order id. Requests register before submitting the command so
// a reply can never slip through between submit and wait.
type Waiter struct {
	log    domain.EventLog
	stream string
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan domain.Reply
}

// NewWaiter creates a Waiter reading the given reply stream.
func NewWaiter(log domain.EventLog, stream string, logger *slog.Logger) *Waiter {
	return &Waiter{
		log:     log,
		stream:  stream,
		logger:  logger.With(slog.String("component", "reply_waiter")),
		pending: make(map[string]chan domain.Reply),
	}
}

// Register reserves a slot for the given order id and returns the channel the
// reply will arrive on plus a cleanup func. The caller must invoke cleanup on
// every exit path or the slot leaks.
func (w *Waiter) Register(orderID string) (<-chan domain.Reply, func()) {
	ch := make(chan domain.Reply, 1)

	w.mu.Lock()
	w.pending[orderID] = ch
	w.mu.Unlock()

	cleanup := func() {
		w.mu.Lock()
		delete(w.pending, orderID)
		w.mu.Unlock()
	}
	return ch, cleanup
}

// Await blocks until the reply for orderID arrives, the timeout elapses, or
// ctx is done. The pending slot is always released before returning.
func (w *Waiter) Await(ctx context.Context, ch <-chan domain.Reply, timeout time.Duration) (domain.Reply, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		return domain.Reply{}, domain.ErrReplyTimeout
	case <-ctx.Done():
		return domain.Reply{}, ctx.Err()
	}
}

// Run tails the reply stream until ctx is done. The tail is resolved to a
// concrete entry id exactly once, before the loop starts; re-anchoring on a
// symbolic tail after every blocking read would lose replies appended while
// no read was in flight. Replies with no registered waiter are dropped; they
// belong to requests that already timed out or to monitor-initiated closes
// nobody is waiting on.
func (w *Waiter) Run(ctx context.Context) error {
	cursor, err := w.resolveTail(ctx)
	if err != nil {
		return err
	}
	for {
		entries, err := w.log.Read(ctx, w.stream, cursor, 100, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.WarnContext(ctx, "reply stream read failed",
				slog.String("error", err.Error()),
			)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		for _, entry := range entries {
			cursor = entry.ID
			w.deliver(ctx, entry.Payload)
		}
	}
}

// resolveTail retries until the reply stream's last entry id is known.
func (w *Waiter) resolveTail(ctx context.Context) (string, error) {
	for {
		id, err := w.log.LastID(ctx, w.stream)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		w.logger.WarnContext(ctx, "reply stream tail lookup failed",
			slog.String("error", err.Error()),
		)
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (w *Waiter) deliver(ctx context.Context, payload []byte) {
	var reply domain.Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		w.logger.WarnContext(ctx, "malformed reply dropped",
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	ch, ok := w.pending[reply.ID]
	if ok {
		delete(w.pending, reply.ID)
	}
	w.mu.Unlock()

	if ok {
		// Buffered channel of one; never blocks.
		ch <- reply
	}
}
