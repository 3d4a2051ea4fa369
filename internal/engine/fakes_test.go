package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// fakeLog is an in-memory stand-in for the Redis stream event log. Entry ids
// are "<seq>-0" with one sequence per stream, monotonic and comparable like
// real stream ids (which are also assigned per stream).
type fakeLog struct {
	mu      sync.Mutex
	streams map[string][]domain.StreamEntry
	seqs    map[string]int64

	failReads   int // next N reads fail
	failAppends int // next N appends fail
}

func newFakeLog() *fakeLog {
	return &fakeLog{
		streams: make(map[string][]domain.StreamEntry),
		seqs:    make(map[string]int64),
	}
}

func (l *fakeLog) Append(_ context.Context, stream, kind string, payload []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAppends > 0 {
		l.failAppends--
		return "", errors.New("fake log: append unavailable")
	}
	l.seqs[stream]++
	id := fmt.Sprintf("%d-0", l.seqs[stream])
	l.streams[stream] = append(l.streams[stream], domain.StreamEntry{
		ID:      id,
		Kind:    kind,
		Payload: append([]byte(nil), payload...),
	})
	return id, nil
}

func (l *fakeLog) Read(ctx context.Context, stream, after string, count int64, block time.Duration) ([]domain.StreamEntry, error) {
	deadline := time.Now().Add(block)
	for {
		l.mu.Lock()
		if l.failReads > 0 {
			l.failReads--
			l.mu.Unlock()
			return nil, errors.New("fake log: read unavailable")
		}
		var out []domain.StreamEntry
		for _, e := range l.streams[stream] {
			if idAfter(e.ID, after) {
				out = append(out, e)
				if int64(len(out)) >= count {
					break
				}
			}
		}
		l.mu.Unlock()

		if len(out) > 0 || block < 0 || time.Now().After(deadline) {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// idAfter reports whether id sorts strictly after cursor.
func idAfter(id, cursor string) bool {
	if cursor == "" {
		return true
	}
	return seqOf(id) > seqOf(cursor)
}

func (l *fakeLog) LastID(_ context.Context, stream string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.streams[stream]
	if len(entries) == 0 {
		return "0", nil
	}
	return entries[len(entries)-1].ID, nil
}

func seqOf(id string) int64 {
	s, _, _ := strings.Cut(id, "-")
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// replies decodes everything on the reply stream.
func (l *fakeLog) replies(stream string) []domain.Reply {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Reply
	for _, e := range l.streams[stream] {
		var r domain.Reply
		if err := json.Unmarshal(e.Payload, &r); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// fakeArchive records archived closes and enforces the same idempotency the
// Postgres archive has: a second archive of the same order id is a no-op and
// does not credit the balance again.
type fakeArchive struct {
	mu       sync.Mutex
	orders   []domain.ClosedOrder
	credits  map[string]fixed.Money
	seen     map[string]bool
	failNext int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		credits: make(map[string]fixed.Money),
		seen:    make(map[string]bool),
	}
}

func (a *fakeArchive) ArchiveClose(_ context.Context, order domain.ClosedOrder, credit fixed.Money) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext > 0 {
		a.failNext--
		return errors.New("fake archive: unavailable")
	}
	if a.seen[order.OrderID] {
		return nil
	}
	a.seen[order.OrderID] = true
	a.orders = append(a.orders, order)
	a.credits[order.UserID] += credit
	return nil
}

func (a *fakeArchive) ListByUser(context.Context, string, time.Time) ([]domain.ClosedOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ClosedOrder(nil), a.orders...), nil
}

// fakeCheckpoints keeps checkpoints in memory, newest last.
type fakeCheckpoints struct {
	mu    sync.Mutex
	saved []domain.Checkpoint
}

func (s *fakeCheckpoints) Save(_ context.Context, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, cp)
	return nil
}

func (s *fakeCheckpoints) LoadLatest(context.Context) (domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return domain.Checkpoint{}, domain.ErrNoCheckpoint
	}
	return s.saved[len(s.saved)-1], nil
}

func (s *fakeCheckpoints) Prune(_ context.Context, keep int) ([]domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) <= keep {
		return nil, nil
	}
	pruned := append([]domain.Checkpoint(nil), s.saved[:len(s.saved)-keep]...)
	s.saved = append([]domain.Checkpoint(nil), s.saved[len(s.saved)-keep:]...)
	return pruned, nil
}
