package domain

import (
	"context"
	"time"

	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// StreamEntry is a single entry read from the event log. ID is the log's
// monotonic per-entry identifier and doubles as the engine cursor.
type StreamEntry struct {
	ID      string
	Kind    string
	Payload []byte
}

// EventLog is the ordered, durable, multi-subscriber append log the engine
// consumes commands from and publishes replies to.
type EventLog interface {
	// Append adds an entry to the stream and returns its assigned id.
	Append(ctx context.Context, stream, kind string, payload []byte) (string, error)

	// Read returns up to count entries with ids strictly greater than
	// after. block > 0 waits up to that long for new entries; block < 0
	// returns immediately. An empty result is not an error.
	Read(ctx context.Context, stream, after string, count int64, block time.Duration) ([]StreamEntry, error)

	// LastID returns the id of the stream's newest entry, or "0" when
	// the stream is empty. Tail consumers resolve it once at startup so
	// every subsequent Read uses a concrete cursor; re-anchoring on a
	// symbolic tail between blocking reads would skip entries appended
	// in the gap.
	LastID(ctx context.Context, stream string) (string, error)
}

// Bus is ephemeral fan-out messaging, used to broadcast quotes to the public
// websocket server.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter restricts how often an operation may run for a given key.
type RateLimiter interface {
	// Allow reports whether one more request for key fits in the window,
	// counting it when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is allowed or ctx is done.
	Wait(ctx context.Context, key string) error
}

// OrderArchive is the persistence sink for terminated positions. ArchiveClose
// writes the closed-order record and credits the user's balance with
// margin + pnl as one atomic unit; if the record was already archived (replay
// after a crash) the call is a no-op and the balance is not credited twice.
type OrderArchive interface {
	ArchiveClose(ctx context.Context, order ClosedOrder, credit fixed.Money) error
	ListByUser(ctx context.Context, userID string, since time.Time) ([]ClosedOrder, error)
}

// CheckpointStore persists engine checkpoints.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error

	// LoadLatest returns the most recent checkpoint, or ErrNoCheckpoint
	// when none has been written yet.
	LoadLatest(ctx context.Context) (Checkpoint, error)

	// Prune deletes all but the keep most recent checkpoints and returns
	// the pruned ones so the caller can archive them elsewhere.
	Prune(ctx context.Context, keep int) ([]Checkpoint, error)
}

// CheckpointArchiver receives checkpoints evicted by pruning. Optional cold
// storage; pruning proceeds even when archiving fails.
type CheckpointArchiver interface {
	ArchiveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// User is a gateway account. Balance is on the money scale.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Balance      fixed.Money
	CreatedAt    time.Time
}

// UserStore persists gateway accounts and balances. Balance debits happen at
// the gateway before a place command is submitted; credits happen inside
// OrderArchive.ArchiveClose.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string, initial fixed.Money) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)

	// DebitBalance subtracts amount from the user's balance, failing with
	// ErrInsufficient when the balance would go negative.
	DebitBalance(ctx context.Context, id string, amount fixed.Money) error

	// CreditBalance adds amount back to the user's balance. The gateway
	// uses it to refund the margin when the engine rejects a place.
	CreditBalance(ctx context.Context, id string, amount fixed.Money) error
}
