// Package engine implements the leveraged-trading position engine: the
// event-consumption loop over the command stream, the position/quote state
// machine, the auto-close monitor, and checkpoint-based crash recovery.
//
// All state mutation happens on the consumer loop's apply path under a single
// mutex that covers the whole apply step (decode, dispatch, cursor advance).
// The snapshotter takes the same mutex briefly to deep-copy state, so a
// checkpoint can never observe a half-applied event.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/notify"
)

// Config holds the engine's stream names and tuning knobs.
type Config struct {
	// CommandStream is the event-log stream the engine consumes.
	CommandStream string

	// ReplyStream receives one reply entry per accepted command.
	ReplyStream string

	// ReadBatch bounds how many entries a single read returns.
	ReadBatch int64

	// ReadBlock is how long a live read waits for new entries before the
	// loop re-checks for shutdown.
	ReadBlock time.Duration

	// SnapshotInterval is how often a checkpoint is written. The engine
	// always writes one more checkpoint during shutdown drain.
	SnapshotInterval time.Duration

	// CheckpointRetention bounds how many recent checkpoints are kept.
	CheckpointRetention int
}

// Defaults fills zero-valued fields with production defaults.
func (c Config) withDefaults() Config {
	if c.CommandStream == "" {
		c.CommandStream = "engine-stream"
	}
	if c.ReplyStream == "" {
		c.ReplyStream = "callback-queue"
	}
	if c.ReadBatch <= 0 {
		c.ReadBatch = 100
	}
	if c.ReadBlock <= 0 {
		c.ReadBlock = 5 * time.Second
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 30 * time.Second
	}
	if c.CheckpointRetention <= 0 {
		c.CheckpointRetention = 10
	}
	return c
}

// Engine is the authoritative in-memory trading engine.
type Engine struct {
	cfg Config

	log         domain.EventLog
	archive     domain.OrderArchive
	checkpoints domain.CheckpointStore
	archiver    domain.CheckpointArchiver // optional cold storage for pruned checkpoints
	notifier    *notify.Notifier          // optional operator alerts
	logger      *slog.Logger

	// mu guards state and cursor together. Handlers, the cursor advance,
	// and checkpoint copies all run under it.
	mu     sync.Mutex
	state  *StateStore
	cursor string

	phase phaseTracker

	now func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCheckpointArchiver attaches cold storage for pruned checkpoints.
func WithCheckpointArchiver(a domain.CheckpointArchiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithNotifier attaches operator notifications for liquidations and
// persistence failures.
func WithNotifier(n *notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. The event log, order archive, and checkpoint store
// are required collaborators.
func New(
	cfg Config,
	log domain.EventLog,
	archive domain.OrderArchive,
	checkpoints domain.CheckpointStore,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		cfg:         cfg.withDefaults(),
		log:         log,
		archive:     archive,
		checkpoints: checkpoints,
		logger:      logger.With(slog.String("component", "engine")),
		state:       NewStateStore(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cursor returns the id of the last fully applied entry.
func (e *Engine) Cursor() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// OpenPosition returns a copy of the open position with the given order id.
func (e *Engine) OpenPosition(orderID string) (domain.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.state.Position(orderID)
	if !ok {
		return domain.Position{}, false
	}
	return p.Clone(), true
}

// OpenPositionCount returns the number of open positions.
func (e *Engine) OpenPositionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.OpenCount()
}

// CurrentQuote returns the stored quote for an asset.
func (e *Engine) CurrentQuote(asset string) (domain.Quote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Quote(asset)
}
