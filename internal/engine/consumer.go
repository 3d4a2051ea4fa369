package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// Phase is the consumer loop's lifecycle state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRecovering
	PhaseLive
	PhaseDraining
	PhaseStopped
)

// String returns the phase name for logs and status endpoints.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecovering:
		return "recovering"
	case PhaseLive:
		return "live"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type phaseTracker struct {
	v atomic.Int32
}

func (t *phaseTracker) set(p Phase) { t.v.Store(int32(p)) }
func (t *phaseTracker) get() Phase  { return Phase(t.v.Load()) }

// Phase returns the consumer loop's current lifecycle state.
func (e *Engine) Phase() Phase { return e.phase.get() }

const (
	// readRetryMin/Max bound the backoff applied when the event log is
	// unreachable. The loop never exits on a transport error: it retries
	// the read at the same cursor so no entry is skipped or reordered.
	readRetryMin = 250 * time.Millisecond
	readRetryMax = 5 * time.Second
)

// Run executes the consumer loop until ctx is cancelled: recover from the
// latest checkpoint, replay the backlog, then consume live. On cancellation
// it finishes the in-flight entry, writes a final checkpoint, and returns.
//
// The cursor rule is deterministic: the cursor is always the id of the last
// entry whose handler fully completed, and every read asks for ids strictly
// greater than it. Recovery and live reads share one cursor variable that
// only this goroutine writes, so there is no replay/live handoff gap and no
// entry is ever applied twice within a single process lifetime.
func (e *Engine) Run(ctx context.Context) error {
	e.phase.set(PhaseRecovering)
	defer e.phase.set(PhaseStopped)

	if err := e.recover(ctx); err != nil {
		return err
	}

	e.phase.set(PhaseLive)
	e.logger.InfoContext(ctx, "engine live",
		slog.String("cursor", e.Cursor()),
	)

	retry := readRetryMin
	for {
		if ctx.Err() != nil {
			return e.drain(ctx)
		}

		entries, err := e.log.Read(ctx, e.cfg.CommandStream, e.Cursor(), e.cfg.ReadBatch, e.cfg.ReadBlock)
		if err != nil {
			if ctx.Err() != nil {
				return e.drain(ctx)
			}
			e.logger.WarnContext(ctx, "event log read failed, backing off",
				slog.String("cursor", e.Cursor()),
				slog.Duration("retry_in", retry),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return e.drain(ctx)
			case <-time.After(retry):
			}
			if retry *= 2; retry > readRetryMax {
				retry = readRetryMax
			}
			continue
		}
		retry = readRetryMin

		for _, entry := range entries {
			e.apply(ctx, entry)
		}
	}
}

// recover seeds state from the most recent checkpoint and replays every
// entry strictly after the checkpointed cursor in bounded batches until a
// read comes back empty. It must finish before live consumption starts so no
// command is observed against a state that already replayed it. With no
// checkpoint at all the engine anchors at the log's current last entry id:
// the tail is resolved exactly once, so a blocking read that times out can
// never skip entries appended before the next read starts.
func (e *Engine) recover(ctx context.Context) error {
	cp, err := e.checkpoints.LoadLatest(ctx)
	switch {
	case errors.Is(err, domain.ErrNoCheckpoint):
		tail, err := e.log.LastID(ctx, e.cfg.CommandStream)
		if err != nil {
			return fmt.Errorf("engine: resolve log tail: %w", err)
		}
		e.mu.Lock()
		e.cursor = tail
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "no checkpoint found, starting from log tail",
			slog.String("cursor", tail),
		)
		return nil
	case err != nil:
		return err
	}

	e.mu.Lock()
	e.state.Seed(cp)
	// An empty checkpoint cursor means the checkpointed state had applied
	// nothing, so replay starts from the very beginning of the stream.
	e.cursor = cp.Cursor
	if e.cursor == "" {
		e.cursor = "0"
	}
	restored := e.state.OpenCount()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "checkpoint restored",
		slog.String("cursor", cp.Cursor),
		slog.Int("open_positions", restored),
		slog.Time("checkpoint_at", cp.CreatedAt),
	)

	replayed := 0
	retry := readRetryMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := e.log.Read(ctx, e.cfg.CommandStream, e.Cursor(), e.cfg.ReadBatch, -1)
		if err != nil {
			e.logger.WarnContext(ctx, "replay read failed, backing off",
				slog.String("cursor", e.Cursor()),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retry):
			}
			if retry *= 2; retry > readRetryMax {
				retry = readRetryMax
			}
			continue
		}
		retry = readRetryMin

		if len(entries) == 0 {
			break
		}
		for _, entry := range entries {
			e.apply(ctx, entry)
			replayed++
		}
	}

	e.logger.InfoContext(ctx, "replay complete",
		slog.Int("entries", replayed),
		slog.String("cursor", e.Cursor()),
	)
	return nil
}

// drain is the ordered shutdown path: reads have already stopped and the
// in-flight entry has finished (apply is synchronous), so all that remains
// is the final checkpoint. It runs on a fresh context because the loop's
// context is already cancelled.
func (e *Engine) drain(ctx context.Context) error {
	e.phase.set(PhaseDraining)
	e.logger.Info("draining: writing final checkpoint")

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := e.writeCheckpoint(finalCtx); err != nil {
		e.logger.Error("final checkpoint failed",
			slog.String("error", err.Error()),
		)
		return err
	}
	return ctx.Err()
}
