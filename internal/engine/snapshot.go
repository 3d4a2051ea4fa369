package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// RunSnapshots writes a checkpoint on every interval tick until ctx is
// cancelled. The final shutdown checkpoint is not written here: the consumer
// loop writes it during drain, after the in-flight entry has finished.
func (e *Engine) RunSnapshots(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "snapshotter started",
		slog.Duration("interval", e.cfg.SnapshotInterval),
		slog.Int("retention", e.cfg.CheckpointRetention),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.writeCheckpoint(ctx); err != nil {
				// Checkpoint failures are not fatal; the next tick
				// retries and recovery replays the longer backlog.
				e.logger.ErrorContext(ctx, "checkpoint failed",
					slog.String("error", err.Error()),
				)
				if e.notifier != nil {
					_ = e.notifier.Notify(ctx, "checkpoint_failed",
						"Checkpoint failed", err.Error())
				}
			}
		}
	}
}

// writeCheckpoint takes a consistent copy of {positions, quotes, cursor}
// under the apply mutex, persists it, and prunes checkpoints beyond the
// retention bound. Pruned checkpoints go to the cold-storage archiver when
// one is configured.
func (e *Engine) writeCheckpoint(ctx context.Context) error {
	e.mu.Lock()
	positions, quotes := e.state.Snapshot()
	cp := domain.Checkpoint{
		Positions: positions,
		Quotes:    quotes,
		Cursor:    e.cursor,
		CreatedAt: e.now(),
	}
	e.mu.Unlock()

	if err := e.checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("engine: save checkpoint: %w", err)
	}

	e.logger.DebugContext(ctx, "checkpoint saved",
		slog.String("cursor", cp.Cursor),
		slog.Int("open_positions", len(cp.Positions)),
	)

	pruned, err := e.checkpoints.Prune(ctx, e.cfg.CheckpointRetention)
	if err != nil {
		e.logger.WarnContext(ctx, "checkpoint prune failed",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if e.archiver != nil {
		for _, old := range pruned {
			if err := e.archiver.ArchiveCheckpoint(ctx, old); err != nil {
				e.logger.WarnContext(ctx, "checkpoint archive failed",
					slog.Time("checkpoint_at", old.CreatedAt),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}
