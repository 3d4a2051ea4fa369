package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// CheckpointStore implements domain.CheckpointStore using PostgreSQL. State
// maps are stored as JSONB columns.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a CheckpointStore backed by the given pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Save persists a checkpoint.
func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	positions, err := json.Marshal(cp.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal checkpoint positions: %w", err)
	}
	quotes, err := json.Marshal(cp.Quotes)
	if err != nil {
		return fmt.Errorf("postgres: marshal checkpoint quotes: %w", err)
	}

	const insert = `
		INSERT INTO engine_checkpoints (positions, quotes, cursor, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, insert, positions, quotes, cp.Cursor, cp.CreatedAt); err != nil {
		return fmt.Errorf("postgres: save checkpoint: %w", err)
	}
	return nil
}

// LoadLatest returns the most recent checkpoint, or domain.ErrNoCheckpoint
// when none exists.
func (s *CheckpointStore) LoadLatest(ctx context.Context) (domain.Checkpoint, error) {
	const query = `
		SELECT positions, quotes, cursor, created_at
		FROM engine_checkpoints
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var (
		out               domain.Checkpoint
		positions, quotes []byte
	)
	row := s.pool.QueryRow(ctx, query)
	if err := row.Scan(&positions, &quotes, &out.Cursor, &out.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Checkpoint{}, domain.ErrNoCheckpoint
		}
		return domain.Checkpoint{}, fmt.Errorf("postgres: load latest checkpoint: %w", err)
	}
	if err := json.Unmarshal(positions, &out.Positions); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("postgres: decode checkpoint positions: %w", err)
	}
	if err := json.Unmarshal(quotes, &out.Quotes); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("postgres: decode checkpoint quotes: %w", err)
	}
	return out, nil
}

// Prune deletes all but the keep most recent checkpoints and returns the
// pruned ones, oldest first.
func (s *CheckpointStore) Prune(ctx context.Context, keep int) ([]domain.Checkpoint, error) {
	if keep < 0 {
		keep = 0
	}

	const del = `
		DELETE FROM engine_checkpoints
		WHERE id NOT IN (
			SELECT id FROM engine_checkpoints
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		)
		RETURNING positions, quotes, cursor, created_at`

	rows, err := s.pool.Query(ctx, del, keep)
	if err != nil {
		return nil, fmt.Errorf("postgres: prune checkpoints: %w", err)
	}
	defer rows.Close()

	var pruned []domain.Checkpoint
	for rows.Next() {
		var (
			cp                domain.Checkpoint
			positions, quotes []byte
		)
		if err := rows.Scan(&positions, &quotes, &cp.Cursor, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan pruned checkpoint: %w", err)
		}
		if err := json.Unmarshal(positions, &cp.Positions); err != nil {
			return nil, fmt.Errorf("postgres: decode pruned positions: %w", err)
		}
		if err := json.Unmarshal(quotes, &cp.Quotes); err != nil {
			return nil, fmt.Errorf("postgres: decode pruned quotes: %w", err)
		}
		pruned = append(pruned, cp)
	}
	return pruned, rows.Err()
}

var _ domain.CheckpointStore = (*CheckpointStore)(nil)
