package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// OrderArchive implements domain.OrderArchive using PostgreSQL.
type OrderArchive struct {
	pool *pgxpool.Pool
}

// NewOrderArchive creates an OrderArchive backed by the given connection pool.
func NewOrderArchive(pool *pgxpool.Pool) *OrderArchive {
	return &OrderArchive{pool: pool}
}

// ArchiveClose writes the closed-order record and credits the user's balance
// in a single transaction. The record insert is keyed on order_id with
// ON CONFLICT DO NOTHING: when recovery replays a close that already landed,
// the whole call becomes a no-op and the balance is not credited twice.
func (a *OrderArchive) ArchiveClose(ctx context.Context, order domain.ClosedOrder, credit fixed.Money) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin archive close %s: %w", order.OrderID, err)
	}
	defer tx.Rollback(ctx)

	const insert = `
		INSERT INTO closed_orders (
			order_id, user_id, side, asset,
			open_price, close_price, margin, leverage,
			close_reason, pnl, opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12
		)
		ON CONFLICT (order_id) DO NOTHING`

	tag, err := tx.Exec(ctx, insert,
		order.OrderID, order.UserID, string(order.Side), order.Asset,
		int64(order.OpenPrice), int64(order.ClosePrice), int64(order.Margin), order.Leverage,
		string(order.Reason), int64(order.Pnl), order.OpenedAt, order.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert closed order %s: %w", order.OrderID, err)
	}

	if tag.RowsAffected() > 0 {
		const bump = `UPDATE users SET balance = balance + $2 WHERE id = $1`
		if _, err := tx.Exec(ctx, bump, order.UserID, int64(credit)); err != nil {
			return fmt.Errorf("postgres: credit balance for %s: %w", order.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit archive close %s: %w", order.OrderID, err)
	}
	return nil
}

// ListByUser returns the user's closed orders since the given time, newest
// first.
func (a *OrderArchive) ListByUser(ctx context.Context, userID string, since time.Time) ([]domain.ClosedOrder, error) {
	const query = `
		SELECT order_id, user_id, side, asset,
		       open_price, close_price, margin, leverage,
		       close_reason, pnl, opened_at, closed_at
		FROM closed_orders
		WHERE user_id = $1 AND closed_at >= $2
		ORDER BY closed_at DESC`

	rows, err := a.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed orders for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.ClosedOrder
	for rows.Next() {
		var (
			o                          domain.ClosedOrder
			side, reason               string
			openP, closeP, margin, pnl int64
		)
		if err := rows.Scan(
			&o.OrderID, &o.UserID, &side, &o.Asset,
			&openP, &closeP, &margin, &o.Leverage,
			&reason, &pnl, &o.OpenedAt, &o.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan closed order: %w", err)
		}
		o.Side = domain.Side(side)
		o.Reason = domain.CloseReason(reason)
		o.OpenPrice = fixed.Price(openP)
		o.ClosePrice = fixed.Price(closeP)
		o.Margin = fixed.Money(margin)
		o.Pnl = fixed.Money(pnl)
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ domain.OrderArchive = (*OrderArchive)(nil)
