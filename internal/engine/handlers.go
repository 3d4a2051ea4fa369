package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// apply decodes one stream entry and dispatches it to the matching handler,
// then advances the cursor. The whole step runs under the engine mutex: by
// the time the next entry is read, every effect of this one (state mutation,
// reply emission, archive write) is complete.
func (e *Engine) apply(ctx context.Context, entry domain.StreamEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd, err := domain.DecodeCommand(entry.Kind, entry.Payload)
	if err != nil {
		// Unknown or malformed entries are rejected explicitly but must
		// not stall the stream.
		e.logger.WarnContext(ctx, "rejecting undecodable entry",
			slog.String("entry_id", entry.ID),
			slog.String("kind", entry.Kind),
			slog.String("error", err.Error()),
		)
	} else {
		switch c := cmd.(type) {
		case domain.QuoteUpdateCommand:
			e.handleQuoteUpdate(ctx, c)
		case domain.PlaceCommand:
			e.handlePlace(ctx, c)
		case domain.CloseCommand:
			e.handleClose(ctx, c)
		}
	}

	e.cursor = entry.ID
}

// handleQuoteUpdate replaces the stored quote wholesale and runs the monitor
// for that asset. Quote updates are fire-and-forget: no reply is emitted.
func (e *Engine) handleQuoteUpdate(ctx context.Context, cmd domain.QuoteUpdateCommand) {
	if cmd.Asset == "" || cmd.Ask < 0 || cmd.Bid < 0 {
		e.logger.WarnContext(ctx, "dropping invalid quote update",
			slog.String("asset", cmd.Asset),
			slog.Int64("ask", int64(cmd.Ask)),
			slog.Int64("bid", int64(cmd.Bid)),
		)
		return
	}

	q := domain.Quote{
		Asset: cmd.Asset,
		Ask:   cmd.Ask,
		Bid:   cmd.Bid,
		At:    e.now(),
	}
	if cmd.Time > 0 {
		q.At = time.UnixMilli(cmd.Time)
	}
	e.state.SetQuote(q)

	e.scanAsset(ctx, q)
}

// handlePlace opens a new position at the current quote: the ask for a long,
// the bid for a short. Exactly one reply is emitted.
func (e *Engine) handlePlace(ctx context.Context, cmd domain.PlaceCommand) {
	if cmd.OrderID == "" || cmd.UserID == "" || cmd.Asset == "" ||
		!cmd.Side.Valid() || cmd.Margin <= 0 || !domain.ValidLeverage(cmd.Leverage) {
		e.emitReply(ctx, domain.Reply{
			ID:     cmd.OrderID,
			Status: domain.StatusInvalidPayload,
		})
		return
	}

	quote, ok := e.state.Quote(cmd.Asset)
	if !ok {
		e.emitReply(ctx, domain.Reply{
			ID:     cmd.OrderID,
			Status: domain.StatusPriceNotAvailable,
			Asset:  cmd.Asset,
		})
		return
	}

	openPrice := quote.Ask
	if cmd.Side == domain.SideShort {
		openPrice = quote.Bid
	}

	p := domain.Position{
		OrderID:    cmd.OrderID,
		UserID:     cmd.UserID,
		Side:       cmd.Side,
		Asset:      cmd.Asset,
		Margin:     cmd.Margin,
		Leverage:   cmd.Leverage,
		OpenPrice:  openPrice,
		OpenedAt:   e.now(),
		TakeProfit: cmd.TakeProfit,
		StopLoss:   cmd.StopLoss,
	}
	p.Liquidation = liquidationPrice(cmd.Side, openPrice, cmd.Leverage)

	// Re-placing an existing order id overwrites the open position, so a
	// re-delivered place converges instead of multiplying.
	e.state.PutPosition(p)

	margin := cmd.Margin
	e.emitReply(ctx, domain.Reply{
		ID:        cmd.OrderID,
		Status:    domain.StatusOpened,
		Asset:     cmd.Asset,
		Side:      cmd.Side,
		Margin:    &margin,
		Leverage:  cmd.Leverage,
		OpenPrice: &openPrice,
	})
}

// handleClose terminates a position on explicit user request, executing at
// the side-appropriate quote: the bid for a long, the ask for a short. A
// caller who is not the position's owner gets the same invalid_order as an
// unknown id, so order ids leak nothing.
func (e *Engine) handleClose(ctx context.Context, cmd domain.CloseCommand) {
	p, ok := e.state.Position(cmd.OrderID)
	if !ok || cmd.UserID != p.UserID {
		e.emitReply(ctx, domain.Reply{
			ID:     cmd.OrderID,
			Status: domain.StatusInvalidOrder,
		})
		return
	}

	quote, ok := e.state.Quote(p.Asset)
	if !ok {
		e.emitReply(ctx, domain.Reply{
			ID:     cmd.OrderID,
			Status: domain.StatusPriceNotAvailable,
			Asset:  p.Asset,
		})
		return
	}

	closePrice := quote.Bid
	if p.Side == domain.SideShort {
		closePrice = quote.Ask
	}

	e.closeAt(ctx, p, domain.CloseManual, closePrice)
}

// closeAt is the single path that terminates a position, shared by manual
// closes and the monitor. The archive write (closed-order record plus
// balance credit of margin+pnl, one atomic unit) must succeed before the
// position leaves the open set; on failure the position stays open for
// retry and the reply reports the error. Must be called with e.mu held.
func (e *Engine) closeAt(ctx context.Context, p domain.Position, reason domain.CloseReason, closePrice fixed.Price) {
	pnl := fixed.ComputePnL(p.Side == domain.SideLong, p.OpenPrice, closePrice, p.Margin, p.Leverage)

	record := domain.ClosedOrder{
		OrderID:    p.OrderID,
		UserID:     p.UserID,
		Side:       p.Side,
		Asset:      p.Asset,
		OpenPrice:  p.OpenPrice,
		ClosePrice: closePrice,
		Margin:     p.Margin,
		Leverage:   p.Leverage,
		Reason:     reason,
		Pnl:        pnl,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   e.now(),
	}

	if err := e.archive.ArchiveClose(ctx, record, p.Margin+pnl); err != nil {
		e.logger.ErrorContext(ctx, "close persistence failed, position stays open",
			slog.String("order_id", p.OrderID),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
		e.emitReply(ctx, domain.Reply{
			ID:     p.OrderID,
			Status: domain.StatusError,
			Reason: reason,
			Error:  "close persistence failed",
		})
		return
	}

	e.state.RemovePosition(p.OrderID)

	e.logger.InfoContext(ctx, "position closed",
		slog.String("order_id", p.OrderID),
		slog.String("user_id", p.UserID),
		slog.String("asset", p.Asset),
		slog.String("reason", string(reason)),
		slog.String("pnl", pnl.String()),
	)

	e.emitReply(ctx, domain.Reply{
		ID:         p.OrderID,
		Status:     domain.StatusClosed,
		Asset:      p.Asset,
		Side:       p.Side,
		ClosePrice: &closePrice,
		Pnl:        &pnl,
		Reason:     reason,
	})

	if e.notifier != nil && reason == domain.CloseLiquidation {
		title := fmt.Sprintf("Liquidation: %s %s", p.Asset, p.Side)
		msg := fmt.Sprintf("order %s liquidated at %s, pnl %s", p.OrderID, closePrice, pnl)
		if err := e.notifier.Notify(ctx, "liquidation", title, msg); err != nil {
			e.logger.WarnContext(ctx, "liquidation notification failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// emitReply appends exactly one reply entry to the reply stream. Emission is
// retried a few times so transient transport errors do not silently drop a
// reply; the caller-side waiter owns its own timeout.
func (e *Engine) emitReply(ctx context.Context, r domain.Reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		e.logger.ErrorContext(ctx, "marshal reply failed",
			slog.String("id", r.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	const attempts = 3
	for i := 0; i < attempts; i++ {
		_, err = e.log.Append(ctx, e.cfg.ReplyStream, "reply", payload)
		if err == nil {
			return
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				i = attempts
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	e.logger.ErrorContext(ctx, "reply emission failed",
		slog.String("id", r.ID),
		slog.String("status", string(r.Status)),
		slog.String("error", err.Error()),
	)
}

// liquidationPrice is the price at which the adverse move consumes the whole
// margin: a relative move of 1/leverage from the open price.
func liquidationPrice(side domain.Side, openPrice fixed.Price, leverage int64) *fixed.Price {
	step := fixed.Price(int64(openPrice) / leverage)
	var liq fixed.Price
	if side == domain.SideLong {
		liq = openPrice - step
	} else {
		liq = openPrice + step
	}
	return &liq
}
