package engine

import (
	"context"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// evalTriggers decides whether the new quote fires an automatic close for a
// position on the same asset. Thresholds are evaluated in fixed priority
// order (take-profit, then stop-loss, then liquidation) and the first match
// wins, so a position can never fire more than once per tick. Absent
// thresholds are skipped.
//
// Long positions trigger when the bid falls to the threshold; short
// positions trigger when the ask rises to it.
func evalTriggers(p domain.Position, q domain.Quote) (domain.CloseReason, bool) {
	checks := []struct {
		threshold *fixed.Price
		reason    domain.CloseReason
	}{
		{p.TakeProfit, domain.CloseTakeProfit},
		{p.StopLoss, domain.CloseStopLoss},
		{p.Liquidation, domain.CloseLiquidation},
	}

	for _, c := range checks {
		if c.threshold == nil {
			continue
		}
		switch p.Side {
		case domain.SideLong:
			if q.Bid <= *c.threshold {
				return c.reason, true
			}
		case domain.SideShort:
			if q.Ask >= *c.threshold {
				return c.reason, true
			}
		}
	}
	return "", false
}

// scanAsset runs the monitor for one accepted quote update. It walks every
// open position on the quote's asset and closes the ones whose thresholds
// the tick breached. Automatic closes execute at the tick's ask. Must be
// called with e.mu held.
func (e *Engine) scanAsset(ctx context.Context, q domain.Quote) {
	for _, p := range e.state.PositionsForAsset(q.Asset) {
		reason, fired := evalTriggers(p, q)
		if !fired {
			continue
		}
		e.closeAt(ctx, p, reason, q.Ask)
	}
}
