// Package domain defines the core types of the trading engine (positions,
// quotes, commands, replies, checkpoints) and the interfaces its collaborators
// implement. Concrete implementations live in internal/cache/redis and
// internal/store/postgres.
package domain

import (
	"time"

	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// Side is the direction of a leveraged position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseTakeProfit  CloseReason = "take_profit"
	CloseStopLoss    CloseReason = "stop_loss"
	CloseLiquidation CloseReason = "liquidation"
	CloseManual      CloseReason = "manual"
)

// Leverages is the closed set of leverage multipliers a position may use.
var Leverages = []int64{1, 5, 10, 20, 50, 100}

// ValidLeverage reports whether l is one of the supported multipliers.
func ValidLeverage(l int64) bool {
	for _, v := range Leverages {
		if v == l {
			return true
		}
	}
	return false
}

// Position is an open leveraged trade. A position is keyed by OrderID, which
// is unique among open positions; once closed it is removed from the open set
// and the id is never reused.
type Position struct {
	OrderID     string       `json:"orderId"`
	UserID      string       `json:"userId"`
	Side        Side         `json:"side"`
	Asset       string       `json:"asset"`
	Margin      fixed.Money  `json:"margin"`
	Leverage    int64        `json:"leverage"`
	OpenPrice   fixed.Price  `json:"openPrice"`
	OpenedAt    time.Time    `json:"openedAt"`
	TakeProfit  *fixed.Price `json:"takeProfit,omitempty"`
	StopLoss    *fixed.Price `json:"stopLoss,omitempty"`
	Liquidation *fixed.Price `json:"liquidation,omitempty"`
}

// Clone returns a deep copy of the position, including its optional
// threshold pointers, so snapshot state cannot alias live state.
func (p Position) Clone() Position {
	c := p
	c.TakeProfit = clonePrice(p.TakeProfit)
	c.StopLoss = clonePrice(p.StopLoss)
	c.Liquidation = clonePrice(p.Liquidation)
	return c
}

func clonePrice(p *fixed.Price) *fixed.Price {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
