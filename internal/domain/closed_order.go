package domain

import (
	"time"

	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// ClosedOrder is the record handed to the persistence collaborator when a
// position terminates. The engine writes these and never reads them back;
// they exist for account history and audit.
type ClosedOrder struct {
	OrderID    string      `json:"orderId"`
	UserID     string      `json:"userId"`
	Side       Side        `json:"side"`
	Asset      string      `json:"asset"`
	OpenPrice  fixed.Price `json:"openPrice"`
	ClosePrice fixed.Price `json:"closePrice"`
	Margin     fixed.Money `json:"margin"`
	Leverage   int64       `json:"leverage"`
	Reason     CloseReason `json:"closeReason"`
	Pnl        fixed.Money `json:"pnl"`
	OpenedAt   time.Time   `json:"openedAt"`
	ClosedAt   time.Time   `json:"closedAt"`
}
