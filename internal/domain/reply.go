package domain

import "github.com/alanyoungcy/tradecore/internal/fixed"

// ReplyStatus is the outcome of an accepted command.
type ReplyStatus string

const (
	StatusOpened            ReplyStatus = "opened"
	StatusClosed            ReplyStatus = "closed"
	StatusInvalidPayload    ReplyStatus = "invalid_payload"
	StatusInvalidOrder      ReplyStatus = "invalid_order"
	StatusPriceNotAvailable ReplyStatus = "price_not_available"
	StatusError             ReplyStatus = "error"
)

// Reply is the engine's answer to a place or close command, published on the
// reply stream keyed by the caller-supplied correlation id (the order id).
// The engine emits exactly one reply per accepted command.
type Reply struct {
	ID         string       `json:"id"`
	Status     ReplyStatus  `json:"status"`
	Asset      string       `json:"asset,omitempty"`
	Side       Side         `json:"side,omitempty"`
	Margin     *fixed.Money `json:"margin,omitempty"`
	Leverage   int64        `json:"leverage,omitempty"`
	OpenPrice  *fixed.Price `json:"openPrice,omitempty"`
	ClosePrice *fixed.Price `json:"closePrice,omitempty"`
	Pnl        *fixed.Money `json:"pnl,omitempty"`
	Reason     CloseReason  `json:"reason,omitempty"`
	Error      string       `json:"error,omitempty"`
}
