package domain

import (
	"time"

	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// Quote is the current ask/bid reference price for an asset. Quotes are
// replaced wholesale on every update, never merged field by field. The engine
// trusts upstream ordering of ask and bid.
type Quote struct {
	Asset string      `json:"asset"`
	Ask   fixed.Price `json:"ask"`
	Bid   fixed.Price `json:"bid"`
	At    time.Time   `json:"at"`
}
