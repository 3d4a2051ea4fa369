package domain

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/tradecore/internal/fixed"
)

// CommandKind tags the entries on the engine stream.
type CommandKind string

const (
	KindQuoteUpdate CommandKind = "quote-update"
	KindPlace       CommandKind = "place"
	KindClose       CommandKind = "close"
)

// Command is the closed set of decoded engine stream entries. Exactly the
// three concrete types below implement it.
type Command interface {
	CommandKind() CommandKind
}

// QuoteUpdateCommand replaces the stored quote for an asset. It is a
// fire-and-forget broadcast: no reply is emitted. Time is the exchange trade
// timestamp in Unix milliseconds; zero means the engine stamps receipt time.
type QuoteUpdateCommand struct {
	Asset string      `json:"asset"`
	Ask   fixed.Price `json:"ask"`
	Bid   fixed.Price `json:"bid"`
	Time  int64       `json:"time,omitempty"`
}

func (QuoteUpdateCommand) CommandKind() CommandKind { return KindQuoteUpdate }

// PlaceCommand opens a new position at the current quote. Margin is on the
// money scale and the optional thresholds are on the price scale; conversion
// from human units happened at the gateway.
type PlaceCommand struct {
	OrderID    string       `json:"orderId"`
	UserID     string       `json:"userId"`
	Asset      string       `json:"asset"`
	Side       Side         `json:"side"`
	Margin     fixed.Money  `json:"margin"`
	Leverage   int64        `json:"leverage"`
	TakeProfit *fixed.Price `json:"takeProfit,omitempty"`
	StopLoss   *fixed.Price `json:"stopLoss,omitempty"`
}

func (PlaceCommand) CommandKind() CommandKind { return KindPlace }

// CloseCommand terminates an open position at the current quote.
type CloseCommand struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
}

func (CloseCommand) CommandKind() CommandKind { return KindClose }

// DecodeCommand turns a raw stream entry into a typed command. Unknown kinds
// and malformed payloads are rejected explicitly; nothing falls through
// silently.
func DecodeCommand(kind string, payload []byte) (Command, error) {
	switch CommandKind(kind) {
	case KindQuoteUpdate:
		var cmd QuoteUpdateCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, fmt.Errorf("domain: decode quote-update: %w", err)
		}
		return cmd, nil
	case KindPlace:
		var cmd PlaceCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, fmt.Errorf("domain: decode place: %w", err)
		}
		return cmd, nil
	case KindClose:
		var cmd CloseCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, fmt.Errorf("domain: decode close: %w", err)
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("domain: %w: %q", ErrUnknownCommand, kind)
	}
}

// EncodeCommand marshals a command payload for the engine stream.
func EncodeCommand(cmd Command) (kind string, payload []byte, err error) {
	payload, err = json.Marshal(cmd)
	if err != nil {
		return "", nil, fmt.Errorf("domain: encode %s: %w", cmd.CommandKind(), err)
	}
	return string(cmd.CommandKind()), payload, nil
}
