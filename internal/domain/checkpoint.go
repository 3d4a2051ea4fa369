package domain

import "time"

// Checkpoint is a point-in-time copy of the full engine state plus the log
// cursor of the last fully applied entry. It is written on a fixed interval
// and at shutdown, and read once at boot to seed recovery.
type Checkpoint struct {
	// Positions holds every open position keyed by order id.
	Positions map[string]Position `json:"positions"`

	// Quotes holds the current quote for every asset seen so far.
	Quotes map[string]Quote `json:"quotes"`

	// Cursor is the stream id of the last entry fully applied to this
	// state. Recovery replays entries strictly after it. Empty means the
	// engine had not applied any entry yet.
	Cursor string `json:"cursor"`

	CreatedAt time.Time `json:"createdAt"`
}
