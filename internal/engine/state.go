package engine

import (
	"github.com/alanyoungcy/tradecore/internal/domain"
)

// StateStore owns the live maps of open positions and current quotes. It is
// deliberately not safe for concurrent use: every mutation happens on the
// consumer loop's apply path under the engine mutex, which is the
// single-writer rule the rest of the engine is built on.
type StateStore struct {
	positions map[string]domain.Position
	quotes    map[string]domain.Quote
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{
		positions: make(map[string]domain.Position),
		quotes:    make(map[string]domain.Quote),
	}
}

// Seed replaces the entire state with the contents of a checkpoint.
func (s *StateStore) Seed(cp domain.Checkpoint) {
	s.positions = make(map[string]domain.Position, len(cp.Positions))
	for id, p := range cp.Positions {
		s.positions[id] = p.Clone()
	}
	s.quotes = make(map[string]domain.Quote, len(cp.Quotes))
	for asset, q := range cp.Quotes {
		s.quotes[asset] = q
	}
}

// Quote returns the current quote for an asset.
func (s *StateStore) Quote(asset string) (domain.Quote, bool) {
	q, ok := s.quotes[asset]
	return q, ok
}

// SetQuote replaces the stored quote for q.Asset wholesale.
func (s *StateStore) SetQuote(q domain.Quote) {
	s.quotes[q.Asset] = q
}

// Position returns the open position with the given order id.
func (s *StateStore) Position(orderID string) (domain.Position, bool) {
	p, ok := s.positions[orderID]
	return p, ok
}

// PutPosition inserts or overwrites an open position keyed by its order id.
func (s *StateStore) PutPosition(p domain.Position) {
	s.positions[p.OrderID] = p
}

// RemovePosition deletes an open position. Removing an absent id is a no-op,
// which is what makes re-delivered closes idempotent.
func (s *StateStore) RemovePosition(orderID string) {
	delete(s.positions, orderID)
}

// PositionsForAsset returns every open position on the given asset.
func (s *StateStore) PositionsForAsset(asset string) []domain.Position {
	var out []domain.Position
	for _, p := range s.positions {
		if p.Asset == asset {
			out = append(out, p)
		}
	}
	return out
}

// OpenCount returns the number of open positions.
func (s *StateStore) OpenCount() int {
	return len(s.positions)
}

// Snapshot returns a deep, point-in-time copy of the full state. The copy
// shares nothing with the live maps, so the snapshotter can serialize it
// while the writer keeps mutating.
func (s *StateStore) Snapshot() (map[string]domain.Position, map[string]domain.Quote) {
	positions := make(map[string]domain.Position, len(s.positions))
	for id, p := range s.positions {
		positions[id] = p.Clone()
	}
	quotes := make(map[string]domain.Quote, len(s.quotes))
	for asset, q := range s.quotes {
		quotes[asset] = q
	}
	return positions, quotes
}
