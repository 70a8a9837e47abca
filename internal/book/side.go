// Package book implements the per-(venue, ticker) order-book engine: a
// two-sided, bounded-depth state machine (spec.md §4.4). Updates are applied
// in arrival order; their timestamps are not checked.
package book

import (
	"sort"

	"github.com/arbiq/marketfeed/internal/canon"
)

// Side holds one side (bids or asks) of an order book: an unordered
// price->quantity mapping, the ordered set of present prices, and a cached
// best price. A level with quantity 0 is never represented.
type Side struct {
	side     canon.Side
	maxDepth int

	levels  map[canon.Price]canon.Quantity
	ordered []canon.Price // kept sorted ascending; best is the last (Buy) or first (Sell)
	best    canon.Price
	hasBest bool
}

// NewSide creates an empty Side with the given depth cap.
func NewSide(side canon.Side, maxDepth int) *Side {
	return &Side{
		side:     side,
		maxDepth: maxDepth,
		levels:   make(map[canon.Price]canon.Quantity, maxDepth),
	}
}

// Side returns the Buy/Sell tag.
func (s *Side) Side() canon.Side { return s.side }

// Len returns the number of distinct price levels currently present.
func (s *Side) Len() int { return len(s.ordered) }

// Best returns the best price and whether the side is non-empty.
func (s *Side) Best() (canon.Price, bool) { return s.best, s.hasBest }

// Quantity returns the resting quantity at price, or (0, false) if absent.
func (s *Side) Quantity(price canon.Price) (canon.Quantity, bool) {
	q, ok := s.levels[price]
	return q, ok
}

// Prices returns up to depth prices ordered from best to worst.
func (s *Side) Prices(depth int) []canon.Price {
	n := len(s.ordered)
	if depth < n {
		n = depth
	}
	out := make([]canon.Price, n)
	if s.side == canon.Buy {
		// ordered is ascending; best (max) is at the tail.
		for i := 0; i < n; i++ {
			out[i] = s.ordered[len(s.ordered)-1-i]
		}
	} else {
		for i := 0; i < n; i++ {
			out[i] = s.ordered[i]
		}
	}
	return out
}

// Apply runs the update algorithm from spec.md §4.4 step 1/2 on a single
// (price, quantity) delta.
func (s *Side) Apply(price canon.Price, qty canon.Quantity) {
	if qty == 0 {
		s.remove(price)
		return
	}
	s.upsert(price, qty)
}

func (s *Side) remove(price canon.Price) {
	if _, ok := s.levels[price]; !ok {
		return
	}
	delete(s.levels, price)
	idx := s.search(price)
	if idx < len(s.ordered) && s.ordered[idx] == price {
		s.ordered = append(s.ordered[:idx], s.ordered[idx+1:]...)
	}
	if s.hasBest && s.best == price {
		s.recomputeBest()
	}
}

func (s *Side) upsert(price canon.Price, qty canon.Quantity) {
	_, existed := s.levels[price]
	s.levels[price] = qty
	if !existed {
		idx := s.search(price)
		s.ordered = append(s.ordered, 0)
		copy(s.ordered[idx+1:], s.ordered[idx:])
		s.ordered[idx] = price
		s.evictOverflow()
	}
	s.extendBest(price)
}

// search returns the index of the first element >= price in the ascending
// ordered slice (sort.Search binary search).
func (s *Side) search(price canon.Price) int {
	return sort.Search(len(s.ordered), func(i int) bool { return s.ordered[i] >= price })
}

// evictOverflow drops the worst price repeatedly until the depth cap holds.
// For Buy the worst is the smallest (head); for Sell it is the largest
// (tail). Eviction order is deterministic by the ordered slice's layout.
func (s *Side) evictOverflow() {
	for len(s.ordered) > s.maxDepth {
		var evicted canon.Price
		if s.side == canon.Buy {
			evicted = s.ordered[0]
			s.ordered = s.ordered[1:]
		} else {
			evicted = s.ordered[len(s.ordered)-1]
			s.ordered = s.ordered[:len(s.ordered)-1]
		}
		delete(s.levels, evicted)
		if s.hasBest && s.best == evicted {
			s.recomputeBest()
		}
	}
}

// extendBest updates the cached best if price extends it in the side's
// preferred direction (max for Buy, min for Sell), or if there was no best
// yet.
func (s *Side) extendBest(price canon.Price) {
	if !s.hasBest {
		s.best = price
		s.hasBest = true
		return
	}
	if s.side == canon.Buy && price > s.best {
		s.best = price
	} else if s.side == canon.Sell && price < s.best {
		s.best = price
	}
}

func (s *Side) recomputeBest() {
	if len(s.ordered) == 0 {
		s.hasBest = false
		return
	}
	if s.side == canon.Buy {
		s.best = s.ordered[len(s.ordered)-1]
	} else {
		s.best = s.ordered[0]
	}
	s.hasBest = true
}
