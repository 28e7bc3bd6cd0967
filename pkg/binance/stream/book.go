package stream

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quantarc/binance-gateway/pkg/binance"
)

// ErrBookOutOfSync is returned when a depth update leaves a gap the book
// cannot bridge. The caller must fetch a fresh snapshot and apply it.
var ErrBookOutOfSync = errors.New("order book out of sync")

const maxPendingUpdates = 1024

// Book maintains a local order book from a REST depth snapshot plus the
// differential depth stream.
//
// Usage follows the exchange protocol: subscribe to the depth stream first
// and feed every update into ApplyUpdate (they are buffered while unsynced),
// then fetch a snapshot and call ApplySnapshot. Updates that predate the
// snapshot are discarded during replay; a sequence gap afterwards surfaces
// as ErrBookOutOfSync and drops the book back to the unsynced state.
type Book struct {
	Symbol string

	mu           sync.RWMutex
	bids         []binance.PriceLevel // sorted by price descending
	asks         []binance.PriceLevel // sorted by price ascending
	lastUpdateID int64
	eventTime    int64
	synced       bool
	pending      []*DepthUpdate
}

// NewBook creates an empty, unsynced book for a symbol.
func NewBook(symbol string) *Book {
	return &Book{Symbol: symbol}
}

// Synced reports whether the book is tracking the stream.
func (b *Book) Synced() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.synced
}

// LastUpdateID returns the id of the last applied change.
func (b *Book) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

// ApplySnapshot seeds the book from a REST depth snapshot and replays any
// buffered updates that postdate it.
func (b *Book) ApplySnapshot(depth *binance.Depth) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = sortedLevels(depth.Bids, true)
	b.asks = sortedLevels(depth.Asks, false)
	b.lastUpdateID = depth.LastUpdateID
	b.synced = true

	pending := b.pending
	b.pending = nil

	for _, u := range pending {
		if err := b.applyLocked(u); err != nil {
			return err
		}
	}
	return nil
}

// ApplyUpdate applies one differential update. While unsynced the update is
// buffered for replay by the next ApplySnapshot.
func (b *Book) ApplyUpdate(u *DepthUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.synced {
		if len(b.pending) < maxPendingUpdates {
			b.pending = append(b.pending, u)
		}
		return nil
	}
	return b.applyLocked(u)
}

func (b *Book) applyLocked(u *DepthUpdate) error {
	if u.FinalUpdateID <= b.lastUpdateID {
		// Predates the snapshot.
		return nil
	}
	if u.FirstUpdateID > b.lastUpdateID+1 {
		b.synced = false
		return ErrBookOutOfSync
	}

	for _, level := range u.Bids {
		b.bids = updateLevel(b.bids, level, true)
	}
	for _, level := range u.Asks {
		b.asks = updateLevel(b.asks, level, false)
	}
	b.lastUpdateID = u.FinalUpdateID
	b.eventTime = u.EventTime
	return nil
}

// --- Read operations ---

// BestBid returns the highest bid. Zero values if the side is empty.
func (b *Book) BestBid() (price, qty decimal.Decimal) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 {
		return decimal.Zero, decimal.Zero
	}
	return b.bids[0].Price, b.bids[0].Qty
}

// BestAsk returns the lowest ask. Zero values if the side is empty.
func (b *Book) BestAsk() (price, qty decimal.Decimal) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.asks) == 0 {
		return decimal.Zero, decimal.Zero
	}
	return b.asks[0].Price, b.asks[0].Qty
}

// Midpoint returns the midpoint between best bid and ask.
// Zero if either side is empty.
func (b *Book) Midpoint() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 || len(b.asks) == 0 {
		return decimal.Zero
	}
	return b.bids[0].Price.Add(b.asks[0].Price).Div(decimal.NewFromInt(2))
}

// Spread returns the bid-ask spread. Zero if either side is empty.
func (b *Book) Spread() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 || len(b.asks) == 0 {
		return decimal.Zero
	}
	return b.asks[0].Price.Sub(b.bids[0].Price)
}

// Depths returns the number of bid and ask levels.
func (b *Book) Depths() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

// Snapshot returns a copy of the current book state.
func (b *Book) Snapshot() binance.Depth {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := make([]binance.PriceLevel, len(b.bids))
	copy(bids, b.bids)
	asks := make([]binance.PriceLevel, len(b.asks))
	copy(asks, b.asks)

	return binance.Depth{
		LastUpdateID: b.lastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}
}

// --- Level bookkeeping ---

func sortedLevels(levels []binance.PriceLevel, descending bool) []binance.PriceLevel {
	out := make([]binance.PriceLevel, len(levels))
	copy(out, levels)
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// updateLevel sets, replaces, or removes one price level, keeping the side
// sorted. A zero quantity removes the level.
func updateLevel(side []binance.PriceLevel, level binance.PriceLevel, descending bool) []binance.PriceLevel {
	idx := -1
	for i := range side {
		if side[i].Price.Equal(level.Price) {
			idx = i
			break
		}
	}

	if level.Qty.IsZero() {
		if idx >= 0 {
			side = append(side[:idx], side[idx+1:]...)
		}
		return side
	}

	if idx >= 0 {
		side[idx].Qty = level.Qty
		return side
	}

	insertIdx := sort.Search(len(side), func(i int) bool {
		if descending {
			return side[i].Price.LessThan(level.Price)
		}
		return side[i].Price.GreaterThan(level.Price)
	})
	side = append(side, binance.PriceLevel{})
	copy(side[insertIdx+1:], side[insertIdx:])
	side[insertIdx] = level
	return side
}
