package stream

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantarc/binance-gateway/pkg/binance"
)

func lvl(price, qty string) binance.PriceLevel {
	return binance.PriceLevel{
		Price: decimal.RequireFromString(price),
		Qty:   decimal.RequireFromString(qty),
	}
}

func snapshot(id int64, bids, asks []binance.PriceLevel) *binance.Depth {
	return &binance.Depth{LastUpdateID: id, Bids: bids, Asks: asks}
}

func TestApplySnapshotSortsSides(t *testing.T) {
	book := NewBook("BTCUSDT")
	err := book.ApplySnapshot(snapshot(100,
		[]binance.PriceLevel{lvl("99", "1"), lvl("101", "2"), lvl("100", "3")},
		[]binance.PriceLevel{lvl("104", "1"), lvl("102", "2"), lvl("103", "3")},
	))
	if err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}
	if !book.Synced() {
		t.Error("book should be synced after a snapshot")
	}

	bidPrice, _ := book.BestBid()
	if !bidPrice.Equal(decimal.NewFromInt(101)) {
		t.Errorf("best bid = %s, want 101", bidPrice)
	}
	askPrice, _ := book.BestAsk()
	if !askPrice.Equal(decimal.NewFromInt(102)) {
		t.Errorf("best ask = %s, want 102", askPrice)
	}
	if !book.Spread().Equal(decimal.NewFromInt(1)) {
		t.Errorf("spread = %s, want 1", book.Spread())
	}
	if !book.Midpoint().Equal(decimal.RequireFromString("101.5")) {
		t.Errorf("midpoint = %s, want 101.5", book.Midpoint())
	}
}

func TestApplyUpdateSetRemoveInsert(t *testing.T) {
	book := NewBook("BTCUSDT")
	book.ApplySnapshot(snapshot(100,
		[]binance.PriceLevel{lvl("100", "1"), lvl("99", "1")},
		[]binance.PriceLevel{lvl("101", "1"), lvl("102", "1")},
	))

	err := book.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 101,
		FinalUpdateID: 103,
		Bids: []binance.PriceLevel{
			lvl("100", "5"),                                                  // replace
			lvl("99", "0"),                                                   // remove
			{Price: decimal.RequireFromString("99.5"), Qty: decimal.NewFromInt(2)}, // insert between
		},
		Asks: []binance.PriceLevel{lvl("101", "0")},
	})
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	snap := book.Snapshot()
	if snap.LastUpdateID != 103 {
		t.Errorf("LastUpdateID = %d, want 103", snap.LastUpdateID)
	}
	if len(snap.Bids) != 2 {
		t.Fatalf("bid levels = %d, want 2", len(snap.Bids))
	}
	if !snap.Bids[0].Price.Equal(decimal.NewFromInt(100)) || !snap.Bids[0].Qty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("top bid = %+v, want 100 x 5", snap.Bids[0])
	}
	if !snap.Bids[1].Price.Equal(decimal.RequireFromString("99.5")) {
		t.Errorf("second bid = %s, want 99.5", snap.Bids[1].Price)
	}
	if len(snap.Asks) != 1 || !snap.Asks[0].Price.Equal(decimal.NewFromInt(102)) {
		t.Errorf("asks = %+v, want only 102", snap.Asks)
	}
}

func TestStaleUpdateIsSkipped(t *testing.T) {
	book := NewBook("BTCUSDT")
	book.ApplySnapshot(snapshot(100,
		[]binance.PriceLevel{lvl("100", "1")},
		[]binance.PriceLevel{lvl("101", "1")},
	))

	err := book.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 90,
		FinalUpdateID: 95,
		Bids:          []binance.PriceLevel{lvl("100", "0")},
	})
	if err != nil {
		t.Fatalf("stale update should be a no-op, got %v", err)
	}
	if book.LastUpdateID() != 100 {
		t.Errorf("LastUpdateID = %d, want 100", book.LastUpdateID())
	}
	if price, _ := book.BestBid(); !price.Equal(decimal.NewFromInt(100)) {
		t.Error("stale update must not touch levels")
	}
}

func TestSequenceGapDropsSync(t *testing.T) {
	book := NewBook("BTCUSDT")
	book.ApplySnapshot(snapshot(100, nil, nil))

	err := book.ApplyUpdate(&DepthUpdate{FirstUpdateID: 110, FinalUpdateID: 112})
	if !errors.Is(err, ErrBookOutOfSync) {
		t.Fatalf("gap should return ErrBookOutOfSync, got %v", err)
	}
	if book.Synced() {
		t.Error("book should drop to unsynced after a gap")
	}

	// While unsynced, updates buffer instead of erroring.
	if err := book.ApplyUpdate(&DepthUpdate{FirstUpdateID: 113, FinalUpdateID: 115}); err != nil {
		t.Errorf("unsynced update should buffer, got %v", err)
	}
}

func TestPendingUpdatesReplayOnSnapshot(t *testing.T) {
	book := NewBook("BTCUSDT")

	// Stream starts before the snapshot arrives.
	book.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 90, FinalUpdateID: 95,
		Bids: []binance.PriceLevel{lvl("98", "9")},
	})
	book.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 96, FinalUpdateID: 101,
		Bids: []binance.PriceLevel{lvl("100", "2")},
	})
	book.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 102, FinalUpdateID: 104,
		Asks: []binance.PriceLevel{lvl("101", "3")},
	})

	err := book.ApplySnapshot(snapshot(100,
		[]binance.PriceLevel{lvl("100", "1")},
		[]binance.PriceLevel{lvl("102", "1")},
	))
	if err != nil {
		t.Fatalf("ApplySnapshot() error = %v", err)
	}

	// The first buffered update predates the snapshot and must be dropped:
	// 98 never appears. The later two bridge the snapshot id and apply.
	snap := book.Snapshot()
	if snap.LastUpdateID != 104 {
		t.Errorf("LastUpdateID = %d, want 104", snap.LastUpdateID)
	}
	for _, level := range snap.Bids {
		if level.Price.Equal(decimal.NewFromInt(98)) {
			t.Error("update older than the snapshot leaked into the book")
		}
	}
	if price, qty := book.BestBid(); !price.Equal(decimal.NewFromInt(100)) || !qty.Equal(decimal.NewFromInt(2)) {
		t.Errorf("best bid = %s x %s, want 100 x 2", price, qty)
	}
	if price, _ := book.BestAsk(); !price.Equal(decimal.NewFromInt(101)) {
		t.Errorf("best ask = %s, want 101", price)
	}
}

func TestResyncAfterGap(t *testing.T) {
	book := NewBook("BTCUSDT")
	book.ApplySnapshot(snapshot(100, []binance.PriceLevel{lvl("100", "1")}, nil))

	if err := book.ApplyUpdate(&DepthUpdate{FirstUpdateID: 200, FinalUpdateID: 201}); !errors.Is(err, ErrBookOutOfSync) {
		t.Fatalf("expected out of sync, got %v", err)
	}

	// A fresh snapshot recovers the book.
	book.ApplyUpdate(&DepthUpdate{
		FirstUpdateID: 300, FinalUpdateID: 301,
		Bids: []binance.PriceLevel{lvl("105", "1")},
	})
	if err := book.ApplySnapshot(snapshot(299, []binance.PriceLevel{lvl("104", "1")}, nil)); err != nil {
		t.Fatalf("resync snapshot error = %v", err)
	}
	if !book.Synced() {
		t.Error("book should be synced after resync")
	}
	if price, _ := book.BestBid(); !price.Equal(decimal.NewFromInt(105)) {
		t.Errorf("best bid = %s, want 105 from replayed update", price)
	}
}

func TestDepths(t *testing.T) {
	book := NewBook("ETHUSDT")
	book.ApplySnapshot(snapshot(1,
		[]binance.PriceLevel{lvl("10", "1"), lvl("9", "1"), lvl("8", "1")},
		[]binance.PriceLevel{lvl("11", "1")},
	))
	bids, asks := book.Depths()
	if bids != 3 || asks != 1 {
		t.Errorf("Depths() = %d/%d, want 3/1", bids, asks)
	}
}
