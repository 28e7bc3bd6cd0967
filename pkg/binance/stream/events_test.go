package stream

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStreamNames(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{MiniTickerStream("BTCUSDT"), "btcusdt@miniTicker"},
		{DepthStream("ETHUSDT"), "ethusdt@depth"},
		{DepthStreamFast("BNBUSDT"), "bnbusdt@depth@100ms"},
		{TradeStream("SOLUSDT"), "solusdt@trade"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("stream name = %q, want %q", tc.got, tc.want)
		}
	}
}

func TestDecodeDepthUpdate(t *testing.T) {
	payload := `{
		"e": "depthUpdate",
		"E": 123456789,
		"s": "BTCUSDT",
		"U": 157,
		"u": 160,
		"b": [["0.0024", "10"], ["0.0023", "0"]],
		"a": [["0.0026", "100"]]
	}`

	update, err := DecodeDepthUpdate([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeDepthUpdate() error = %v", err)
	}
	if update.Symbol != "BTCUSDT" || update.EventTime != 123456789 {
		t.Errorf("header = %+v", update)
	}
	if update.FirstUpdateID != 157 || update.FinalUpdateID != 160 {
		t.Errorf("ids = %d/%d, want 157/160", update.FirstUpdateID, update.FinalUpdateID)
	}
	if len(update.Bids) != 2 || len(update.Asks) != 1 {
		t.Fatalf("levels = %d/%d, want 2/1", len(update.Bids), len(update.Asks))
	}
	// Zero quantities survive decoding; the book decides what they mean.
	if !update.Bids[1].Qty.IsZero() {
		t.Errorf("bid[1].Qty = %s, want 0", update.Bids[1].Qty)
	}
}

func TestDecodeTrade(t *testing.T) {
	payload := `{"e":"trade","E":123456785,"s":"BTCUSDT","t":12345,"p":"64000.01","q":"0.5","T":123456780,"m":true}`

	trade, err := DecodeTrade([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeTrade() error = %v", err)
	}
	if trade.TradeID != 12345 || !trade.BuyerIsMaker {
		t.Errorf("trade = %+v", trade)
	}
	if !trade.Price.Equal(decimal.RequireFromString("64000.01")) {
		t.Errorf("price = %s, want 64000.01", trade.Price)
	}
	if !trade.Qty.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("qty = %s, want 0.5", trade.Qty)
	}
}

func TestDecodeMiniTickerDistinguishesCaseTags(t *testing.T) {
	// "E" (event time) and "e" (event type), "q" (quote volume): the decoder
	// must bind by exact tag, not case-insensitive fallback.
	ticker, err := DecodeMiniTicker([]byte(miniTickerPayload))
	if err != nil {
		t.Fatalf("DecodeMiniTicker() error = %v", err)
	}
	if ticker.EventTime != 1700000000000 {
		t.Errorf("EventTime = %d, want 1700000000000", ticker.EventTime)
	}
	if !ticker.QuoteVolume.Equal(decimal.NewFromInt(64000000)) {
		t.Errorf("QuoteVolume = %s, want 64000000", ticker.QuoteVolume)
	}
	if !ticker.Open.Equal(decimal.NewFromInt(63000)) {
		t.Errorf("Open = %s, want 63000", ticker.Open)
	}
}

func TestEventType(t *testing.T) {
	if got := EventType([]byte(miniTickerPayload)); got != "24hrMiniTicker" {
		t.Errorf("EventType = %q, want 24hrMiniTicker", got)
	}
	if got := EventType([]byte(`not json`)); got != "" {
		t.Errorf("EventType on garbage = %q, want empty", got)
	}
}
