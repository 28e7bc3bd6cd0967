package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantarc/binance-gateway/pkg/binance"
)

// Stream name builders. Symbols are lowercased per the feed convention.

// MiniTickerStream returns the mini ticker stream name for a symbol.
func MiniTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@miniTicker"
}

// DepthStream returns the differential depth stream name for a symbol.
func DepthStream(symbol string) string {
	return strings.ToLower(symbol) + "@depth"
}

// DepthStreamFast returns the 100ms differential depth stream name.
func DepthStreamFast(symbol string) string {
	return strings.ToLower(symbol) + "@depth@100ms"
}

// TradeStream returns the raw trade stream name for a symbol.
func TradeStream(symbol string) string {
	return strings.ToLower(symbol) + "@trade"
}

// EventType returns the "e" field of a raw event payload.
func EventType(data []byte) string {
	var eh eventHeader
	if err := json.Unmarshal(data, &eh); err != nil {
		return ""
	}
	return eh.Event
}

// --- Wire shapes ---
//
// The feed tags fields with single letters, case-sensitive. Prices and
// quantities arrive as decimal strings.

type miniTickerEvent struct {
	Event       string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	Close       string `json:"c"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
}

type depthUpdateEvent struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

type tradeEvent struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

// --- Decoded events ---

// MiniTicker is a rolling 24h OHLCV snapshot for one symbol.
type MiniTicker struct {
	Symbol      string
	EventTime   int64
	Close       decimal.Decimal
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	BaseVolume  decimal.Decimal
	QuoteVolume decimal.Decimal
}

// DepthUpdate is one differential order book change.
type DepthUpdate struct {
	Symbol        string
	EventTime     int64
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []binance.PriceLevel
	Asks          []binance.PriceLevel
}

// Trade is a single executed trade.
type Trade struct {
	Symbol       string
	TradeID      int64
	Price        decimal.Decimal
	Qty          decimal.Decimal
	TradeTime    int64
	BuyerIsMaker bool
}

// DecodeMiniTicker decodes a 24hrMiniTicker event payload.
func DecodeMiniTicker(data []byte) (*MiniTicker, error) {
	var raw miniTickerEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode mini ticker: %w", err)
	}
	return &MiniTicker{
		Symbol:      raw.Symbol,
		EventTime:   raw.EventTime,
		Close:       dec(raw.Close),
		Open:        dec(raw.Open),
		High:        dec(raw.High),
		Low:         dec(raw.Low),
		BaseVolume:  dec(raw.Volume),
		QuoteVolume: dec(raw.QuoteVolume),
	}, nil
}

// DecodeDepthUpdate decodes a depthUpdate event payload.
func DecodeDepthUpdate(data []byte) (*DepthUpdate, error) {
	var raw depthUpdateEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode depth update: %w", err)
	}
	return &DepthUpdate{
		Symbol:        raw.Symbol,
		EventTime:     raw.EventTime,
		FirstUpdateID: raw.FirstUpdateID,
		FinalUpdateID: raw.FinalUpdateID,
		Bids:          levels(raw.Bids),
		Asks:          levels(raw.Asks),
	}, nil
}

// DecodeTrade decodes a trade event payload.
func DecodeTrade(data []byte) (*Trade, error) {
	var raw tradeEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	return &Trade{
		Symbol:       raw.Symbol,
		TradeID:      raw.TradeID,
		Price:        dec(raw.Price),
		Qty:          dec(raw.Quantity),
		TradeTime:    raw.TradeTime,
		BuyerIsMaker: raw.BuyerIsMaker,
	}, nil
}

func levels(raw [][]string) []binance.PriceLevel {
	out := make([]binance.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		out = append(out, binance.PriceLevel{Price: dec(pair[0]), Qty: dec(pair[1])})
	}
	return out
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
