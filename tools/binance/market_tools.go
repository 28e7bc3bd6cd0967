// Package binance exposes the exchange's spot endpoints as gateway tools.
// Each tool validates its own input, calls exactly one REST endpoint, and
// reports the endpoint it used in the result metadata.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantarc/binance-gateway/core"
	"github.com/quantarc/binance-gateway/pkg/binance"
	"github.com/quantarc/binance-gateway/pkg/validate"
)

// Risk classes for tool registration.
const (
	RiskClassReadOnly = "read-only" // Public market data, no auth
	RiskClassAuth     = "auth"      // Reads account state, needs credentials
	RiskClassTrading  = "trading"   // Places orders
)

// ClientProvider hands out the shared exchange client. The gateway's
// client manager satisfies it; tools never build clients themselves.
type ClientProvider interface {
	Client(ctx context.Context) (*binance.Client, error)
}

// === Market Data Tools ===

// GetTickerPriceTool returns the latest price for a symbol.
type GetTickerPriceTool struct {
	provider ClientProvider
}

type TickerPriceInput struct {
	Symbol string `json:"symbol"` // Trading pair, e.g. 'BTCUSDT'
}

type TickerPriceOutput struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func NewGetTickerPriceTool(provider ClientProvider) *GetTickerPriceTool {
	return &GetTickerPriceTool{provider: provider}
}

func (t *GetTickerPriceTool) Name() string {
	return "binance_get_ticker_price"
}

func (t *GetTickerPriceTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Trading pair symbol (e.g. 'BTCUSDT')"}
		},
		"required": ["symbol"]
	}`)
}

func (t *GetTickerPriceTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string"},
			"price": {"type": "number"}
		}
	}`)
}

func (t *GetTickerPriceTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	var input TickerPriceInput
	if err := parseInput(tc.Request, &input); err != nil {
		return errorResult(err)
	}

	symbol, err := validate.Symbol(input.Symbol)
	if err != nil {
		return errorResult(err)
	}

	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	ticker, err := client.TickerPrice(tc.Ctx, symbol)
	if err != nil {
		return errorResult(fmt.Errorf("get ticker price failed: %w", err))
	}

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: TickerPriceOutput{
			Symbol: ticker.Symbol,
			Price:  ticker.Price.InexactFloat64(),
		},
		Metadata: core.Meta("binance", "/api/v3/ticker/price", map[string]any{
			"requested_symbol": symbol,
		}),
	}
}

// Get24hrTickerTool returns rolling 24-hour statistics for a symbol.
type Get24hrTickerTool struct {
	provider ClientProvider
}

type Ticker24hInput struct {
	Symbol string `json:"symbol"` // Trading pair, e.g. 'BTCUSDT'
}

type Ticker24hOutput struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"price_change"`
	PriceChangePercent float64 `json:"price_change_percent"`
	WeightedAvgPrice   float64 `json:"weighted_avg_price"`
	PrevClosePrice     float64 `json:"prev_close_price"`
	LastPrice          float64 `json:"last_price"`
	BidPrice           float64 `json:"bid_price"`
	AskPrice           float64 `json:"ask_price"`
	OpenPrice          float64 `json:"open_price"`
	HighPrice          float64 `json:"high_price"`
	LowPrice           float64 `json:"low_price"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quote_volume"`
	OpenTime           int64   `json:"open_time"`
	CloseTime          int64   `json:"close_time"`
	Count              int64   `json:"count"`
}

func NewGet24hrTickerTool(provider ClientProvider) *Get24hrTickerTool {
	return &Get24hrTickerTool{provider: provider}
}

func (t *Get24hrTickerTool) Name() string {
	return "binance_get_24hr_ticker"
}

func (t *Get24hrTickerTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Trading pair symbol (e.g. 'BTCUSDT')"}
		},
		"required": ["symbol"]
	}`)
}

func (t *Get24hrTickerTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string"},
			"price_change": {"type": "number"},
			"price_change_percent": {"type": "number"},
			"last_price": {"type": "number"},
			"volume": {"type": "number"},
			"count": {"type": "integer"}
		}
	}`)
}

func (t *Get24hrTickerTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	var input Ticker24hInput
	if err := parseInput(tc.Request, &input); err != nil {
		return errorResult(err)
	}

	symbol, err := validate.Symbol(input.Symbol)
	if err != nil {
		return errorResult(err)
	}

	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	ticker, err := client.Ticker24h(tc.Ctx, symbol)
	if err != nil {
		return errorResult(fmt.Errorf("get 24hr ticker failed: %w", err))
	}

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: Ticker24hOutput{
			Symbol:             ticker.Symbol,
			PriceChange:        ticker.PriceChange.InexactFloat64(),
			PriceChangePercent: ticker.PriceChangePercent.InexactFloat64(),
			WeightedAvgPrice:   ticker.WeightedAvgPrice.InexactFloat64(),
			PrevClosePrice:     ticker.PrevClosePrice.InexactFloat64(),
			LastPrice:          ticker.LastPrice.InexactFloat64(),
			BidPrice:           ticker.BidPrice.InexactFloat64(),
			AskPrice:           ticker.AskPrice.InexactFloat64(),
			OpenPrice:          ticker.OpenPrice.InexactFloat64(),
			HighPrice:          ticker.HighPrice.InexactFloat64(),
			LowPrice:           ticker.LowPrice.InexactFloat64(),
			Volume:             ticker.Volume.InexactFloat64(),
			QuoteVolume:        ticker.QuoteVolume.InexactFloat64(),
			OpenTime:           ticker.OpenTime,
			CloseTime:          ticker.CloseTime,
			Count:              ticker.Count,
		},
		Metadata: core.Meta("binance", "/api/v3/ticker/24hr", map[string]any{
			"requested_symbol": symbol,
		}),
	}
}

// GetExchangeInfoTool returns exchange trading rules: a summary of the
// whole exchange, or one symbol's rules when a symbol is given.
type GetExchangeInfoTool struct {
	provider ClientProvider
}

type ExchangeInfoInput struct {
	Symbol string `json:"symbol"` // Optional; empty returns the exchange summary
}

type RateLimitOutput struct {
	Type        string `json:"rate_limit_type"`
	Interval    string `json:"interval"`
	IntervalNum int    `json:"interval_num"`
	Limit       int    `json:"limit"`
}

type ExchangeSummaryOutput struct {
	Timezone     string            `json:"timezone"`
	ServerTime   int64             `json:"server_time"`
	RateLimits   []RateLimitOutput `json:"rate_limits"`
	SymbolsCount int               `json:"symbols_count"`
}

type SymbolDetailOutput struct {
	Symbol         string           `json:"symbol"`
	Status         string           `json:"status"`
	BaseAsset      string           `json:"base_asset"`
	QuoteAsset     string           `json:"quote_asset"`
	BasePrecision  int              `json:"base_precision"`
	QuotePrecision int              `json:"quote_precision"`
	OrderTypes     []string         `json:"order_types"`
	IcebergAllowed bool             `json:"iceberg_allowed"`
	Filters        []map[string]any `json:"filters"`
}

func NewGetExchangeInfoTool(provider ClientProvider) *GetExchangeInfoTool {
	return &GetExchangeInfoTool{provider: provider}
}

func (t *GetExchangeInfoTool) Name() string {
	return "binance_get_exchange_info"
}

func (t *GetExchangeInfoTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Optional symbol; omit for the exchange-wide summary"}
		}
	}`)
}

func (t *GetExchangeInfoTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"timezone": {"type": "string"},
			"server_time": {"type": "integer"},
			"symbols_count": {"type": "integer"},
			"symbol": {"type": "string"},
			"status": {"type": "string"},
			"filters": {"type": "array", "items": {"type": "object"}}
		}
	}`)
}

func (t *GetExchangeInfoTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	var input ExchangeInfoInput
	if err := parseInput(tc.Request, &input); err != nil {
		return errorResult(err)
	}

	symbol := ""
	if input.Symbol != "" {
		var err error
		symbol, err = validate.Symbol(input.Symbol)
		if err != nil {
			return errorResult(err)
		}
	}

	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	info, err := client.ExchangeInfo(tc.Ctx, symbol)
	if err != nil {
		return errorResult(fmt.Errorf("get exchange info failed: %w", err))
	}

	meta := core.Meta("binance", "/api/v3/exchangeInfo", nil)

	if symbol != "" {
		var found *binance.SymbolInfo
		for i := range info.Symbols {
			if info.Symbols[i].Symbol == symbol {
				found = &info.Symbols[i]
				break
			}
		}
		if found == nil {
			return errorResult(fmt.Errorf("%w: symbol %s not found on exchange", core.ErrValidation, symbol))
		}
		meta["requested_symbol"] = symbol
		return &core.ToolExecResult{
			Status: core.ToolComplete,
			Output: SymbolDetailOutput{
				Symbol:         found.Symbol,
				Status:         found.Status,
				BaseAsset:      found.BaseAsset,
				QuoteAsset:     found.QuoteAsset,
				BasePrecision:  found.BaseAssetPrecision,
				QuotePrecision: found.QuotePrecision,
				OrderTypes:     found.OrderTypes,
				IcebergAllowed: found.IcebergAllowed,
				Filters:        found.Filters,
			},
			Metadata: meta,
		}
	}

	limits := make([]RateLimitOutput, 0, len(info.RateLimits))
	for _, rl := range info.RateLimits {
		limits = append(limits, RateLimitOutput{
			Type:        rl.RateLimitType,
			Interval:    rl.Interval,
			IntervalNum: rl.IntervalNum,
			Limit:       rl.Limit,
		})
	}

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: ExchangeSummaryOutput{
			Timezone:     info.Timezone,
			ServerTime:   info.ServerTime,
			RateLimits:   limits,
			SymbolsCount: len(info.Symbols),
		},
		Metadata: meta,
	}
}

// GetOrderBookTool returns an order book snapshot. Its request weight
// depends on the requested depth, so it reports the weight itself.
type GetOrderBookTool struct {
	provider ClientProvider
}

type OrderBookInput struct {
	Symbol string `json:"symbol"` // Trading pair, e.g. 'BTCUSDT'
	Limit  int    `json:"limit"`  // Rows per side (default 100, max 5000)
}

type BookLevelOutput struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

type OrderBookOutput struct {
	Symbol       string            `json:"symbol"`
	LastUpdateID int64             `json:"last_update_id"`
	Bids         []BookLevelOutput `json:"bids"`
	Asks         []BookLevelOutput `json:"asks"`
}

func NewGetOrderBookTool(provider ClientProvider) *GetOrderBookTool {
	return &GetOrderBookTool{provider: provider}
}

func (t *GetOrderBookTool) Name() string {
	return "binance_get_order_book"
}

func (t *GetOrderBookTool) InputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Trading pair symbol (e.g. 'BTCUSDT')"},
			"limit": {"type": "integer", "description": "Depth rows per side (default 100)", "maximum": 5000}
		},
		"required": ["symbol"]
	}`)
}

func (t *GetOrderBookTool) OutputSchema() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string"},
			"last_update_id": {"type": "integer"},
			"bids": {"type": "array", "items": {"type": "object"}},
			"asks": {"type": "array", "items": {"type": "object"}}
		}
	}`)
}

// Weight reports the depth tier for the requested limit before the call is
// admitted. Unparseable input falls back to the default tier; the parse
// error itself surfaces in Execute.
func (t *GetOrderBookTool) Weight(input json.RawMessage) int {
	var in OrderBookInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return binance.DepthWeight(0)
		}
	}
	return binance.DepthWeight(in.Limit)
}

func (t *GetOrderBookTool) Execute(tc *core.ToolContext) *core.ToolExecResult {
	var input OrderBookInput
	if err := parseInput(tc.Request, &input); err != nil {
		return errorResult(err)
	}

	symbol, err := validate.Symbol(input.Symbol)
	if err != nil {
		return errorResult(err)
	}
	limit := 0
	if input.Limit != 0 {
		limit, err = validate.Limit(input.Limit, validate.DefaultMaxLimit)
		if err != nil {
			return errorResult(err)
		}
	}

	client, err := t.provider.Client(tc.Ctx)
	if err != nil {
		return errorResult(err)
	}

	depth, err := client.Depth(tc.Ctx, symbol, limit)
	if err != nil {
		return errorResult(fmt.Errorf("get order book failed: %w", err))
	}

	return &core.ToolExecResult{
		Status: core.ToolComplete,
		Output: OrderBookOutput{
			Symbol:       symbol,
			LastUpdateID: depth.LastUpdateID,
			Bids:         bookLevels(depth.Bids),
			Asks:         bookLevels(depth.Asks),
		},
		Metadata: core.Meta("binance", "/api/v3/depth", map[string]any{
			"requested_symbol": symbol,
			"requested_limit":  limit,
			"actual_bids":      len(depth.Bids),
			"actual_asks":      len(depth.Asks),
		}),
	}
}

func bookLevels(levels []binance.PriceLevel) []BookLevelOutput {
	out := make([]BookLevelOutput, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, BookLevelOutput{
			Price: lvl.Price.String(),
			Qty:   lvl.Qty.String(),
		})
	}
	return out
}

// RegisterMarketTools registers the public market data tools. They share
// one rate class; each carries its endpoint's request weight.
func RegisterMarketTools(registry *core.ToolRegistry, provider ClientProvider) {
	base := core.ToolPolicy{
		Retriable:       true,
		DefaultTimeout:  30 * time.Second,
		RateLimitPerSec: 10.0,
		Burst:           20,
		LimitKey:        "binance-market",
	}

	ticker := base
	ticker.CostPerCall = binance.WeightTickerPrice
	registry.Register(NewGetTickerPriceTool(provider), ticker, RiskClassReadOnly)

	ticker24h := base
	ticker24h.CostPerCall = binance.WeightTicker24h
	registry.Register(NewGet24hrTickerTool(provider), ticker24h, RiskClassReadOnly)

	info := base
	info.CostPerCall = binance.WeightExchangeInfo
	registry.Register(NewGetExchangeInfoTool(provider), info, RiskClassReadOnly)

	// Depth weight varies with the requested limit; the tool reports it.
	registry.Register(NewGetOrderBookTool(provider), base, RiskClassReadOnly)
}

// === Helper Functions ===

func parseInput(msg *core.Message, v interface{}) error {
	if msg == nil || msg.ToolReq == nil {
		return nil
	}

	if len(msg.ToolReq.InputRaw) > 0 {
		if err := json.Unmarshal(msg.ToolReq.InputRaw, v); err != nil {
			return fmt.Errorf("%w: malformed input: %v", core.ErrValidation, err)
		}
		return nil
	}

	if msg.ToolReq.Input != nil {
		data, err := json.Marshal(msg.ToolReq.Input)
		if err != nil {
			return fmt.Errorf("%w: malformed input: %v", core.ErrValidation, err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: malformed input: %v", core.ErrValidation, err)
		}
	}

	return nil
}

func errorResult(err error) *core.ToolExecResult {
	return &core.ToolExecResult{
		Status: core.ToolFailed,
		Error:  err.Error(),
		Err:    err,
	}
}
